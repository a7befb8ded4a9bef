package responder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/gosuda/turingarena/internal/domain"
)

const (
	toolKeepSilent    = "keepSilent"
	toolRespondToChat = "respondToChat"
)

// ErrUnexpectedTool is returned when the model calls a tool it was not offered.
var ErrUnexpectedTool = errors.New("responder: unexpected tool call") //nolint:gochecknoglobals // sentinel error

// ContentGenerator is the subset of the genai client used by GenAI.
// *genai.Models satisfies this interface.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAIConfig configures Gemini-backed responders.
type GenAIConfig struct {
	Model   string
	Timeout time.Duration
	Delays  DelayRange
}

// GenAI builds responders that decide through Gemini function calling.
type GenAI struct {
	gen ContentGenerator
	cfg GenAIConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenAI creates a Gemini API client and wraps it.
func NewGenAI(ctx context.Context, apiKey string, cfg GenAIConfig) (*GenAI, error) {
	if apiKey == "" {
		return nil, errors.New("responder.NewGenAI: api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("responder.NewGenAI: %w", err)
	}

	return NewGenAIWithGenerator(client.Models, cfg), nil
}

// NewGenAIWithGenerator wraps an existing content generator.
func NewGenAIWithGenerator(gen ContentGenerator, cfg GenAIConfig) *GenAI {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	return &GenAI{
		gen: gen,
		cfg: cfg,
		rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // delays, not secrets
	}
}

// Factory builds one responder per roster identity.
func (g *GenAI) Factory(identity Identity) (Responder, error) {
	return &genaiResponder{
		provider: g,
		identity: identity,
		system:   SystemPrompt(identity),
	}, nil
}

func (g *GenAI) delay(proposed time.Duration) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg.Delays.Choose(g.rng, proposed)
}

type genaiResponder struct {
	provider *GenAI
	identity Identity
	system   string
}

func (r *genaiResponder) Evaluate(ctx context.Context, transcript []domain.Message) (Outcome, error) {
	if len(transcript) == 0 || lastSpeaker(transcript) == r.identity.Name {
		return Silent(), nil
	}

	if r.provider.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.provider.cfg.Timeout)
		defer cancel()
	}

	resp, err := r.provider.gen.GenerateContent(ctx, r.provider.cfg.Model, r.contents(transcript), r.config())
	if err != nil {
		return Silent(), fmt.Errorf("responder.genai.Evaluate(%s): %w", r.identity.Name, err)
	}

	call := firstFunctionCall(resp)
	if call == nil {
		log.Debug().Str("responder", r.identity.Name).Msg("responder.genai: no tool call, staying silent")
		return Silent(), nil
	}

	switch call.Name {
	case toolKeepSilent:
		return Silent(), nil
	case toolRespondToChat:
		text, _ := call.Args["message"].(string)
		text = strings.TrimSpace(text)
		if text == "" {
			return Silent(), nil
		}
		return Reply(text, r.provider.delay(parseDelayMS(call.Args["delay_ms"]))), nil
	default:
		return Silent(), fmt.Errorf("responder.genai.Evaluate(%s): %q: %w", r.identity.Name, call.Name, ErrUnexpectedTool)
	}
}

// contents maps the transcript onto chat turns: the responder's own lines
// become model turns, everyone else's user turns prefixed with the speaker.
func (r *genaiResponder) contents(transcript []domain.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(transcript))
	for _, m := range transcript {
		if m.Speaker == r.identity.Name {
			contents = append(contents, genai.NewContentFromText(m.Text, genai.RoleModel))
			continue
		}
		contents = append(contents, genai.NewContentFromText(m.Speaker+": "+m.Text, genai.RoleUser))
	}
	return contents
}

func (r *genaiResponder) config() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(r.system, genai.RoleUser),
		Tools: []*genai.Tool{{
			FunctionDeclarations: []*genai.FunctionDeclaration{
				{
					Name:        toolKeepSilent,
					Description: "Do not type anything to the chat",
				},
				{
					Name:        toolRespondToChat,
					Description: "Respond to chat",
					Parameters: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"message":  {Type: genai.TypeString, Description: "Text to post"},
							"delay_ms": {Type: genai.TypeNumber, Description: "Typing delay in milliseconds"},
						},
						Required: []string{"message"},
					},
				},
			},
		}},
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAny,
			},
		},
	}
}

// firstFunctionCall returns the first tool call of the first candidate.
// Later calls are ignored: the first decision wins.
func firstFunctionCall(resp *genai.GenerateContentResponse) *genai.FunctionCall {
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.FunctionCall != nil {
				return part.FunctionCall
			}
		}
	}
	return nil
}

// maxDelayMS is the largest millisecond count a time.Duration can hold.
const maxDelayMS = math.MaxInt64 / int64(time.Millisecond)

func parseDelayMS(v any) time.Duration {
	switch d := v.(type) {
	case float64:
		return millis(d)
	case int:
		return millis(float64(d))
	case int64:
		return millis(float64(d))
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(d), 64)
		if err != nil {
			return 0
		}
		return millis(n)
	default:
		return 0
	}
}

// millis converts a model-supplied millisecond count, clamped to what a
// Duration can represent. NaN and non-positive values yield 0.
func millis(ms float64) time.Duration {
	switch {
	case math.IsNaN(ms) || ms <= 0:
		return 0
	case ms >= float64(maxDelayMS):
		return time.Duration(maxDelayMS) * time.Millisecond
	default:
		return time.Duration(ms * float64(time.Millisecond))
	}
}
