package responder

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/gosuda/turingarena/internal/domain"
)

// DefaultLines are the canned replies of scripted responders.
var DefaultLines = []string{ //nolint:gochecknoglobals // read-only defaults
	"lol same",
	"wait what do u mean",
	"hmm idk about that tbh",
	"thats exactly what a bot would say )))",
	"ok but who here is actually human xD",
	"agree",
	"nah disagree, hard disagree",
	"can we get back to the topic pls",
}

// ScriptedConfig configures scripted responders.
type ScriptedConfig struct {
	Lines  []string
	Chance float64 // probability of replying to a message not its own
	Delays DelayRange
	Rand   *rand.Rand
}

// Scripted builds responders that reply with canned lines at random. It lets
// the arena run without a language model.
type Scripted struct {
	cfg ScriptedConfig
	mu  sync.Mutex
}

func NewScripted(cfg ScriptedConfig) *Scripted {
	if len(cfg.Lines) == 0 {
		cfg.Lines = DefaultLines
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // not security sensitive
	}
	return &Scripted{cfg: cfg}
}

// Factory builds one scripted responder per roster identity.
func (s *Scripted) Factory(identity Identity) (Responder, error) {
	return &scriptedResponder{parent: s, name: identity.Name}, nil
}

type scriptedResponder struct {
	parent *Scripted
	name   string
}

func (r *scriptedResponder) Evaluate(_ context.Context, transcript []domain.Message) (Outcome, error) {
	if len(transcript) == 0 || lastSpeaker(transcript) == r.name {
		return Silent(), nil
	}

	s := r.parent
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Rand.Float64() >= s.cfg.Chance {
		return Silent(), nil
	}
	line := s.cfg.Lines[s.cfg.Rand.IntN(len(s.cfg.Lines))]
	return Reply(line, s.cfg.Delays.Pick(s.cfg.Rand)), nil
}
