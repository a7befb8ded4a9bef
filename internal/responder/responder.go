// Package responder defines the autonomous chat participant contract and its
// implementations.
package responder

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/gosuda/turingarena/internal/domain"
)

// Identity is the fixed display name and persona of a responder for the
// lifetime of one session.
type Identity struct {
	Name    string
	Persona string
}

// Outcome is the decision of one evaluation: stay silent, or post Text after Delay.
type Outcome struct {
	Respond bool
	Text    string
	Delay   time.Duration
}

// Silent returns the outcome of a responder that does not speak this turn.
func Silent() Outcome { return Outcome{} }

// Reply returns the outcome of a responder that posts text after delay.
func Reply(text string, delay time.Duration) Outcome {
	return Outcome{Respond: true, Text: text, Delay: delay}
}

// Responder decides, given the full transcript, whether to speak next.
// Implementations must be safe for concurrent use.
type Responder interface {
	Evaluate(ctx context.Context, transcript []domain.Message) (Outcome, error)
}

// Factory builds the responder for one roster identity.
type Factory func(identity Identity) (Responder, error)

// DelayRange bounds the delay before a reply appears in the chat.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// Pick draws a uniform delay in [Min, Max].
func (d DelayRange) Pick(r *rand.Rand) time.Duration {
	if d.Max <= d.Min {
		return d.Min
	}
	return d.Min + time.Duration(r.Int64N(int64(d.Max-d.Min)+1))
}

// Choose keeps proposed when it lies inside the range and draws a fresh
// delay otherwise.
func (d DelayRange) Choose(r *rand.Rand, proposed time.Duration) time.Duration {
	if proposed >= d.Min && proposed <= d.Max && proposed > 0 {
		return proposed
	}
	return d.Pick(r)
}

// lastSpeaker returns the speaker of the final message, or "".
func lastSpeaker(transcript []domain.Message) string {
	if len(transcript) == 0 {
		return ""
	}
	return transcript[len(transcript)-1].Speaker
}
