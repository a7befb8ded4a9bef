// Package arena runs Turing Arena sessions: seating, lifecycle, the shared
// transcript and the turn cycles that let responders speak.
package arena

import (
	"errors"
	"fmt"
	"time"

	"github.com/gosuda/turingarena/internal/domain"
	"github.com/gosuda/turingarena/internal/responder"
)

// DefaultTopic is the discussion topic announced when none is configured.
const DefaultTopic = "What do you think about Turing arena?"

// DefaultNames is the display name pool drawn from at initialization.
var DefaultNames = []string{"Bletchley", "Enigma", "Ultra", "Christopher", "Halting", "Athena"} //nolint:gochecknoglobals // read-only defaults

// Config holds the game parameters shared by every session of a registry.
type Config struct {
	Seats           int
	Responders      int
	SessionLength   time.Duration
	SettlementDelay time.Duration
	Jitter          responder.DelayRange
	Topic           string
	Names           []string
}

// DefaultConfig returns the two-human, four-responder game.
func DefaultConfig() Config {
	return Config{
		Seats:           2,
		Responders:      4,
		SessionLength:   2 * time.Minute,
		SettlementDelay: 3*time.Minute + 10*time.Second,
		Jitter:          responder.DelayRange{Min: 2 * time.Second, Max: 5 * time.Second},
		Topic:           DefaultTopic,
		Names:           DefaultNames,
	}
}

// Validate checks the game parameters for consistency.
func (c Config) Validate() error {
	if c.Seats < 1 {
		return fmt.Errorf("arena.Config.Validate: seats must be >= 1, got %d", c.Seats)
	}
	if c.Responders < 0 {
		return fmt.Errorf("arena.Config.Validate: responders must be >= 0, got %d", c.Responders)
	}
	if c.SessionLength <= 0 {
		return fmt.Errorf("arena.Config.Validate: session length must be positive, got %s", c.SessionLength)
	}
	if c.SettlementDelay <= 0 {
		return fmt.Errorf("arena.Config.Validate: settlement delay must be positive, got %s", c.SettlementDelay)
	}
	if c.Jitter.Min < 0 || c.Jitter.Max < c.Jitter.Min {
		return fmt.Errorf("arena.Config.Validate: jitter range [%s, %s] is invalid", c.Jitter.Min, c.Jitter.Max)
	}
	if c.Topic == "" {
		return errors.New("arena.Config.Validate: topic is required")
	}

	seen := make(map[string]struct{}, len(c.Names))
	for _, n := range c.Names {
		if n == "" || n == domain.GameMaster {
			return fmt.Errorf("arena.Config.Validate: name %q is reserved", n)
		}
		if _, dup := seen[n]; dup {
			return fmt.Errorf("arena.Config.Validate: name %q is listed twice", n)
		}
		seen[n] = struct{}{}
	}
	if need := c.Seats + c.Responders; len(seen) < need {
		return fmt.Errorf("arena.Config.Validate: need at least %d names, got %d", need, len(seen))
	}

	return nil
}
