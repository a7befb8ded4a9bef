// Package ledger reports finished sessions for on-chain resolution.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/turingarena/internal/domain"
)

// Client submits one settlement to the ledger backend.
type Client interface {
	Submit(ctx context.Context, s domain.Settlement) error
}

// Reporter is told about every settlement attempt and its outcome.
type Reporter interface {
	Report(ctx context.Context, s domain.Settlement, err error)
}

// Settler is the fire-and-forget entry point used by sessions. Failures are
// logged and reported, never retried, never returned.
type Settler struct {
	client   Client
	reporter Reporter
	timeout  time.Duration
}

// SettlerOption configures optional Settler parameters.
type SettlerOption func(*Settler)

// WithReporter sets a reporter notified after each submission.
func WithReporter(r Reporter) SettlerOption {
	return func(s *Settler) {
		s.reporter = r
	}
}

// WithTimeout bounds a single submission.
func WithTimeout(d time.Duration) SettlerOption {
	return func(s *Settler) {
		s.timeout = d
	}
}

func NewSettler(client Client, opts ...SettlerOption) *Settler {
	s := &Settler{
		client:  client,
		timeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settle submits s and absorbs any failure.
func (s *Settler) Settle(ctx context.Context, settlement domain.Settlement) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.client.Submit(ctx, settlement)
	if err != nil {
		log.Error().Err(err).
			Int64("session_id", settlement.SessionID).
			Ints64("player_ids", settlement.PlayerIDs).
			Msg("ledger.Settle: submission failed")
	} else {
		log.Info().
			Int64("session_id", settlement.SessionID).
			Ints64("player_ids", settlement.PlayerIDs).
			Msg("ledger.Settle: submitted")
	}

	if s.reporter != nil {
		s.reporter.Report(ctx, settlement, err)
	}
}

// LogClient only logs settlements. It is used when no ledger endpoint is configured.
type LogClient struct{}

func (LogClient) Submit(_ context.Context, s domain.Settlement) error {
	log.Warn().
		Int64("session_id", s.SessionID).
		Ints64("player_ids", s.PlayerIDs).
		Msg("ledger: no endpoint configured, settlement not relayed")
	return nil
}

// Describe renders a settlement for humans.
func Describe(s domain.Settlement) string {
	return fmt.Sprintf("session %d, players %v", s.SessionID, s.PlayerIDs)
}
