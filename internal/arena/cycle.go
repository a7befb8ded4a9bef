package arena

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/gosuda/turingarena/internal/domain"
	"github.com/gosuda/turingarena/internal/responder"
)

// cycle is one turn: every bot evaluates the current transcript in parallel
// and accepted replies are armed on their own timers. The cycle ends after
// the evaluations plus a jitter pause, without waiting for those timers, so
// a reply may land after later cycles have already run.
func (s *Session) cycle(ctx context.Context) {
	s.mu.Lock()
	if s.phase != domain.PhaseRunning {
		s.mu.Unlock()
		return
	}
	transcript := domain.CloneMessages(s.transcript)
	bots := append([]bot(nil), s.bots...)
	jitter := s.cfg.Jitter.Pick(s.rng)
	s.mu.Unlock()

	var g errgroup.Group
	for _, b := range bots {
		g.Go(func() error {
			out, err := evaluate(ctx, b.responder, transcript)
			if err != nil {
				log.Warn().Err(err).
					Str("session_id", s.id).
					Str("responder", b.player.Name).
					Msg("arena.Session: responder failed, treated as silent")
				return nil
			}
			if out.Respond && out.Text != "" {
				s.scheduleReply(b.player.Name, out)
			}
			return nil
		})
	}
	_ = g.Wait()

	t := time.NewTimer(jitter)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// scheduleReply posts text once its delay elapses. The phase guard in
// AppendMessage drops replies that fire after the session finished.
func (s *Session) scheduleReply(name string, out responder.Outcome) {
	time.AfterFunc(out.Delay, func() {
		s.AppendMessage(name, out.Text)
	})
}

func evaluate(ctx context.Context, r responder.Responder, transcript []domain.Message) (out responder.Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("arena.evaluate: responder panicked")
			err = fmt.Errorf("arena.evaluate: panic: %v", rec)
		}
	}()
	return r.Evaluate(ctx, transcript)
}
