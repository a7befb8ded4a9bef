package arena_test

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gosuda/turingarena/internal/arena"
	"github.com/gosuda/turingarena/internal/domain"
	"github.com/gosuda/turingarena/internal/responder"
	"github.com/gosuda/turingarena/internal/turn"
)

// --- fakes ---

type sentEvent struct {
	participantID string
	event         domain.Event
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (b *recordingBroadcaster) Send(_, participantID string, evt domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sentEvent{participantID: participantID, event: evt})
}

func (b *recordingBroadcaster) events(participantID string, typ domain.EventType) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []domain.Event
	for _, s := range b.sent {
		if s.participantID == participantID && s.event.Type == typ {
			out = append(out, s.event)
		}
	}
	return out
}

func (b *recordingBroadcaster) count(typ domain.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, s := range b.sent {
		if s.event.Type == typ {
			n++
		}
	}
	return n
}

type recordingSettler struct {
	mu    sync.Mutex
	calls []domain.Settlement
}

func (s *recordingSettler) Settle(_ context.Context, settlement domain.Settlement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, settlement)
}

func (s *recordingSettler) settlements() []domain.Settlement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Settlement(nil), s.calls...)
}

type stubResponder struct {
	evaluate func(ctx context.Context, transcript []domain.Message) (responder.Outcome, error)
}

func (r stubResponder) Evaluate(ctx context.Context, transcript []domain.Message) (responder.Outcome, error) {
	return r.evaluate(ctx, transcript)
}

func silentFactory(responder.Identity) (responder.Responder, error) {
	return stubResponder{evaluate: func(context.Context, []domain.Message) (responder.Outcome, error) {
		return responder.Silent(), nil
	}}, nil
}

// countingQueue wraps a scheduler and records how many jobs ran and the
// highest number of jobs running at once.
type countingQueue struct {
	inner   *turn.Scheduler
	active  atomic.Int32
	maxSeen atomic.Int32
	ran     atomic.Int32
}

func (q *countingQueue) Enqueue(key string, job turn.Job) error {
	return q.inner.Enqueue(key, func(ctx context.Context) {
		n := q.active.Add(1)
		for {
			m := q.maxSeen.Load()
			if n <= m || q.maxSeen.CompareAndSwap(m, n) {
				break
			}
		}
		defer q.active.Add(-1)
		defer q.ran.Add(1)
		job(ctx)
	})
}

func (q *countingQueue) Pending(key string) int { return q.inner.Pending(key) }

func (q *countingQueue) Busy(key string) bool { return q.inner.Busy(key) }

// --- fixtures ---

func testConfig() arena.Config {
	cfg := arena.DefaultConfig()
	cfg.SessionLength = time.Hour
	cfg.SettlementDelay = time.Hour
	cfg.Jitter = responder.DelayRange{}
	return cfg
}

type fixture struct {
	registry    *arena.Registry
	broadcaster *recordingBroadcaster
	settler     *recordingSettler
	queue       *countingQueue
}

type fixtureOption func(*fixtureParams)

type fixtureParams struct {
	cfg     arena.Config
	factory responder.Factory
	seed    uint64
}

func withConfig(fn func(*arena.Config)) fixtureOption {
	return func(p *fixtureParams) { fn(&p.cfg) }
}

func withFactory(f responder.Factory) fixtureOption {
	return func(p *fixtureParams) { p.factory = f }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	params := fixtureParams{cfg: testConfig(), factory: silentFactory, seed: 7}
	for _, opt := range opts {
		opt(&params)
	}

	sched := turn.NewScheduler()
	f := &fixture{
		broadcaster: &recordingBroadcaster{},
		settler:     &recordingSettler{},
		queue:       &countingQueue{inner: sched},
	}

	reg, err := arena.NewRegistry(params.cfg, f.broadcaster, params.factory, f.settler, f.queue,
		arena.WithRand(func(string) *rand.Rand {
			return rand.New(rand.NewPCG(params.seed, params.seed)) //nolint:gosec // test determinism
		}),
	)
	require.NoError(t, err)
	f.registry = reg

	t.Cleanup(func() {
		reg.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sched.Shutdown(ctx)
	})
	return f
}

// started returns a running two-seat session joined by "alice" and "bob".
func (f *fixture) started(t *testing.T, id string) *arena.Session {
	t.Helper()

	s := f.registry.GetOrCreate(id)
	require.NoError(t, s.Join("alice"))
	require.NoError(t, s.Join("bob"))
	require.NoError(t, s.Start())
	return s
}

// you returns the roster entry assigned to a participant in its session_info event.
func (f *fixture) you(t *testing.T, participantID string) domain.Player {
	t.Helper()

	infos := f.broadcaster.events(participantID, domain.EventSessionInfo)
	require.Len(t, infos, 1)
	content, ok := infos[0].Content.(domain.RosterContent)
	require.True(t, ok)
	for _, p := range content.Players {
		if p.Name == content.You {
			return p
		}
	}
	t.Fatalf("participant %s is not in its own roster", participantID)
	return domain.Player{}
}
