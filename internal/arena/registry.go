package arena

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"

	"github.com/gosuda/turingarena/internal/domain"
	"github.com/gosuda/turingarena/internal/responder"
)

// Option configures optional Registry parameters.
type Option func(*Registry)

// WithRand sets the source of randomness handed to each new session. It is
// called once per session, under the registry lock.
func WithRand(fn func(sessionID string) *rand.Rand) Option {
	return func(r *Registry) {
		r.newRand = fn
	}
}

// Registry is the get-or-create map of live sessions. Sessions live as long
// as the registry.
type Registry struct {
	cfg         Config
	broadcaster Broadcaster
	factory     responder.Factory
	settler     Settler
	queue       Queue
	newRand     func(sessionID string) *rand.Rand

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(
	cfg Config,
	broadcaster Broadcaster,
	factory responder.Factory,
	settler Settler,
	queue Queue,
	opts ...Option,
) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("arena.NewRegistry: %w", err)
	}

	r := &Registry{
		cfg:         cfg,
		broadcaster: broadcaster,
		factory:     factory,
		settler:     settler,
		queue:       queue,
		newRand:     func(string) *rand.Rand { return newRand() },
		sessions:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// GetOrCreate returns the session for id, creating it on first use.
func (r *Registry) GetOrCreate(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s
	}

	s := &Session{
		id:          id,
		cfg:         r.cfg,
		broadcaster: r.broadcaster,
		factory:     r.factory,
		settler:     r.settler,
		queue:       r.queue,
		rng:         r.newRand(id),
		phase:       domain.PhasePending,
	}
	r.sessions[id] = s
	return s
}

// Lookup returns an existing session without creating one.
func (r *Registry) Lookup(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("arena.Registry.Lookup(%s): %w", id, domain.ErrNotFound)
	}
	return s, nil
}

// List returns every session ordered by id.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b *Session) int { return strings.Compare(a.id, b.id) })
	return out
}

// Stop disarms the finish and settlement timers of every session.
func (r *Registry) Stop() {
	for _, s := range r.List() {
		s.stop()
	}
}
