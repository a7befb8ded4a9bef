// Package turn serializes work per key. Jobs sharing a key run one at a time
// in submission order; jobs with different keys run in parallel.
package turn

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrStopped is returned when enqueueing on a scheduler that has been shut down.
var ErrStopped = errors.New("turn: scheduler stopped") //nolint:gochecknoglobals // sentinel error

// Job is a unit of serialized work. ctx is cancelled on Shutdown.
type Job func(ctx context.Context)

// lane holds the pending jobs of one key. A lane exists only while its
// worker goroutine is alive.
type lane struct {
	jobs *list.List
	busy bool
}

// Scheduler runs at most one job per key at any instant.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool

	wg sync.WaitGroup
}

func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		lanes:  make(map[string]*lane),
	}
}

// Enqueue appends job to the lane of key. Enqueueing is never deduplicated.
func (s *Scheduler) Enqueue(key string, job Job) error {
	if job == nil {
		return fmt.Errorf("turn.Scheduler.Enqueue(%q): nil job", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("turn.Scheduler.Enqueue(%q): %w", key, ErrStopped)
	}

	l, ok := s.lanes[key]
	if !ok {
		l = &lane{jobs: list.New()}
		s.lanes[key] = l
		s.wg.Add(1)
		go s.drain(key, l)
	}
	l.jobs.PushBack(job)

	return nil
}

// drain is the worker loop of a lane. It exits, removing the lane, once the
// lane is empty or the scheduler is shutting down.
func (s *Scheduler) drain(key string, l *lane) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		front := l.jobs.Front()
		if front == nil || s.ctx.Err() != nil {
			delete(s.lanes, key)
			s.mu.Unlock()
			return
		}
		l.jobs.Remove(front)
		l.busy = true
		s.mu.Unlock()

		job, _ := front.Value.(Job)
		s.run(key, job)

		s.mu.Lock()
		l.busy = false
		s.mu.Unlock()
	}
}

func (s *Scheduler) run(key string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("key", key).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("turn.Scheduler: job panicked")
		}
	}()

	job(s.ctx)
}

// Pending returns the number of jobs waiting for key, excluding a running one.
func (s *Scheduler) Pending(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lanes[key]
	if !ok {
		return 0
	}
	return l.jobs.Len()
}

// Busy reports whether a job for key is executing right now.
func (s *Scheduler) Busy(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lanes[key]
	return ok && l.busy
}

// Shutdown stops accepting jobs, cancels the context handed to running jobs,
// drops queued ones and waits for every lane worker to exit.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("turn.Scheduler.Shutdown: %w", ctx.Err())
	}
}
