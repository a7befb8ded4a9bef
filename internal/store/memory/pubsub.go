// Package memory is an in-process stand-in for the Redis pub/sub used when
// the server runs as a single instance.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("memory: pubsub closed") //nolint:gochecknoglobals // sentinel error

const subscriberBuffer = 64

type subscriber struct {
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

// PubSub fans published payloads out to every subscriber of a channel.
// Slow subscribers lose payloads instead of blocking publishers.
type PubSub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

func New() *PubSub {
	return &PubSub{subs: make(map[string]map[*subscriber]struct{})}
}

func (ps *PubSub) Publish(_ context.Context, channel string, payload []byte) error {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if ps.closed {
		return ErrClosed
	}

	for sub := range ps.subs[channel] {
		select {
		case sub.ch <- payload:
		default:
			log.Warn().Str("channel", channel).Msg("memory.PubSub.Publish: subscriber full, payload dropped")
		}
	}
	return nil
}

// Subscribe registers before returning, so every later Publish is seen.
func (ps *PubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	sub := &subscriber{
		ch:   make(chan []byte, subscriberBuffer),
		done: make(chan struct{}),
	}

	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return nil, nil, ErrClosed
	}
	set, ok := ps.subs[channel]
	if !ok {
		set = make(map[*subscriber]struct{})
		ps.subs[channel] = set
	}
	set[sub] = struct{}{}
	ps.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-sub.done:
		}
		ps.remove(channel, sub)
	}()

	cleanup := func() {
		sub.once.Do(func() { close(sub.done) })
	}
	return sub.ch, cleanup, nil
}

func (ps *PubSub) remove(channel string, sub *subscriber) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	set, ok := ps.subs[channel]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(ps.subs, channel)
	}
	close(sub.ch)
}

// Close ends every subscription and rejects further use.
func (ps *PubSub) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed {
		return nil
	}
	ps.closed = true
	for channel, set := range ps.subs {
		for sub := range set {
			close(sub.ch)
			sub.once.Do(func() { close(sub.done) })
		}
		delete(ps.subs, channel)
	}
	return nil
}
