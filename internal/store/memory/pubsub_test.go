package memory_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gosuda/turingarena/internal/store/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func receive(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for payload")
		return nil
	}
}

func waitClosed(t *testing.T, ch <-chan []byte) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel was not closed")
		}
	}
}

func TestPubSub_PublishSubscribe(t *testing.T) {
	t.Parallel()

	ps := memory.New()
	t.Cleanup(func() { _ = ps.Close() })

	a, cleanupA, err := ps.Subscribe(context.Background(), "arena:1:a")
	require.NoError(t, err)
	defer cleanupA()
	b, cleanupB, err := ps.Subscribe(context.Background(), "arena:1:b")
	require.NoError(t, err)
	defer cleanupB()

	require.NoError(t, ps.Publish(context.Background(), "arena:1:a", []byte("for a")))
	require.NoError(t, ps.Publish(context.Background(), "arena:1:b", []byte("for b")))

	assert.Equal(t, "for a", string(receive(t, a)))
	assert.Equal(t, "for b", string(receive(t, b)))
}

func TestPubSub_PreservesOrder(t *testing.T) {
	t.Parallel()

	ps := memory.New()
	t.Cleanup(func() { _ = ps.Close() })

	ch, cleanup, err := ps.Subscribe(context.Background(), "c")
	require.NoError(t, err)
	defer cleanup()

	for i := range 10 {
		require.NoError(t, ps.Publish(context.Background(), "c", []byte(fmt.Sprint(i))))
	}
	for i := range 10 {
		assert.Equal(t, fmt.Sprint(i), string(receive(t, ch)))
	}
}

func TestPubSub_FanOut(t *testing.T) {
	t.Parallel()

	ps := memory.New()
	t.Cleanup(func() { _ = ps.Close() })

	first, c1, err := ps.Subscribe(context.Background(), "c")
	require.NoError(t, err)
	defer c1()
	second, c2, err := ps.Subscribe(context.Background(), "c")
	require.NoError(t, err)
	defer c2()

	require.NoError(t, ps.Publish(context.Background(), "c", []byte("x")))
	assert.Equal(t, "x", string(receive(t, first)))
	assert.Equal(t, "x", string(receive(t, second)))
}

func TestPubSub_NoSubscribers(t *testing.T) {
	t.Parallel()

	ps := memory.New()
	t.Cleanup(func() { _ = ps.Close() })

	assert.NoError(t, ps.Publish(context.Background(), "nobody", []byte("x")))
}

func TestPubSub_Cleanup(t *testing.T) {
	t.Parallel()

	ps := memory.New()
	t.Cleanup(func() { _ = ps.Close() })

	ch, cleanup, err := ps.Subscribe(context.Background(), "c")
	require.NoError(t, err)

	cleanup()
	cleanup()
	waitClosed(t, ch)

	assert.NoError(t, ps.Publish(context.Background(), "c", []byte("x")))
}

func TestPubSub_ContextCancel(t *testing.T) {
	t.Parallel()

	ps := memory.New()
	t.Cleanup(func() { _ = ps.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	ch, cleanup, err := ps.Subscribe(ctx, "c")
	require.NoError(t, err)
	defer cleanup()

	cancel()
	waitClosed(t, ch)
}

func TestPubSub_SlowSubscriberDrops(t *testing.T) {
	t.Parallel()

	ps := memory.New()
	t.Cleanup(func() { _ = ps.Close() })

	ch, cleanup, err := ps.Subscribe(context.Background(), "c")
	require.NoError(t, err)
	defer cleanup()

	for range 200 {
		require.NoError(t, ps.Publish(context.Background(), "c", []byte("x")))
	}
	assert.Len(t, ch, 64)
}

func TestPubSub_Close(t *testing.T) {
	t.Parallel()

	ps := memory.New()

	ch, cleanup, err := ps.Subscribe(context.Background(), "c")
	require.NoError(t, err)

	require.NoError(t, ps.Close())
	require.NoError(t, ps.Close())
	waitClosed(t, ch)
	cleanup()

	require.ErrorIs(t, ps.Publish(context.Background(), "c", nil), memory.ErrClosed)
	_, _, err = ps.Subscribe(context.Background(), "c")
	require.ErrorIs(t, err, memory.ErrClosed)
}
