package ws_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/turingarena/internal/api/ws"
	"github.com/gosuda/turingarena/internal/arena"
	"github.com/gosuda/turingarena/internal/domain"
	"github.com/gosuda/turingarena/internal/responder"
	"github.com/gosuda/turingarena/internal/store/memory"
	redisstore "github.com/gosuda/turingarena/internal/store/redis"
	"github.com/gosuda/turingarena/internal/turn"
)

// --- helpers ---

type nopSettler struct{}

func (nopSettler) Settle(context.Context, domain.Settlement) {}

type received struct {
	Type    domain.EventType `json:"type"`
	Content json.RawMessage  `json:"content"`
	Sender  *domain.Player   `json:"sender"`
}

func (r received) errorMessage(t *testing.T) string {
	t.Helper()
	require.Equal(t, domain.EventError, r.Type)
	var c domain.ErrorContent
	require.NoError(t, json.Unmarshal(r.Content, &c))
	return c.Message
}

func newServer(t *testing.T, opts ...ws.HubOption) (*httptest.Server, *arena.Registry) {
	t.Helper()

	ps := memory.New()
	hub := ws.NewHub(ps, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Go(func() { hub.Run(ctx) })

	cfg := arena.DefaultConfig()
	cfg.SessionLength = time.Hour
	cfg.SettlementDelay = time.Hour
	cfg.Jitter = responder.DelayRange{}

	sched := turn.NewScheduler()
	quiet := responder.NewScripted(responder.ScriptedConfig{Chance: 0})
	reg, err := arena.NewRegistry(cfg, hub, quiet.Factory, nopSettler{}, sched)
	require.NoError(t, err)

	srv := httptest.NewServer(hub.SessionHandler(reg))
	t.Cleanup(func() {
		srv.Close()
		reg.Stop()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = sched.Shutdown(shutdownCtx)
		cancel()
		wg.Wait()
		_ = ps.Close()
	})
	return srv, reg
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func next(t *testing.T, conn *websocket.Conn) received {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var r received
	require.NoError(t, wsjson.Read(ctx, conn, &r))
	return r
}

func send(t *testing.T, conn *websocket.Conn, typ domain.CommandType, content any) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cmd := map[string]any{"type": typ}
	if content != nil {
		cmd["content"] = content
	}
	require.NoError(t, wsjson.Write(ctx, conn, cmd))
}

// fullSession connects two participants to session id and drains their
// join notifications.
func fullSession(t *testing.T, srv *httptest.Server, id string) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	a := dial(t, srv, "?sessionId="+id)
	require.Equal(t, domain.EventSessionPending, next(t, a).Type)

	b := dial(t, srv, "?sessionId="+id)
	require.Equal(t, domain.EventSessionInfo, next(t, a).Type)
	require.Equal(t, domain.EventSessionInfo, next(t, b).Type)
	return a, b
}

// --- tests ---

func TestHub_MissingSessionID(t *testing.T) {
	t.Parallel()

	srv, reg := newServer(t)
	conn := dial(t, srv, "")

	assert.Equal(t, ws.MsgNoSessionID, next(t, conn).errorMessage(t))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	assert.Empty(t, reg.List())
}

func TestHub_Join(t *testing.T) {
	t.Parallel()

	srv, reg := newServer(t)

	a := dial(t, srv, "?sessionId=5")
	pending := next(t, a)
	require.Equal(t, domain.EventSessionPending, pending.Type)
	assert.JSONEq(t, `{"session_id":"5"}`, string(pending.Content))

	b := dial(t, srv, "?sessionId=5")
	for _, conn := range []*websocket.Conn{a, b} {
		info := next(t, conn)
		require.Equal(t, domain.EventSessionInfo, info.Type)

		var roster domain.RosterContent
		require.NoError(t, json.Unmarshal(info.Content, &roster))
		assert.Len(t, roster.Players, 6)
		assert.Equal(t, "5", roster.SessionID)
		assert.NotEmpty(t, roster.You)
	}

	s, err := reg.Lookup("5")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseInitialized, s.Phase())
}

func TestHub_JoinFullSession(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t)
	fullSession(t, srv, "5")

	c := dial(t, srv, "?sessionId=5")
	assert.Equal(t, ws.MsgCannotJoin, next(t, c).errorMessage(t))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestHub_StartBeforeFull(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t)
	a := dial(t, srv, "?sessionId=5")
	require.Equal(t, domain.EventSessionPending, next(t, a).Type)

	send(t, a, domain.CommandStartSession, nil)
	assert.Equal(t, ws.MsgCannotStart, next(t, a).errorMessage(t))
}

func TestHub_Game(t *testing.T) {
	t.Parallel()

	srv, reg := newServer(t)
	a, b := fullSession(t, srv, "5")

	send(t, a, domain.CommandStartSession, nil)
	require.Equal(t, domain.EventSessionStarted, next(t, a).Type)
	require.Equal(t, domain.EventSessionStarted, next(t, b).Type)

	send(t, a, domain.CommandChat, "hi")
	for _, conn := range []*websocket.Conn{a, b} {
		chat := next(t, conn)
		require.Equal(t, domain.EventChat, chat.Type)
		assert.JSONEq(t, `{"message":"hi"}`, string(chat.Content))
		require.NotNil(t, chat.Sender)
		assert.NotZero(t, chat.Sender.ID)
	}

	send(t, b, domain.CommandGetTopic, nil)
	for _, conn := range []*websocket.Conn{a, b} {
		topic := next(t, conn)
		require.Equal(t, domain.EventTopic, topic.Type)
		assert.JSONEq(t, `"`+arena.DefaultTopic+`"`, string(topic.Content))
	}

	s, err := reg.Lookup("5")
	require.NoError(t, err)
	transcript := s.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, "hi", transcript[1].Text)
}

func TestHub_BadCommands(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t)
	a := dial(t, srv, "?sessionId=5")
	require.Equal(t, domain.EventSessionPending, next(t, a).Type)

	send(t, a, "dance", nil)
	assert.Equal(t, ws.MsgUnknownCmd, next(t, a).errorMessage(t))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Write(ctx, websocket.MessageText, []byte("{not json")))
	assert.Equal(t, ws.MsgMalformedCmd, next(t, a).errorMessage(t))
}

func TestHub_ChatRateLimit(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t, ws.WithChatRate(0.001, 1))
	a, b := fullSession(t, srv, "5")

	send(t, a, domain.CommandStartSession, nil)
	require.Equal(t, domain.EventSessionStarted, next(t, a).Type)
	require.Equal(t, domain.EventSessionStarted, next(t, b).Type)

	send(t, a, domain.CommandChat, "one")
	require.Equal(t, domain.EventChat, next(t, a).Type)

	send(t, a, domain.CommandChat, "two")
	assert.Equal(t, ws.MsgTooFast, next(t, a).errorMessage(t))
}

type recordingPubSub struct {
	mu        sync.Mutex
	published []string
}

func (p *recordingPubSub) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, channel+" "+string(payload))
	return nil
}

func (p *recordingPubSub) Subscribe(context.Context, string) (<-chan []byte, func(), error) {
	return nil, func() {}, nil
}

func (p *recordingPubSub) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.published...)
}

func TestHub_SendOrderAndOverflow(t *testing.T) {
	t.Parallel()

	ps := &recordingPubSub{}
	hub := ws.NewHub(ps, ws.WithOutboxSize(2))

	hub.Send("1", "p", domain.ErrorEvent("first"))
	hub.Send("1", "p", domain.ErrorEvent("second"))
	hub.Send("1", "p", domain.ErrorEvent("dropped"))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Go(func() { hub.Run(ctx) })
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	require.Eventually(t, func() bool { return len(ps.snapshot()) == 2 }, time.Second, 5*time.Millisecond)

	channel := redisstore.ParticipantChannel("1", "p")
	assert.Equal(t, []string{
		channel + ` {"type":"error","content":{"message":"first"}}`,
		channel + ` {"type":"error","content":{"message":"second"}}`,
	}, ps.snapshot())
}
