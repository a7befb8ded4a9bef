// Package ws connects participants to arena sessions over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/gosuda/turingarena/internal/arena"
	"github.com/gosuda/turingarena/internal/domain"
	redisstore "github.com/gosuda/turingarena/internal/store/redis"
)

// Messages shown to participants.
const (
	MsgNoSessionID  = "No session id provided!"
	MsgCannotJoin   = "Cannot join session!"
	MsgCannotStart  = "Cannot start session!"
	MsgTooFast      = "Too many messages!"
	MsgUnknownCmd   = "Unknown command!"
	MsgMalformedCmd = "Malformed command!"
	MsgNotInSession = "You are not in this session!"
)

const defaultOutboxLen = 1024

// PubSub carries serialized events on named channels.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Sessions resolves the session a participant connects to.
type Sessions interface {
	GetOrCreate(id string) *arena.Session
}

type outgoing struct {
	channel string
	payload []byte
}

// Hub delivers session events to participants through pub/sub, one channel
// per participant, and turns participant commands into session operations.
type Hub struct {
	pubsub         PubSub
	outbox         chan outgoing
	chatRate       rate.Limit
	chatBurst      int
	originPatterns []string
}

// HubOption configures optional Hub parameters.
type HubOption func(*Hub)

// WithChatRate limits chat commands per connection.
func WithChatRate(perSecond float64, burst int) HubOption {
	return func(h *Hub) {
		h.chatRate = rate.Limit(perSecond)
		h.chatBurst = burst
	}
}

// WithOutboxSize sets how many events may wait for publication.
func WithOutboxSize(n int) HubOption {
	return func(h *Hub) {
		h.outbox = make(chan outgoing, n)
	}
}

// WithOriginPatterns allows cross-origin WebSocket handshakes from hosts
// matching patterns.
func WithOriginPatterns(patterns []string) HubOption {
	return func(h *Hub) {
		h.originPatterns = patterns
	}
}

// NewHub creates a hub. Run must be started for events to be delivered.
func NewHub(pubsub PubSub, opts ...HubOption) *Hub {
	h := &Hub{
		pubsub:    pubsub,
		outbox:    make(chan outgoing, defaultOutboxLen),
		chatRate:  rate.Inf,
		chatBurst: 1,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Send queues evt for one participant. It never blocks: when the outbox is
// full the event is dropped and logged.
func (h *Hub) Send(sessionID, participantID string, evt domain.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).
			Str("session_id", sessionID).
			Str("event", string(evt.Type)).
			Msg("ws.Hub.Send: marshal")
		return
	}

	select {
	case h.outbox <- outgoing{channel: redisstore.ParticipantChannel(sessionID, participantID), payload: payload}:
	default:
		log.Warn().
			Str("session_id", sessionID).
			Str("participant_id", participantID).
			Str("event", string(evt.Type)).
			Msg("ws.Hub.Send: outbox full, event dropped")
	}
}

// Run publishes queued events in order until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-h.outbox:
			if err := h.pubsub.Publish(ctx, out.channel, out.payload); err != nil {
				log.Warn().Err(err).Str("channel", out.channel).Msg("ws.Hub.Run: publish")
			}
		}
	}
}

// SessionHandler serves participants of the session named by the sessionId
// query parameter. Connecting joins the session.
func (h *Hub) SessionHandler(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
		if err != nil {
			log.Error().Err(err).Msg("websocket accept")
			return
		}
		defer conn.CloseNow()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sessionID := r.URL.Query().Get("sessionId")
		if sessionID == "" {
			rejectConn(ctx, conn, MsgNoSessionID)
			return
		}

		participantID := uuid.NewString()
		logger := log.With().Str("session_id", sessionID).Str("participant_id", participantID).Logger()

		// Subscribe before joining so the join notification is not missed.
		messages, cleanup, err := h.pubsub.Subscribe(ctx, redisstore.ParticipantChannel(sessionID, participantID))
		if err != nil {
			logger.Error().Err(err).Msg("websocket subscribe")
			_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
			return
		}
		defer cleanup()

		session := sessions.GetOrCreate(sessionID)
		if err := session.Join(participantID); err != nil {
			logger.Info().Err(err).Msg("websocket join rejected")
			rejectConn(ctx, conn, MsgCannotJoin)
			return
		}
		logger.Info().Msg("websocket participant joined")

		go func() {
			defer cancel()
			h.readCommands(ctx, conn, session, participantID)
		}()

		for {
			select {
			case <-ctx.Done():
				_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
				return
			case msg, msgOK := <-messages:
				if !msgOK {
					_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
					return
				}
				if writeErr := conn.Write(ctx, websocket.MessageText, msg); writeErr != nil {
					logger.Debug().Err(writeErr).Msg("websocket write")
					return
				}
			}
		}
	}
}

func (h *Hub) readCommands(ctx context.Context, conn *websocket.Conn, session *arena.Session, participantID string) {
	limiter := rate.NewLimiter(h.chatRate, h.chatBurst)
	reply := func(msg string) {
		h.Send(session.ID(), participantID, domain.ErrorEvent(msg))
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				log.Debug().Err(err).Str("participant_id", participantID).Msg("websocket read")
			}
			return
		}

		var cmd domain.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			reply(MsgMalformedCmd)
			continue
		}

		switch cmd.Type {
		case domain.CommandChat:
			if !limiter.Allow() {
				reply(MsgTooFast)
				continue
			}
			if err := session.Chat(participantID, cmd.Text()); err != nil {
				reply(MsgNotInSession)
			}
		case domain.CommandGetTopic:
			session.NotifyTopic()
		case domain.CommandStartSession:
			if err := session.Start(); err != nil {
				reply(MsgCannotStart)
			}
		default:
			reply(MsgUnknownCmd)
		}
	}
}

// rejectConn writes a final error event and closes the connection.
func rejectConn(ctx context.Context, conn *websocket.Conn, msg string) {
	if err := wsjson.Write(ctx, conn, domain.ErrorEvent(msg)); err != nil {
		log.Debug().Err(err).Msg("websocket write")
	}
	_ = conn.Close(websocket.StatusPolicyViolation, msg)
}
