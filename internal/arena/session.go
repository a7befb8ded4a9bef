package arena

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/turingarena/internal/domain"
	"github.com/gosuda/turingarena/internal/responder"
	"github.com/gosuda/turingarena/internal/turn"
)

// Broadcaster delivers an event to one participant of a session.
// Send must not block and must not fail the caller.
type Broadcaster interface {
	Send(sessionID, participantID string, evt domain.Event)
}

// Settler reports the human roster of a session to the ledger.
type Settler interface {
	Settle(ctx context.Context, s domain.Settlement)
}

// Queue serializes turn cycles per session.
type Queue interface {
	Enqueue(key string, job turn.Job) error
	Pending(key string) int
	Busy(key string) bool
}

// bot is a responder bound to its roster entry.
type bot struct {
	player    domain.Player
	responder responder.Responder
}

// Session owns the seats, roster, transcript and lifecycle of one game.
// Every mutation happens under mu; readers get copies.
type Session struct {
	id  string
	cfg Config

	broadcaster Broadcaster
	factory     responder.Factory
	settler     Settler
	queue       Queue

	mu         sync.Mutex
	rng        *rand.Rand
	phase      domain.Phase
	seats      []string        // participant ids, join order
	players    []domain.Player // seats first, then bots
	bots       []bot
	transcript []domain.Message
	timers     []*time.Timer
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Phase returns the current lifecycle phase.
func (s *Session) Phase() domain.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// SeatsTaken returns how many participants have joined.
func (s *Session) SeatsTaken() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seats)
}

// Transcript returns a snapshot of the message log.
func (s *Session) Transcript() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneMessages(s.transcript)
}

// Roster returns the full roster in a fresh display order. It is empty until
// the session is initialized.
func (s *Session) Roster() []domain.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Shuffle(s.rng, s.players)
}

// Info is a point-in-time summary of a session.
type Info struct {
	ID         string
	Phase      domain.Phase
	SeatsTaken int
	Seats      int
	Players    []domain.Player
	Messages   int

	PendingCycles int  // turn cycles queued behind the running one
	CycleRunning  bool // a turn cycle is executing
}

// Info returns a consistent summary of the session.
func (s *Session) Info() Info {
	pending, running := s.queue.Pending(s.id), s.queue.Busy(s.id)

	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:            s.id,
		Phase:         s.phase,
		SeatsTaken:    len(s.seats),
		Seats:         s.cfg.Seats,
		Players:       Shuffle(s.rng, s.players),
		Messages:      len(s.transcript),
		PendingCycles: pending,
		CycleRunning:  running,
	}
}

// Join seats participantID. Filling the last seat initializes the session.
func (s *Session) Join(participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhasePending || len(s.seats) >= s.cfg.Seats {
		return fmt.Errorf("arena.Session.Join(%s): %w", s.id, domain.ErrSessionFull)
	}
	s.seats = append(s.seats, participantID)

	if len(s.seats) < s.cfg.Seats {
		s.broadcaster.Send(s.id, participantID, domain.Event{
			Type:    domain.EventSessionPending,
			Content: domain.PendingContent{SessionID: s.id},
		})
		return nil
	}

	s.initializeLocked()
	return nil
}

func (s *Session) initializeLocked() {
	if !s.transitionLocked(domain.PhaseInitialized) {
		return
	}
	s.players = drawRoster(s.rng, s.cfg.Names, s.cfg.Seats+s.cfg.Responders)

	for i, p := range s.players[s.cfg.Seats:] {
		identity := responder.Identity{
			Name:    p.Name,
			Persona: responder.Persona(responder.DefaultTraits[i%len(responder.DefaultTraits)]),
		}
		r, err := s.factory(identity)
		if err != nil {
			log.Error().Err(err).
				Str("session_id", s.id).
				Str("responder", p.Name).
				Msg("arena.Session: responder unavailable, it will stay silent")
			r = silentResponder{}
		}
		s.bots = append(s.bots, bot{player: p, responder: r})
	}

	s.announceLocked(domain.EventSessionInfo)

	log.Info().Str("session_id", s.id).Int("players", len(s.players)).Msg("arena.Session: initialized")
}

// Start begins the game. It fails until every seat is taken and is a no-op
// once the game has started.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case domain.PhasePending:
		return fmt.Errorf("arena.Session.Start(%s): %w", s.id, domain.ErrNotInitialized)
	case domain.PhaseRunning, domain.PhaseFinished:
		return nil
	}
	if !s.transitionLocked(domain.PhaseRunning) {
		return nil
	}

	s.announceLocked(domain.EventSessionStarted)
	s.appendLocked(domain.GameMaster, s.seedText(), true)

	s.timers = append(s.timers,
		time.AfterFunc(s.cfg.SessionLength, s.finish),
		time.AfterFunc(s.cfg.SettlementDelay, s.settle),
	)

	log.Info().Str("session_id", s.id).Msg("arena.Session: started")
	return nil
}

func (s *Session) seedText() string {
	roster, err := json.Marshal(Shuffle(s.rng, s.players))
	if err != nil {
		roster = []byte("[]")
	}
	return fmt.Sprintf("Let the game begin! Player names are %s. Discussion topic is %s", roster, s.cfg.Topic)
}

// AppendMessage adds a message to the log, broadcasts it and schedules a turn
// cycle. It reports false, changing nothing, unless the session is running.
func (s *Session) AppendMessage(speaker, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(speaker, text, false)
}

func (s *Session) appendLocked(speaker, text string, silent bool) bool {
	if s.phase != domain.PhaseRunning {
		return false
	}

	s.transcript = append(s.transcript, domain.Message{Speaker: speaker, Text: text})
	if !silent {
		sender := s.playerLocked(speaker)
		s.broadcastLocked(domain.Event{
			Type:    domain.EventChat,
			Content: domain.ChatContent{Message: text},
			Sender:  &sender,
		})
	}

	if err := s.queue.Enqueue(s.id, s.cycle); err != nil {
		log.Warn().Err(err).Str("session_id", s.id).Msg("arena.Session: turn cycle not scheduled")
	}
	return true
}

// Chat appends text on behalf of the seated participant. Blank text is ignored.
func (s *Session) Chat(participantID, text string) error {
	text = strings.TrimSpace(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	seat := s.seatLocked(participantID)
	if seat < 0 {
		return fmt.Errorf("arena.Session.Chat(%s): participant %s: %w", s.id, participantID, domain.ErrNotFound)
	}
	if text == "" || len(s.players) == 0 {
		return nil
	}
	s.appendLocked(s.players[seat].Name, text, false)
	return nil
}

// NotifyTopic sends the discussion topic to every seated participant.
func (s *Session) NotifyTopic() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(domain.Event{Type: domain.EventTopic, Content: s.cfg.Topic})
}

func (s *Session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.transitionLocked(domain.PhaseFinished) {
		return
	}
	s.announceLocked(domain.EventSessionFinished)

	log.Info().Str("session_id", s.id).Int("messages", len(s.transcript)).Msg("arena.Session: finished")
}

func (s *Session) settle() {
	sessionID, err := strconv.ParseInt(s.id, 10, 64)
	if err != nil {
		log.Error().Err(err).Str("session_id", s.id).Msg("arena.Session: session id is not numeric, settlement skipped")
		return
	}

	s.mu.Lock()
	ids := make([]int64, 0, s.cfg.Seats)
	for _, p := range s.players[:s.cfg.Seats] {
		ids = append(ids, int64(p.ID))
	}
	s.mu.Unlock()

	s.settler.Settle(context.Background(), domain.Settlement{SessionID: sessionID, PlayerIDs: ids})
}

// stop disarms the session timers. Replies already scheduled are not affected.
func (s *Session) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timers {
		t.Stop()
	}
}

// transitionLocked moves the session to phase to when the state machine
// allows it and reports whether it did.
func (s *Session) transitionLocked(to domain.Phase) bool {
	if !s.phase.ValidTransition(to) {
		log.Debug().
			Str("session_id", s.id).
			Str("from", string(s.phase)).
			Str("to", string(to)).
			Msg("arena.Session: phase transition refused")
		return false
	}
	s.phase = to
	return true
}

// announceLocked sends a roster event to every seat, each with its own
// display order and identity.
func (s *Session) announceLocked(typ domain.EventType) {
	for i, pid := range s.seats {
		s.broadcaster.Send(s.id, pid, domain.Event{
			Type: typ,
			Content: domain.RosterContent{
				Players:   Shuffle(s.rng, s.players),
				You:       s.players[i].Name,
				SessionID: s.id,
			},
		})
	}
}

func (s *Session) broadcastLocked(evt domain.Event) {
	for _, pid := range s.seats {
		s.broadcaster.Send(s.id, pid, evt)
	}
}

func (s *Session) seatLocked(participantID string) int {
	for i, pid := range s.seats {
		if pid == participantID {
			return i
		}
	}
	return -1
}

// playerLocked resolves a speaker name to its roster entry. Names outside the
// roster get id 0.
func (s *Session) playerLocked(name string) domain.Player {
	for _, p := range s.players {
		if p.Name == name {
			return p
		}
	}
	return domain.Player{Name: name}
}

type silentResponder struct{}

func (silentResponder) Evaluate(context.Context, []domain.Message) (responder.Outcome, error) {
	return responder.Silent(), nil
}
