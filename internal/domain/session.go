package domain

import "slices"

type Phase string

const (
	PhasePending     Phase = "pending"
	PhaseInitialized Phase = "initialized"
	PhaseRunning     Phase = "running"
	PhaseFinished    Phase = "finished"
)

// ValidTransition checks if a session phase transition is allowed.
// Allowed: pending->initialized, initialized->running, running->finished.
func (p Phase) ValidTransition(to Phase) bool {
	switch p {
	case PhasePending:
		return to == PhaseInitialized
	case PhaseInitialized:
		return to == PhaseRunning
	case PhaseRunning:
		return to == PhaseFinished
	default:
		return false
	}
}

// GameMaster is the speaker name of the silent seed message.
const GameMaster = "Game_Master"

// Message is a single chat turn. Its position in the log is its arrival order.
type Message struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Player binds a display name to the numeric id used for settlement.
type Player struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// Settlement is the payload reported to the ledger once per session.
type Settlement struct {
	SessionID int64
	PlayerIDs []int64 // human participants, seat order
}

// CloneMessages returns a copy of msgs that shares no backing array.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return []Message{}
	}
	return slices.Clone(msgs)
}
