package domain

import (
	"encoding/json"
	"strings"
)

type EventType string

const (
	EventSessionPending  EventType = "session_pending"
	EventSessionInfo     EventType = "session_info"
	EventSessionStarted  EventType = "session_started"
	EventChat            EventType = "chat"
	EventTopic           EventType = "topic"
	EventSessionFinished EventType = "session_finished"
	EventError           EventType = "error"
)

// Event is the envelope delivered from a session to a participant.
type Event struct {
	Type    EventType `json:"type"`
	Content any       `json:"content"`
	Sender  *Player   `json:"sender,omitempty"`
}

// PendingContent is the payload of session_pending.
type PendingContent struct {
	SessionID string `json:"session_id"`
}

// RosterContent is the payload of session_info, session_started and session_finished.
type RosterContent struct {
	Players   []Player `json:"players"`
	You       string   `json:"you"`
	SessionID string   `json:"session_id"`
}

// ChatContent is the payload of chat.
type ChatContent struct {
	Message string `json:"message"`
}

// ErrorContent is the payload of error.
type ErrorContent struct {
	Message string `json:"message"`
}

// ErrorEvent builds an error envelope with a human-readable message.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Content: ErrorContent{Message: message}}
}

type CommandType string

const (
	CommandChat         CommandType = "chat"
	CommandGetTopic     CommandType = "get_topic"
	CommandStartSession CommandType = "start_session"
)

// Command is sent by a participant to its session.
type Command struct {
	Type    CommandType     `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Text returns the command content as chat text. A JSON string is unquoted;
// any other JSON value is returned verbatim.
func (c Command) Text() string {
	if len(c.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(c.Content, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(c.Content))
}
