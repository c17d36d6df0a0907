// Package realtime delivers events to connected users: a per-user connection
// registry, a conversation broadcaster and the typing indicator service.
package realtime

import "time"

// EventType names an outbound real-time event.
type EventType string

const (
	EventNewMessage      EventType = "new_message"
	EventTyping          EventType = "typing"
	EventTypingStopped   EventType = "typing_stopped"
	EventReadReceipt     EventType = "read_receipt"
	EventReactionAdded   EventType = "reaction_added"
	EventReactionRemoved EventType = "reaction_removed"
	EventMessageEdited   EventType = "message_edited"
	EventMessageDeleted  EventType = "message_deleted"
	// EventError reports a rejected inbound frame to its sender only.
	EventError EventType = "error"
)

// Event is one outbound notification. Data is encoded by the connection's
// sink.
type Event struct {
	Type           EventType
	ConversationID string
	Data           any
}

// TypingData is the payload of typing and typing_stopped events.
type TypingData struct {
	UserID    string     `json:"user_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Metrics receives registry and typing counters. The zero configuration uses
// a no-op implementation.
type Metrics interface {
	ConnectionsChanged(n int)
	EventDelivered(t EventType)
	EventDropped(t EventType, reason string)
	TypingUpdated(t EventType)
}

type nopMetrics struct{}

func (nopMetrics) ConnectionsChanged(int)         {}
func (nopMetrics) EventDelivered(EventType)       {}
func (nopMetrics) EventDropped(EventType, string) {}
func (nopMetrics) TypingUpdated(EventType)        {}
