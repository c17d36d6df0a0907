package chat

import (
	"fmt"
	"time"

	"github.com/PaulBabatuyi/marketChat-gRPC/internal/normalize"
)

// MessageType discriminates the payload a message carries.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageFile     MessageType = "file"
	MessageOffer    MessageType = "offer"
	MessageSystem   MessageType = "system"
	MessageLocation MessageType = "location"
)

// MessageStatus is the delivery status of a message. It only moves forward.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// CanAdvance reports whether a message may move from s to next. Failed is
// terminal and only reachable from sent.
func (s MessageStatus) CanAdvance(next MessageStatus) bool {
	if s == StatusFailed {
		return false
	}
	if next == StatusFailed {
		return s == StatusSent
	}
	return next.rank() > s.rank()
}

// Lifecycle is the content state of a message: Active → Edited* → Deleted.
type Lifecycle string

const (
	StateActive  Lifecycle = "active"
	StateEdited  Lifecycle = "edited"
	StateDeleted Lifecycle = "deleted"
)

// CanTransition reports whether the lifecycle may move from s to next.
// Nothing leaves Deleted.
func (s Lifecycle) CanTransition(next Lifecycle) bool {
	switch s {
	case StateActive, StateEdited:
		return next == StateEdited || next == StateDeleted
	}
	return false
}

// Attachment is a file owned by exactly one message.
type Attachment struct {
	FileName     string `bson:"file_name"`
	URL          string `bson:"url"`
	MimeType     string `bson:"mime_type,omitempty"`
	SizeBytes    int64  `bson:"size_bytes,omitempty"`
	Width        int32  `bson:"width,omitempty"`
	Height       int32  `bson:"height,omitempty"`
	ThumbnailURL string `bson:"thumbnail_url,omitempty"`
}

// Offer is the negotiation data of an offer message. Amount is in minor
// currency units.
type Offer struct {
	Amount    int64     `bson:"amount"`
	Currency  string    `bson:"currency,omitempty"`
	Message   string    `bson:"message,omitempty"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// Location is a shared map point.
type Location struct {
	Latitude  float64 `bson:"latitude"`
	Longitude float64 `bson:"longitude"`
	Label     string  `bson:"label,omitempty"`
}

// Message is one entry of a conversation. Its row and ordering position are
// kept forever; deletion clears content, never the row.
type Message struct {
	ID             string        `bson:"_id"`
	ConversationID string        `bson:"conversation_id"`
	SenderID       string        `bson:"sender_id"`
	Type           MessageType   `bson:"type"`
	Content        string        `bson:"content,omitempty"`
	Attachments    []Attachment  `bson:"attachments,omitempty"`
	Offer          *Offer        `bson:"offer,omitempty"`
	Location       *Location     `bson:"location,omitempty"`
	ReplyTo        string        `bson:"reply_to,omitempty"`
	Status         MessageStatus `bson:"status"`
	State          Lifecycle     `bson:"state"`
	CreatedAt      time.Time     `bson:"created_at"`
	EditedAt       *time.Time    `bson:"edited_at,omitempty"`
	DeletedAt      *time.Time    `bson:"deleted_at,omitempty"`
}

func (m *Message) IsEdited() bool  { return m.EditedAt != nil }
func (m *Message) IsDeleted() bool { return m.State == StateDeleted }

// Position is the message's place in the conversation order.
func (m *Message) Position() Cursor {
	return Cursor{At: m.CreatedAt, ID: m.ID}
}

// Redacted returns the message as any reader may see it. For a deleted
// message every content-bearing field is empty regardless of what storage
// still holds.
func (m Message) Redacted() Message {
	if !m.IsDeleted() {
		return m
	}
	m.Content = ""
	m.Attachments = nil
	m.Offer = nil
	m.Location = nil
	return m
}

// Edit replaces the text of a text message.
func (m *Message) Edit(content string, at time.Time) error {
	if !m.State.CanTransition(StateEdited) {
		return Invalid("message_id", "message is deleted")
	}
	if m.Type != MessageText {
		return Invalid("message_id", "only text messages can be edited")
	}
	p := TextPayload{Content: content}
	if err := p.validate(at); err != nil {
		return err
	}
	at = Timestamp(at)
	m.Content = normalize.Content(content)
	m.State = StateEdited
	m.EditedAt = &at
	return nil
}

// Delete moves the message to Deleted and clears its content. Deleting an
// already deleted message reports false and changes nothing.
func (m *Message) Delete(at time.Time) bool {
	if !m.State.CanTransition(StateDeleted) {
		return false
	}
	at = Timestamp(at)
	m.State = StateDeleted
	m.DeletedAt = &at
	*m = m.Redacted()
	return true
}

// PreviewRunes bounds the conversation list preview.
const PreviewRunes = 100

// Preview renders the one-line summary shown in conversation lists.
func Preview(m *Message) string {
	if m.IsDeleted() {
		return "Message deleted"
	}
	switch m.Type {
	case MessageImage:
		if m.Content != "" {
			return normalize.Preview("📷 "+m.Content, PreviewRunes)
		}
		return "📷 Photo"
	case MessageFile:
		if len(m.Attachments) > 0 {
			return normalize.Preview("📎 "+m.Attachments[0].FileName, PreviewRunes)
		}
		return "📎 File"
	case MessageOffer:
		if m.Offer == nil {
			return "Offer"
		}
		return normalize.Preview("Offer: "+FormatAmount(m.Offer.Amount, m.Offer.Currency), PreviewRunes)
	case MessageLocation:
		if m.Location != nil && m.Location.Label != "" {
			return normalize.Preview("📍 "+m.Location.Label, PreviewRunes)
		}
		return "📍 Location"
	}
	return normalize.Preview(m.Content, PreviewRunes)
}

// FormatAmount renders minor units with two decimals.
func FormatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	s := fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
	if currency != "" {
		s += " " + currency
	}
	return s
}

// Reaction is a user's single reaction to a message.
type Reaction struct {
	ID             string    `bson:"_id"`
	MessageID      string    `bson:"message_id"`
	ConversationID string    `bson:"conversation_id"`
	UserID         string    `bson:"user_id"`
	Symbol         string    `bson:"symbol"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

const MaxSymbolRunes = 32

// NormalizeSymbol returns the canonical form of a reaction symbol.
func NormalizeSymbol(s string) (string, error) {
	s = normalize.Symbol(s)
	if s == "" {
		return "", Invalid("symbol", "required")
	}
	if normalize.Runes(s) > MaxSymbolRunes {
		return "", Invalid("symbol", "too long")
	}
	return s, nil
}

// ReadReceipt is the outcome of a mark_read call.
type ReadReceipt struct {
	ConversationID string
	UserID         string
	MessageID      string
	ReadAt         time.Time
	UnreadCount    int64
}

// MessagePage is one page of conversation history. NextCursor points after
// the last returned message so that a client at the end of the history can
// poll forward with it; HasMore reports whether more messages already exist.
type MessagePage struct {
	Messages   []Message
	NextCursor string
	HasMore    bool
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// PageSize clamps a requested page size.
func PageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	}
	return n
}

// Timestamp is the storage precision of every persisted time.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
