package chat

import (
	"strings"
	"time"

	"github.com/PaulBabatuyi/marketChat-gRPC/internal/normalize"
)

const (
	MaxTextRunes      = 5000
	MaxOfferNoteRunes = 1000
	MaxAttachments    = 10
	MaxCaptionRunes   = 1000
)

// Payload is the typed body of a new message. The set of variants is closed:
// TextPayload, ImagePayload, FilePayload, OfferPayload, LocationPayload and
// SystemPayload.
type Payload interface {
	Kind() MessageType
	validate(now time.Time) error
	apply(m *Message)
}

type TextPayload struct {
	Content string
}

func (TextPayload) Kind() MessageType { return MessageText }

func (p TextPayload) validate(time.Time) error {
	c := normalize.Content(p.Content)
	if c == "" {
		return Invalid("content", "required")
	}
	if normalize.Runes(c) > MaxTextRunes {
		return Invalid("content", "too long")
	}
	return nil
}

func (p TextPayload) apply(m *Message) { m.Content = normalize.Content(p.Content) }

// ImagePayload is one or more images with an optional caption.
type ImagePayload struct {
	Caption     string
	Attachments []Attachment
}

func (ImagePayload) Kind() MessageType { return MessageImage }

func (p ImagePayload) validate(time.Time) error {
	return validateFiles(p.Caption, p.Attachments)
}

func (p ImagePayload) apply(m *Message) {
	m.Content = normalize.Content(p.Caption)
	m.Attachments = p.Attachments
}

// FilePayload is one or more documents with an optional caption.
type FilePayload struct {
	Caption     string
	Attachments []Attachment
}

func (FilePayload) Kind() MessageType { return MessageFile }

func (p FilePayload) validate(time.Time) error {
	return validateFiles(p.Caption, p.Attachments)
}

func (p FilePayload) apply(m *Message) {
	m.Content = normalize.Content(p.Caption)
	m.Attachments = p.Attachments
}

func validateFiles(caption string, atts []Attachment) error {
	if len(atts) == 0 {
		return Invalid("attachments", "at least one attachment is required")
	}
	if len(atts) > MaxAttachments {
		return Invalid("attachments", "too many attachments")
	}
	for _, a := range atts {
		if strings.TrimSpace(a.FileName) == "" || strings.TrimSpace(a.URL) == "" {
			return Invalid("attachments", "file name and url are required")
		}
		if a.SizeBytes < 0 || a.Width < 0 || a.Height < 0 {
			return Invalid("attachments", "negative size")
		}
	}
	if normalize.Runes(normalize.Content(caption)) > MaxCaptionRunes {
		return Invalid("content", "caption too long")
	}
	return nil
}

// OfferPayload proposes a price for the listing under discussion.
type OfferPayload struct {
	Amount    int64
	Currency  string
	Message   string
	ExpiresAt time.Time
}

func (OfferPayload) Kind() MessageType { return MessageOffer }

func (p OfferPayload) validate(now time.Time) error {
	if p.Amount <= 0 {
		return Invalid("offer.amount", "must be greater than zero")
	}
	if !p.ExpiresAt.After(now) {
		return Invalid("offer.expires_at", "must be in the future")
	}
	if normalize.Runes(normalize.Content(p.Message)) > MaxOfferNoteRunes {
		return Invalid("offer.message", "too long")
	}
	if c := p.Currency; c != "" && (len(c) != 3 || strings.ToUpper(c) != c) {
		return Invalid("offer.currency", "expected a 3 letter ISO code")
	}
	return nil
}

func (p OfferPayload) apply(m *Message) {
	m.Offer = &Offer{
		Amount:    p.Amount,
		Currency:  p.Currency,
		Message:   normalize.Content(p.Message),
		ExpiresAt: Timestamp(p.ExpiresAt),
	}
}

type LocationPayload struct {
	Latitude  float64
	Longitude float64
	Label     string
}

func (LocationPayload) Kind() MessageType { return MessageLocation }

func (p LocationPayload) validate(time.Time) error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return Invalid("location.latitude", "out of range")
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return Invalid("location.longitude", "out of range")
	}
	return nil
}

func (p LocationPayload) apply(m *Message) {
	m.Location = &Location{Latitude: p.Latitude, Longitude: p.Longitude, Label: normalize.Name(p.Label)}
}

// SystemPayload is written by the service itself, never accepted from clients.
type SystemPayload struct {
	Content string
}

func (SystemPayload) Kind() MessageType { return MessageSystem }

func (p SystemPayload) validate(now time.Time) error {
	return TextPayload(p).validate(now)
}

func (p SystemPayload) apply(m *Message) { m.Content = normalize.Content(p.Content) }

// ValidateClientPayload checks a payload submitted by a user.
func ValidateClientPayload(p Payload, now time.Time) error {
	if p == nil {
		return Invalid("payload", "required")
	}
	if p.Kind() == MessageSystem {
		return Invalid("type", "system messages cannot be sent by clients")
	}
	return p.validate(now)
}

// Draft is a validated message ready to be stored.
type Draft struct {
	ConversationID string
	SenderID       string
	ReplyTo        string
	Payload        Payload
}

// Build turns a draft into a message. The payload must already be validated.
func (d Draft) Build(id string, at time.Time) Message {
	m := Message{
		ID:             id,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		Type:           d.Payload.Kind(),
		ReplyTo:        d.ReplyTo,
		Status:         StatusSent,
		State:          StateActive,
		CreatedAt:      Timestamp(at),
	}
	d.Payload.apply(&m)
	return m
}
