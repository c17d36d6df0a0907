// Package chat holds the messaging domain: conversations, participants,
// messages and their lifecycle, reactions, reports, and the validation rules
// every write passes through before it reaches storage.
package chat

import (
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/PaulBabatuyi/marketChat-gRPC/internal/normalize"
)

// ConversationType selects the membership rules of a conversation.
type ConversationType string

const (
	ConversationDirect  ConversationType = "direct"
	ConversationListing ConversationType = "listing"
	ConversationGroup   ConversationType = "group"
)

// Valid reports whether t is a known conversation type.
func (t ConversationType) Valid() bool {
	switch t {
	case ConversationDirect, ConversationListing, ConversationGroup:
		return true
	}
	return false
}

// Pairwise reports whether t is restricted to exactly two members.
func (t ConversationType) Pairwise() bool {
	return t == ConversationDirect || t == ConversationListing
}

const (
	MaxGroupMembers  = 256
	MaxTitleRunes    = 100
	MaxCustomNameLen = 100
)

// ListingCategories are the external listing kinds a conversation may refer to.
var ListingCategories = map[string]bool{
	"boats":       true,
	"cars":        true,
	"jobs":        true,
	"properties":  true,
	"electronics": true,
	"motorcycles": true,
	"travel":      true,
}

// ListingRef is a cached pointer to an external listing. Title and price are a
// snapshot taken when the conversation was created and may be empty when the
// listing service was unavailable at that moment.
type ListingRef struct {
	Category string `bson:"category" json:"category"`
	ID       string `bson:"id" json:"id"`
	Title    string `bson:"title,omitempty" json:"title,omitempty"`
	Price    int64  `bson:"price,omitempty" json:"price,omitempty"`
	Currency string `bson:"currency,omitempty" json:"currency,omitempty"`
}

// Validate checks the reference part of the listing, not the snapshot.
func (l *ListingRef) Validate() error {
	if l == nil {
		return Invalid("listing", "required for listing conversations")
	}
	if !ListingCategories[l.Category] {
		return Invalid("listing.category", "unknown category "+l.Category)
	}
	if strings.TrimSpace(l.ID) == "" {
		return Invalid("listing.id", "required")
	}
	return nil
}

// Conversation is an addressable thread among a set of participants. It is
// never hard-deleted.
type Conversation struct {
	ID                 string           `bson:"_id"`
	Type               ConversationType `bson:"type"`
	Title              string           `bson:"title,omitempty"`
	Listing            *ListingRef      `bson:"listing,omitempty"`
	DirectKey          string           `bson:"direct_key,omitempty"`
	CreatedBy          string           `bson:"created_by"`
	CreatedAt          time.Time        `bson:"created_at"`
	ActivityAt         time.Time        `bson:"activity_at"`
	LastMessageAt      *time.Time       `bson:"last_message_at,omitempty"`
	LastMessageID      string           `bson:"last_message_id,omitempty"`
	LastMessagePreview string           `bson:"last_message_preview,omitempty"`
}

// Participant is one user's membership in a conversation. A user holds at
// most one active membership per conversation; departed rows are kept.
type Participant struct {
	ID                   string     `bson:"_id"`
	ConversationID       string     `bson:"conversation_id"`
	UserID               string     `bson:"user_id"`
	Active               bool       `bson:"active"`
	JoinedAt             time.Time  `bson:"joined_at"`
	LeftAt               *time.Time `bson:"left_at,omitempty"`
	LastReadAt           *time.Time `bson:"last_read_at,omitempty"`
	LastReadMessageID    string     `bson:"last_read_message_id,omitempty"`
	UnreadCount          int64      `bson:"unread_count"`
	NotificationsEnabled bool       `bson:"notifications_enabled"`
	IsAdmin              bool       `bson:"is_admin"`
}

// ReadPosition returns the participant's read pointer, or false when nothing
// has been read yet.
func (p Participant) ReadPosition() (Cursor, bool) {
	if p.LastReadAt == nil {
		return Cursor{}, false
	}
	return Cursor{At: *p.LastReadAt, ID: p.LastReadMessageID}, true
}

// Settings is a user's private override for a conversation.
type Settings struct {
	ConversationID string    `bson:"conversation_id"`
	UserID         string    `bson:"user_id"`
	Muted          bool      `bson:"muted"`
	Archived       bool      `bson:"archived"`
	Blocked        bool      `bson:"blocked"`
	CustomName     string    `bson:"custom_name,omitempty"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

// SettingsPatch carries only the fields a caller wants to change.
type SettingsPatch struct {
	Muted      *bool
	Archived   *bool
	Blocked    *bool
	CustomName *string
}

// Empty reports whether the patch changes nothing.
func (p SettingsPatch) Empty() bool {
	return p.Muted == nil && p.Archived == nil && p.Blocked == nil && p.CustomName == nil
}

// Validate normalizes the custom name in place and checks its length.
func (p *SettingsPatch) Validate() error {
	if p.Empty() {
		return Invalid("settings", "nothing to update")
	}
	if p.CustomName != nil {
		name := normalize.Name(*p.CustomName)
		if normalize.Runes(name) > MaxCustomNameLen {
			return Invalid("custom_name", "too long")
		}
		p.CustomName = &name
	}
	return nil
}

// ConversationView is a conversation as one participant sees it.
type ConversationView struct {
	Conversation Conversation
	Viewer       Participant
	Settings     Settings
	Participants []Participant
}

// NewConversation describes a conversation to create.
type NewConversation struct {
	Type         ConversationType
	InitiatorID  string
	Participants []string
	Listing      *ListingRef
	Title        string
}

// Members validates cardinality and returns the full member list with the
// initiator first. Duplicate ids, including the initiator listed again, are
// rejected rather than silently merged.
func (n *NewConversation) Members() ([]string, error) {
	if !n.Type.Valid() {
		return nil, Invalid("type", "unknown conversation type")
	}
	if strings.TrimSpace(n.InitiatorID) == "" {
		return nil, Invalid("initiator", "required")
	}

	members := make([]string, 0, len(n.Participants)+1)
	seen := map[string]bool{n.InitiatorID: true}
	members = append(members, n.InitiatorID)
	for _, id := range n.Participants {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, Invalid("participant_ids", "empty id")
		}
		if seen[id] {
			return nil, Invalid("participant_ids", "duplicate id "+id)
		}
		seen[id] = true
		members = append(members, id)
	}

	switch {
	case n.Type.Pairwise() && len(members) != 2:
		return nil, Invalid("participant_ids", string(n.Type)+" conversations need exactly 2 distinct participants")
	case n.Type == ConversationGroup && len(members) < 2:
		return nil, Invalid("participant_ids", "group conversations need at least 2 participants")
	case n.Type == ConversationGroup && len(members) > MaxGroupMembers:
		return nil, Invalid("participant_ids", "too many participants")
	}

	if n.Type == ConversationListing {
		if err := n.Listing.Validate(); err != nil {
			return nil, err
		}
	} else if n.Listing != nil && n.Type == ConversationDirect {
		return nil, Invalid("listing", "direct conversations carry no listing; use type listing")
	}

	n.Title = normalize.Name(n.Title)
	if normalize.Runes(n.Title) > MaxTitleRunes {
		return nil, Invalid("title", "too long")
	}
	return members, nil
}

// DirectKey identifies a pairwise conversation independent of who started it.
// Group conversations have no key. The key is a digest so that listing ids of
// any length produce a fixed-size index entry.
func DirectKey(t ConversationType, members []string, listing *ListingRef) string {
	if !t.Pairwise() {
		return ""
	}
	ids := append([]string(nil), members...)
	sort.Strings(ids)

	parts := []string{string(t)}
	parts = append(parts, ids...)
	if t == ConversationListing && listing != nil {
		parts = append(parts, listing.Category, listing.ID)
	}
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}
