// Package v1 defines the chat.v1.ChatService wire contract: request and
// response messages, the stream frames, the service descriptor and a client.
// Messages are plain structs carried by the JSON codec registered in this
// package.
package v1

import (
	"encoding/json"
	"time"
)

type ListingRef struct {
	Category string `json:"category"`
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	Price    int64  `json:"price,omitempty"`
	Currency string `json:"currency,omitempty"`
}

type Settings struct {
	Muted      bool       `json:"muted"`
	Archived   bool       `json:"archived"`
	Blocked    bool       `json:"blocked"`
	CustomName string     `json:"custom_name,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

type Participant struct {
	UserID            string    `json:"user_id"`
	JoinedAt          time.Time `json:"joined_at"`
	IsAdmin           bool      `json:"is_admin,omitempty"`
	LastReadMessageID string    `json:"last_read_message_id,omitempty"`
}

type TypingUser struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Conversation is a conversation as seen by the calling user.
type Conversation struct {
	ID                 string        `json:"id"`
	Type               string        `json:"type"`
	Title              string        `json:"title,omitempty"`
	Listing            *ListingRef   `json:"listing,omitempty"`
	CreatedBy          string        `json:"created_by"`
	CreatedAt          time.Time     `json:"created_at"`
	LastMessageAt      *time.Time    `json:"last_message_at,omitempty"`
	LastMessageID      string        `json:"last_message_id,omitempty"`
	LastMessagePreview string        `json:"last_message_preview,omitempty"`
	UnreadCount        int64         `json:"unread_count"`
	LastReadMessageID  string        `json:"last_read_message_id,omitempty"`
	Settings           Settings      `json:"settings"`
	Participants       []Participant `json:"participants,omitempty"`
	Typing             []TypingUser  `json:"typing,omitempty"`
}

type Attachment struct {
	FileName     string `json:"file_name"`
	URL          string `json:"url"`
	MimeType     string `json:"mime_type,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
	Width        int32  `json:"width,omitempty"`
	Height       int32  `json:"height,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

type Offer struct {
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency,omitempty"`
	Message   string    `json:"message,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Label     string  `json:"label,omitempty"`
}

type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	SenderID       string       `json:"sender_id"`
	Type           string       `json:"type"`
	Content        string       `json:"content,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Offer          *Offer       `json:"offer,omitempty"`
	Location       *Location    `json:"location,omitempty"`
	ReplyTo        string       `json:"reply_to,omitempty"`
	Status         string       `json:"status"`
	State          string       `json:"state"`
	Edited         bool         `json:"edited"`
	Deleted        bool         `json:"deleted"`
	CreatedAt      time.Time    `json:"created_at"`
	EditedAt       *time.Time   `json:"edited_at,omitempty"`
	DeletedAt      *time.Time   `json:"deleted_at,omitempty"`
}

type Reaction struct {
	ID             string    `json:"id"`
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Symbol         string    `json:"symbol"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ReportTransition struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	By   string    `json:"by"`
	Note string    `json:"note,omitempty"`
	At   time.Time `json:"at"`
}

type Report struct {
	ID             string             `json:"id"`
	MessageID      string             `json:"message_id"`
	ConversationID string             `json:"conversation_id"`
	ReporterID     string             `json:"reporter_id"`
	Reason         string             `json:"reason"`
	Description    string             `json:"description,omitempty"`
	Status         string             `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	History        []ReportTransition `json:"history"`
}

type CreateConversationRequest struct {
	Type           string      `json:"type"`
	ParticipantIDs []string    `json:"participant_ids,omitempty"`
	Listing        *ListingRef `json:"listing,omitempty"`
	Title          string      `json:"title,omitempty"`
}

type CreateConversationResponse struct {
	Conversation *Conversation `json:"conversation"`
	// Created is false when an existing direct or listing conversation was
	// returned.
	Created bool `json:"created"`
}

type ListConversationsRequest struct {
	IncludeArchived bool `json:"include_archived,omitempty"`
}

type ListConversationsResponse struct {
	Conversations []*Conversation `json:"conversations"`
}

type GetConversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

type GetConversationResponse struct {
	Conversation *Conversation `json:"conversation"`
}

type SendMessageRequest struct {
	ConversationID string       `json:"conversation_id"`
	Type           string       `json:"type,omitempty"` // defaults to text
	Content        string       `json:"content,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Offer          *Offer       `json:"offer,omitempty"`
	Location       *Location    `json:"location,omitempty"`
	ReplyTo        string       `json:"reply_to,omitempty"`
}

type SendMessageResponse struct {
	Message *Message `json:"message"`
}

type EditMessageRequest struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

type EditMessageResponse struct {
	Message *Message `json:"message"`
}

type DeleteMessageRequest struct {
	MessageID string `json:"message_id"`
}

type DeleteMessageResponse struct {
	Message *Message `json:"message"`
}

type ListMessagesRequest struct {
	ConversationID string `json:"conversation_id"`
	Cursor         string `json:"cursor,omitempty"`
	Limit          int32  `json:"limit,omitempty"`
}

type ListMessagesResponse struct {
	Messages   []*Message `json:"messages"`
	NextCursor string     `json:"next_cursor,omitempty"`
	HasMore    bool       `json:"has_more"`
}

type MarkReadRequest struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

type MarkReadResponse struct {
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	ReadAt         time.Time `json:"read_at"`
	UnreadCount    int64     `json:"unread_count"`
}

type SetReactionRequest struct {
	MessageID string `json:"message_id"`
	Symbol    string `json:"symbol"`
}

type SetReactionResponse struct {
	Reaction *Reaction `json:"reaction"`
	Changed  bool      `json:"changed"`
}

type RemoveReactionRequest struct {
	MessageID string `json:"message_id"`
}

type RemoveReactionResponse struct {
	Removed bool `json:"removed"`
}

type ListReactionsRequest struct {
	MessageID string `json:"message_id"`
}

type ListReactionsResponse struct {
	Reactions []*Reaction `json:"reactions"`
}

type FileReportRequest struct {
	MessageID   string `json:"message_id"`
	Reason      string `json:"reason"`
	Description string `json:"description,omitempty"`
}

type FileReportResponse struct {
	Report *Report `json:"report"`
}

type TransitionReportRequest struct {
	ReportID string `json:"report_id"`
	Status   string `json:"status"`
	Note     string `json:"note,omitempty"`
}

type TransitionReportResponse struct {
	Report *Report `json:"report"`
}

type ListReportsRequest struct {
	Status string `json:"status,omitempty"`
	Limit  int32  `json:"limit,omitempty"`
}

type ListReportsResponse struct {
	Reports []*Report `json:"reports"`
}

// UpdateSettingsRequest changes only the fields that are set.
type UpdateSettingsRequest struct {
	ConversationID string  `json:"conversation_id"`
	Muted          *bool   `json:"muted,omitempty"`
	Archived       *bool   `json:"archived,omitempty"`
	Blocked        *bool   `json:"blocked,omitempty"`
	CustomName     *string `json:"custom_name,omitempty"`
}

type UpdateSettingsResponse struct {
	Settings *Settings `json:"settings"`
}

type LeaveConversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

type LeaveConversationResponse struct {
	// Message is the system message announcing the departure.
	Message *Message `json:"message"`
}

// Inbound frame types.
const (
	FrameTyping        = "typing"
	FrameTypingStopped = "typing_stopped"
	FrameReadReceipt   = "read_receipt"
	FrameDelivered     = "delivered"
)

// ClientFrame is sent by the client on the Connect stream.
type ClientFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`

	// Malformed holds the decode error of a frame that was not valid JSON.
	// The codec still delivers such a frame so one bad frame does not end
	// the stream.
	Malformed string `json:"-"`
}

// ReadReceiptEvent is the data of a read_receipt frame.
type ReadReceiptEvent struct {
	UserID    string    `json:"user_id"`
	MessageID string    `json:"message_id"`
	ReadAt    time.Time `json:"read_at"`
}

// ReactionRemovedEvent is the data of a reaction_removed frame.
type ReactionRemovedEvent struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
}

// ServerFrame is one event pushed to the client. Data depends on Type.
type ServerFrame struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}
