package main

import (
	v1 "github.com/PaulBabatuyi/marketChat-gRPC/api/chat/v1"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/chat"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/realtime"
)

// payloadFromRequest builds the typed payload of a send. The type defaults to
// text; system messages are never accepted from clients.
func payloadFromRequest(req *v1.SendMessageRequest) (chat.Payload, error) {
	switch chat.MessageType(req.Type) {
	case "", chat.MessageText:
		return chat.TextPayload{Content: req.Content}, nil
	case chat.MessageImage:
		return chat.ImagePayload{Caption: req.Content, Attachments: attachmentsFromWire(req.Attachments)}, nil
	case chat.MessageFile:
		return chat.FilePayload{Caption: req.Content, Attachments: attachmentsFromWire(req.Attachments)}, nil
	case chat.MessageOffer:
		if req.Offer == nil {
			return nil, chat.Invalid("offer", "required for offer messages")
		}
		return chat.OfferPayload{
			Amount:    req.Offer.Amount,
			Currency:  req.Offer.Currency,
			Message:   req.Offer.Message,
			ExpiresAt: req.Offer.ExpiresAt,
		}, nil
	case chat.MessageLocation:
		if req.Location == nil {
			return nil, chat.Invalid("location", "required for location messages")
		}
		return chat.LocationPayload{
			Latitude:  req.Location.Latitude,
			Longitude: req.Location.Longitude,
			Label:     req.Location.Label,
		}, nil
	case chat.MessageSystem:
		return nil, chat.Invalid("type", "system messages cannot be sent by clients")
	}
	return nil, chat.Invalid("type", "unknown message type "+req.Type)
}

func attachmentsFromWire(in []v1.Attachment) []chat.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]chat.Attachment, len(in))
	for i, a := range in {
		out[i] = chat.Attachment(a)
	}
	return out
}

// listingFromWire keeps only the reference. The title and price snapshot is
// filled in from the listing service.
func listingFromWire(l *v1.ListingRef) *chat.ListingRef {
	if l == nil {
		return nil
	}
	return &chat.ListingRef{Category: l.Category, ID: l.ID}
}

func toWireSettings(s chat.Settings) v1.Settings {
	out := v1.Settings{
		Muted:      s.Muted,
		Archived:   s.Archived,
		Blocked:    s.Blocked,
		CustomName: s.CustomName,
	}
	if !s.UpdatedAt.IsZero() {
		at := s.UpdatedAt
		out.UpdatedAt = &at
	}
	return out
}

func toWireConversation(v *chat.ConversationView, typing []realtime.TypingEntry) *v1.Conversation {
	c := v.Conversation
	out := &v1.Conversation{
		ID:                 c.ID,
		Type:               string(c.Type),
		Title:              c.Title,
		CreatedBy:          c.CreatedBy,
		CreatedAt:          c.CreatedAt,
		LastMessageAt:      c.LastMessageAt,
		LastMessageID:      c.LastMessageID,
		LastMessagePreview: c.LastMessagePreview,
		UnreadCount:        v.Viewer.UnreadCount,
		LastReadMessageID:  v.Viewer.LastReadMessageID,
		Settings:           toWireSettings(v.Settings),
	}
	if c.Listing != nil {
		ref := v1.ListingRef(*c.Listing)
		out.Listing = &ref
	}
	for _, p := range v.Participants {
		out.Participants = append(out.Participants, v1.Participant{
			UserID:            p.UserID,
			JoinedAt:          p.JoinedAt,
			IsAdmin:           p.IsAdmin,
			LastReadMessageID: p.LastReadMessageID,
		})
	}
	for _, t := range typing {
		out.Typing = append(out.Typing, v1.TypingUser{UserID: t.UserID, ExpiresAt: t.ExpiresAt})
	}
	return out
}

// toWireMessage converts m, dropping the payload of deleted messages.
func toWireMessage(m *chat.Message) *v1.Message {
	r := m.Redacted()
	out := &v1.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		Type:           string(r.Type),
		Content:        r.Content,
		ReplyTo:        r.ReplyTo,
		Status:         string(r.Status),
		State:          string(r.State),
		Edited:         r.IsEdited(),
		Deleted:        r.IsDeleted(),
		CreatedAt:      r.CreatedAt,
		EditedAt:       r.EditedAt,
		DeletedAt:      r.DeletedAt,
	}
	for _, a := range r.Attachments {
		out.Attachments = append(out.Attachments, v1.Attachment(a))
	}
	if r.Offer != nil {
		o := v1.Offer(*r.Offer)
		out.Offer = &o
	}
	if r.Location != nil {
		l := v1.Location(*r.Location)
		out.Location = &l
	}
	return out
}

func toWireReaction(r *chat.Reaction) *v1.Reaction {
	return &v1.Reaction{
		ID:             r.ID,
		MessageID:      r.MessageID,
		ConversationID: r.ConversationID,
		UserID:         r.UserID,
		Symbol:         r.Symbol,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func toWireReport(r *chat.Report) *v1.Report {
	out := &v1.Report{
		ID:             r.ID,
		MessageID:      r.MessageID,
		ConversationID: r.ConversationID,
		ReporterID:     r.ReporterID,
		Reason:         string(r.Reason),
		Description:    r.Description,
		Status:         string(r.Status),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		History:        make([]v1.ReportTransition, 0, len(r.History)),
	}
	for _, h := range r.History {
		out.History = append(out.History, v1.ReportTransition{
			From: string(h.From),
			To:   string(h.To),
			By:   h.By,
			Note: h.Note,
			At:   h.At,
		})
	}
	return out
}

func toWireReadReceipt(rr *chat.ReadReceipt) v1.ReadReceiptEvent {
	return v1.ReadReceiptEvent{UserID: rr.UserID, MessageID: rr.MessageID, ReadAt: rr.ReadAt}
}

// clampLimit converts a wire page size; chat.PageSize applies the bounds.
func clampLimit(n int32) int {
	return chat.PageSize(int(n))
}
