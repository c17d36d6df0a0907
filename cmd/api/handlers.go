package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	v1 "github.com/PaulBabatuyi/marketChat-gRPC/api/chat/v1"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/chat"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/events"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/listing"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/realtime"
)

// publish records a durable write on the event feed.
func (s *Server) publish(ctx context.Context, typ, actor, conversationID, messageID string) {
	s.events.Publish(context.WithoutCancel(ctx), events.Record{
		Type:           typ,
		ConversationID: conversationID,
		MessageID:      messageID,
		ActorID:        actor,
		At:             time.Now().UTC(),
	})
}

// CreateConversation opens a direct, listing or group conversation. Direct and
// listing conversations are unique per participant pair, so a repeat request
// returns the existing one.
func (s *Server) CreateConversation(ctx context.Context, req *v1.CreateConversationRequest) (*v1.CreateConversationResponse, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}

	nc := chat.NewConversation{
		Type:         chat.ConversationType(req.Type),
		InitiatorID:  c.UserID,
		Participants: req.ParticipantIDs,
		Listing:      listingFromWire(req.Listing),
		Title:        req.Title,
	}
	if err := listing.Apply(ctx, s.listings, &nc, s.log); err != nil {
		return nil, s.toStatus(err)
	}

	conv, created, err := s.convs.Create(ctx, nc)
	if err != nil {
		return nil, s.toStatus(err)
	}
	view, err := s.convs.Get(ctx, conv.ID, c.UserID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	if created {
		s.publish(ctx, events.ConversationCreated, c.UserID, conv.ID, "")
	}
	return &v1.CreateConversationResponse{Conversation: toWireConversation(view, nil), Created: created}, nil
}

// ListConversations returns the caller's conversations, most recent activity
// first.
func (s *Server) ListConversations(ctx context.Context, req *v1.ListConversationsRequest) (*v1.ListConversationsResponse, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	views, err := s.convs.List(ctx, c.UserID, req.IncludeArchived)
	if err != nil {
		return nil, s.toStatus(err)
	}
	out := make([]*v1.Conversation, 0, len(views))
	for i := range views {
		out = append(out, toWireConversation(&views[i], nil))
	}
	return &v1.ListConversationsResponse{Conversations: out}, nil
}

// GetConversation returns one conversation with its participants and who is
// currently typing.
func (s *Server) GetConversation(ctx context.Context, req *v1.GetConversationRequest) (*v1.GetConversationResponse, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	view, err := s.convs.Get(ctx, req.ConversationID, c.UserID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	typing, err := s.typing.Active(ctx, req.ConversationID, c.UserID)
	if err != nil {
		s.log.Warn("typing lookup failed", zap.String("conversation_id", req.ConversationID), zap.Error(err))
		typing = nil
	}
	return &v1.GetConversationResponse{Conversation: toWireConversation(view, typing)}, nil
}

func (s *Server) SendMessage(ctx context.Context, req *v1.SendMessageRequest) (*v1.SendMessageResponse, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := payloadFromRequest(req)
	if err != nil {
		return nil, s.toStatus(err)
	}

	msg, err := s.msgs.Send(ctx, chat.Draft{
		ConversationID: req.ConversationID,
		SenderID:       c.UserID,
		ReplyTo:        req.ReplyTo,
		Payload:        payload,
	})
	if err != nil {
		return nil, s.toStatus(err)
	}
	s.metrics.MessageWritten("send", string(msg.Type))

	// The message is durable at this point; live delivery is best-effort.
	wire := toWireMessage(msg)
	s.bc.BroadcastToConversation(ctx, realtime.Event{
		Type:           realtime.EventNewMessage,
		ConversationID: msg.ConversationID,
		Data:           wire,
	}, c.UserID)
	s.publish(ctx, events.MessageSent, c.UserID, msg.ConversationID, msg.ID)
	return &v1.SendMessageResponse{Message: wire}, nil
}

// EditMessage replaces the content of the caller's own text message.
func (s *Server) EditMessage(ctx context.Context, req *v1.EditMessageRequest) (*v1.EditMessageResponse, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	msg, err := s.msgs.Edit(ctx, req.MessageID, c.UserID, req.Content)
	if err != nil {
		return nil, s.toStatus(err)
	}
	s.metrics.MessageWritten("edit", string(msg.Type))

	wire := toWireMessage(msg)
	s.bc.BroadcastToConversation(ctx, realtime.Event{
		Type:           realtime.EventMessageEdited,
		ConversationID: msg.ConversationID,
		Data:           wire,
	}, c.UserID)
	s.publish(ctx, events.MessageEdited, c.UserID, msg.ConversationID, msg.ID)
	return &v1.EditMessageResponse{Message: wire}, nil
}

// DeleteMessage soft-deletes the caller's own message. Deleting twice is a
// no-op and is not broadcast again.
func (s *Server) DeleteMessage(ctx context.Context, req *v1.DeleteMessageRequest) (*v1.DeleteMessageResponse, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	msg, changed, err := s.msgs.Delete(ctx, req.MessageID, c.UserID)
	if err != nil {
		return nil, s.toStatus(err)
	}

	wire := toWireMessage(msg)
	if changed {
		s.metrics.MessageWritten("delete", string(msg.Type))
		s.bc.BroadcastToConversation(ctx, realtime.Event{
			Type:           realtime.EventMessageDeleted,
			ConversationID: msg.ConversationID,
			Data:           wire,
		}, c.UserID)
		s.publish(ctx, events.MessageDeleted, c.UserID, msg.ConversationID, msg.ID)
	}
	return &v1.DeleteMessageResponse{Message: wire}, nil
}

// ListMessages pages forward through a conversation, oldest first.
func (s *Server) ListMessages(ctx context.Context, req *v1.ListMessagesRequest) (*v1.ListMessagesResponse, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	page, err := s.msgs.List(ctx, req.ConversationID, c.UserID, req.Cursor, clampLimit(req.Limit))
	if err != nil {
		return nil, s.toStatus(err)
	}
	out := make([]*v1.Message, 0, len(page.Messages))
	for i := range page.Messages {
		out = append(out, toWireMessage(&page.Messages[i]))
	}
	return &v1.ListMessagesResponse{Messages: out, NextCursor: page.NextCursor, HasMore: page.HasMore}, nil
}

// MarkRead advances the caller's read position. Marking an older message is
// accepted but changes nothing.
func (s *Server) MarkRead(ctx context.Context, req *v1.MarkReadRequest) (*v1.MarkReadResponse, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	rr, err := s.markRead(ctx, req.ConversationID, c.UserID, req.MessageID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &v1.MarkReadResponse{
		ConversationID: rr.ConversationID,
		MessageID:      rr.MessageID,
		ReadAt:         rr.ReadAt,
		UnreadCount:    rr.UnreadCount,
	}, nil
}

// markRead is shared by the MarkRead RPC and the read_receipt frame.
func (s *Server) markRead(ctx context.Context, conversationID, userID, messageID string) (*chat.ReadReceipt, error) {
	rr, advanced, err := s.msgs.MarkRead(ctx, conversationID, userID, messageID)
	if err != nil {
		return nil, err
	}
	if advanced {
		s.bc.BroadcastToConversation(ctx, realtime.Event{
			Type:           realtime.EventReadReceipt,
			ConversationID: conversationID,
			Data:           toWireReadReceipt(rr),
		}, userID)
		s.publish(ctx, events.MessagesRead, userID, conversationID, rr.MessageID)
	}
	return rr, nil
}

func (s *Server) SetReaction(ctx context.Context, req *v1.SetReactionRequest) (*v1.SetReactionResponse, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	r, changed, err := s.reactions.Set(ctx, req.MessageID, c.UserID, req.Symbol)
	if err != nil {
		return nil, s.toStatus(err)
	}

	wire := toWireReaction(r)
	if changed {
		s.bc.BroadcastToConversation(ctx, realtime.Event{
			Type:           realtime.EventReactionAdded,
			ConversationID: r.ConversationID,
			Data:           wire,
		}, c.UserID)
		s.publish(ctx, events.ReactionSet, c.UserID, r.ConversationID, r.MessageID)
	}
	return &v1.SetReactionResponse{Reaction: wire, Changed: changed}, nil
}

func (s *Server) RemoveReaction(ctx context.Context, req *v1.RemoveReactionRequest) (*v1.RemoveReactionResponse, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	conversationID, removed, err := s.reactions.Remove(ctx, req.MessageID, c.UserID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	if removed {
		s.bc.BroadcastToConversation(ctx, realtime.Event{
			Type:           realtime.EventReactionRemoved,
			ConversationID: conversationID,
			Data:           v1.ReactionRemovedEvent{MessageID: req.MessageID, UserID: c.UserID},
		}, c.UserID)
		s.publish(ctx, events.ReactionRemoved, c.UserID, conversationID, req.MessageID)
	}
	return &v1.RemoveReactionResponse{Removed: removed}, nil
}

func (s *Server) ListReactions(ctx context.Context, req *v1.ListReactionsRequest) (*v1.ListReactionsResponse, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	rs, err := s.reactions.List(ctx, req.MessageID, c.UserID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	out := make([]*v1.Reaction, 0, len(rs))
	for i := range rs {
		out = append(out, toWireReaction(&rs[i]))
	}
	return &v1.ListReactionsResponse{Reactions: out}, nil
}

// FileReport flags a message for moderation. Every call creates a new
// pending report.
func (s *Server) FileReport(ctx context.Context, req *v1.FileReportRequest) (*v1.FileReportResponse, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.reports.File(ctx, chat.NewReport{
		MessageID:   req.MessageID,
		ReporterID:  c.UserID,
		Reason:      chat.ReportReason(req.Reason),
		Description: req.Description,
	})
	if err != nil {
		return nil, s.toStatus(err)
	}
	s.events.Publish(context.WithoutCancel(ctx), events.Record{
		Type:           events.ReportFiled,
		ConversationID: r.ConversationID,
		MessageID:      r.MessageID,
		ReportID:       r.ID,
		ActorID:        c.UserID,
		At:             r.CreatedAt,
	})
	return &v1.FileReportResponse{Report: toWireReport(r)}, nil
}

// TransitionReport moves a report along its review workflow. Admins only.
func (s *Server) TransitionReport(ctx context.Context, req *v1.TransitionReportRequest) (*v1.TransitionReportResponse, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	if !c.IsAdmin() {
		return nil, s.toStatus(chat.ErrForbidden)
	}
	r, err := s.reports.Transition(ctx, req.ReportID, c.UserID, chat.ReportStatus(req.Status), req.Note)
	if err != nil {
		return nil, s.toStatus(err)
	}
	s.events.Publish(context.WithoutCancel(ctx), events.Record{
		Type:           events.ReportTransitioned,
		ConversationID: r.ConversationID,
		MessageID:      r.MessageID,
		ReportID:       r.ID,
		ActorID:        c.UserID,
		At:             r.UpdatedAt,
	})
	return &v1.TransitionReportResponse{Report: toWireReport(r)}, nil
}

// ListReports returns reports newest first. Admins only.
func (s *Server) ListReports(ctx context.Context, req *v1.ListReportsRequest) (*v1.ListReportsResponse, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	if !c.IsAdmin() {
		return nil, s.toStatus(chat.ErrForbidden)
	}
	rs, err := s.reports.List(ctx, chat.ReportStatus(req.Status), clampLimit(req.Limit))
	if err != nil {
		return nil, s.toStatus(err)
	}
	out := make([]*v1.Report, 0, len(rs))
	for i := range rs {
		out = append(out, toWireReport(&rs[i]))
	}
	return &v1.ListReportsResponse{Reports: out}, nil
}

func (s *Server) UpdateSettings(ctx context.Context, req *v1.UpdateSettingsRequest) (*v1.UpdateSettingsResponse, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.convs.UpdateSettings(ctx, req.ConversationID, c.UserID, chat.SettingsPatch{
		Muted:      req.Muted,
		Archived:   req.Archived,
		Blocked:    req.Blocked,
		CustomName: req.CustomName,
	})
	if err != nil {
		return nil, s.toStatus(err)
	}
	s.publish(ctx, events.SettingsUpdated, c.UserID, req.ConversationID, "")
	wire := toWireSettings(*st)
	return &v1.UpdateSettingsResponse{Settings: &wire}, nil
}

// LeaveConversation removes the caller from a group conversation. The
// remaining members receive the system message announcing it.
func (s *Server) LeaveConversation(ctx context.Context, req *v1.LeaveConversationRequest) (*v1.LeaveConversationResponse, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	msg, err := s.convs.Leave(ctx, req.ConversationID, c.UserID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	s.metrics.MessageWritten("send", string(msg.Type))

	wire := toWireMessage(msg)
	s.bc.BroadcastToConversation(ctx, realtime.Event{
		Type:           realtime.EventNewMessage,
		ConversationID: msg.ConversationID,
		Data:           wire,
	}, c.UserID)
	s.publish(ctx, events.ConversationLeft, c.UserID, msg.ConversationID, msg.ID)
	return &v1.LeaveConversationResponse{Message: wire}, nil
}
