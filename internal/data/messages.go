package data

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/PaulBabatuyi/marketChat-gRPC/internal/chat"
)

// MessagesStore provides message database operations.
type MessagesStore struct {
	base
}

// NewMessagesStore returns a MessagesStore over cols.
func NewMessagesStore(cols Collections, opts ...Option) *MessagesStore {
	return &MessagesStore{base: newBase(cols, opts)}
}

// Send stores a new message. Membership, block and reply checks run inside
// the same transaction as the insert, so a message is either fully visible
// (row, conversation summary, unread counters) or not stored at all.
func (s *MessagesStore) Send(ctx context.Context, d chat.Draft) (*chat.Message, error) {
	now := s.timestamp()
	if err := chat.ValidateClientPayload(d.Payload, now); err != nil {
		return nil, err
	}
	msg := d.Build(newID(), now)

	err := s.tx(ctx, func(ctx context.Context) error {
		conv, err := s.conversation(ctx, d.ConversationID)
		if err != nil {
			return err
		}
		if _, err := s.activeParticipant(ctx, conv.ID, d.SenderID); err != nil {
			if errors.Is(err, chat.ErrNotFound) {
				return fmt.Errorf("%w: not a participant of %s", chat.ErrForbidden, conv.ID)
			}
			return err
		}
		if conv.Type.Pairwise() {
			blocked, err := s.cols.Settings.CountDocuments(ctx, bson.D{
				{Key: "conversation_id", Value: conv.ID},
				{Key: "user_id", Value: bson.D{{Key: "$ne", Value: d.SenderID}}},
				{Key: "blocked", Value: true},
			})
			if err != nil {
				return err
			}
			if blocked > 0 {
				return fmt.Errorf("%w: conversation %s is blocked", chat.ErrForbidden, conv.ID)
			}
		}
		if d.ReplyTo != "" {
			n, err := s.cols.Messages.CountDocuments(ctx, bson.D{
				{Key: "_id", Value: d.ReplyTo},
				{Key: "conversation_id", Value: conv.ID},
			})
			if err != nil {
				return err
			}
			if n == 0 {
				return chat.Invalid("reply_to", "must reference a message in the same conversation")
			}
		}
		return s.appendMessage(ctx, &msg)
	})
	if err != nil {
		return nil, chat.Internal("send_message", d.ConversationID, err)
	}
	return &msg, nil
}

// Edit replaces the text of a message. Only its sender may edit it.
func (s *MessagesStore) Edit(ctx context.Context, messageID, editorID, content string) (*chat.Message, error) {
	m, err := s.visibleMessage(ctx, messageID, editorID)
	if err != nil {
		return nil, chat.Internal("edit_message", messageID, err)
	}
	if m.SenderID != editorID {
		return nil, fmt.Errorf("%w: only the sender may edit a message", chat.ErrForbidden)
	}
	if err := m.Edit(content, s.now()); err != nil {
		return nil, err
	}

	res, err := s.cols.Messages.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: m.ID},
			{Key: "sender_id", Value: editorID},
			{Key: "state", Value: bson.D{{Key: "$ne", Value: chat.StateDeleted}}},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "content", Value: m.Content},
			{Key: "state", Value: m.State},
			{Key: "edited_at", Value: m.EditedAt},
		}}},
	)
	if err != nil {
		return nil, chat.Internal("edit_message", messageID, err)
	}
	if res.MatchedCount == 0 {
		// deleted between the read and the write
		return nil, chat.Invalid("message_id", "message is deleted")
	}
	if err := s.refreshPreview(ctx, m); err != nil {
		return nil, chat.Internal("edit_message", messageID, err)
	}
	return m, nil
}

// Delete soft-deletes a message: the row and its ordering position stay and
// every content-bearing field is removed. changed is false when the message
// was already deleted.
func (s *MessagesStore) Delete(ctx context.Context, messageID, requesterID string) (msg *chat.Message, changed bool, err error) {
	m, err := s.visibleMessage(ctx, messageID, requesterID)
	if err != nil {
		return nil, false, chat.Internal("delete_message", messageID, err)
	}
	if m.SenderID != requesterID {
		return nil, false, fmt.Errorf("%w: only the sender may delete a message", chat.ErrForbidden)
	}
	if !m.Delete(s.now()) {
		return m, false, nil
	}

	err = s.tx(ctx, func(ctx context.Context) error {
		changed = false
		res, err := s.cols.Messages.UpdateOne(ctx,
			bson.D{
				{Key: "_id", Value: m.ID},
				{Key: "state", Value: bson.D{{Key: "$ne", Value: chat.StateDeleted}}},
			},
			bson.D{
				{Key: "$set", Value: bson.D{
					{Key: "state", Value: chat.StateDeleted},
					{Key: "deleted_at", Value: m.DeletedAt},
				}},
				{Key: "$unset", Value: bson.D{
					{Key: "content", Value: ""},
					{Key: "attachments", Value: ""},
					{Key: "offer", Value: ""},
					{Key: "location", Value: ""},
				}},
			},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return nil
		}
		changed = true
		if err := s.forgetUnread(ctx, m); err != nil {
			return err
		}
		return s.refreshPreview(ctx, m)
	})
	if err != nil {
		return nil, false, chat.Internal("delete_message", messageID, err)
	}
	return m, changed, nil
}

// forgetUnread takes a deleted message out of the unread counters of the
// members who had not read up to it yet.
func (s *MessagesStore) forgetUnread(ctx context.Context, m *chat.Message) error {
	_, err := s.cols.Participants.UpdateMany(ctx,
		bson.D{
			{Key: "conversation_id", Value: m.ConversationID},
			{Key: "active", Value: true},
			{Key: "user_id", Value: bson.D{{Key: "$ne", Value: m.SenderID}}},
			{Key: "unread_count", Value: bson.D{{Key: "$gt", Value: 0}}},
			{Key: "$or", Value: bson.A{
				bson.D{{Key: "last_read_at", Value: bson.D{{Key: "$exists", Value: false}}}},
				bson.D{{Key: "last_read_at", Value: bson.D{{Key: "$lt", Value: m.CreatedAt}}}},
				bson.D{{Key: "last_read_at", Value: m.CreatedAt}, {Key: "last_read_message_id", Value: bson.D{{Key: "$lt", Value: m.ID}}}},
			}},
		},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "unread_count", Value: -1}}}},
	)
	return err
}

// List returns one page of the conversation in (created_at, id) order,
// starting after cursor. Non-members get ErrNotFound.
func (s *MessagesStore) List(ctx context.Context, conversationID, requesterID, cursor string, limit int) (*chat.MessagePage, error) {
	if _, err := s.activeParticipant(ctx, conversationID, requesterID); err != nil {
		return nil, chat.Internal("list_messages", conversationID, err)
	}

	filter := bson.D{{Key: "conversation_id", Value: conversationID}}
	if cursor != "" {
		c, err := chat.DecodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		filter = append(filter, after(c)...)
	}

	n := chat.PageSize(limit)
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(n + 1))

	cur, err := s.cols.Messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, chat.Internal("list_messages", conversationID, err)
	}
	var msgs []chat.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, chat.Internal("list_messages", conversationID, err)
	}

	page := &chat.MessagePage{}
	if len(msgs) > n {
		msgs = msgs[:n]
		page.HasMore = true
	}
	for i := range msgs {
		msgs[i] = msgs[i].Redacted()
	}
	page.Messages = msgs
	if len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		page.NextCursor = last.Position().Encode()
	} else {
		page.NextCursor = cursor
	}
	return page, nil
}

var errReadRaced = errors.New("read pointer moved concurrently")

// MarkRead advances the user's read pointer to messageID. The pointer never
// moves backward: marking the same or an older message changes nothing and
// reports advanced=false with the current state.
func (s *MessagesStore) MarkRead(ctx context.Context, conversationID, userID, messageID string) (receipt *chat.ReadReceipt, advanced bool, err error) {
	target, err := s.messageIn(ctx, conversationID, messageID)
	if err != nil {
		return nil, false, chat.Internal("mark_read", conversationID, err)
	}

	for attempt := 0; attempt < 3; attempt++ {
		var out *chat.ReadReceipt
		var moved bool
		err := s.tx(ctx, func(ctx context.Context) error {
			out, moved = nil, false
			p, err := s.activeParticipant(ctx, conversationID, userID)
			if err != nil {
				return err
			}
			cur, has := p.ReadPosition()
			if has && target.Compare(cur) <= 0 {
				out = &chat.ReadReceipt{
					ConversationID: conversationID,
					UserID:         userID,
					MessageID:      p.LastReadMessageID,
					ReadAt:         *p.LastReadAt,
					UnreadCount:    p.UnreadCount,
				}
				return nil
			}

			unreadFilter := bson.D{
				{Key: "conversation_id", Value: conversationID},
				{Key: "sender_id", Value: bson.D{{Key: "$ne", Value: userID}}},
				{Key: "state", Value: bson.D{{Key: "$ne", Value: chat.StateDeleted}}},
			}
			unread, err := s.cols.Messages.CountDocuments(ctx, append(unreadFilter, after(target)...))
			if err != nil {
				return err
			}

			// compare-and-set on the pointer we just read
			casFilter := bson.D{{Key: "_id", Value: p.ID}, {Key: "active", Value: true}}
			if has {
				casFilter = append(casFilter,
					bson.E{Key: "last_read_at", Value: cur.At},
					bson.E{Key: "last_read_message_id", Value: cur.ID})
			} else {
				casFilter = append(casFilter, bson.E{Key: "last_read_at", Value: bson.D{{Key: "$exists", Value: false}}})
			}
			res, err := s.cols.Participants.UpdateOne(ctx, casFilter, bson.D{{Key: "$set", Value: bson.D{
				{Key: "last_read_at", Value: target.At},
				{Key: "last_read_message_id", Value: target.ID},
				{Key: "unread_count", Value: unread},
			}}})
			if err != nil {
				return err
			}
			if res.MatchedCount == 0 {
				return errReadRaced
			}

			statusFilter := bson.D{
				{Key: "conversation_id", Value: conversationID},
				{Key: "sender_id", Value: bson.D{{Key: "$ne", Value: userID}}},
				{Key: "status", Value: bson.D{{Key: "$in", Value: bson.A{chat.StatusSent, chat.StatusDelivered}}}},
			}
			_, err = s.cols.Messages.UpdateMany(ctx, append(statusFilter, upTo(target)...),
				bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: chat.StatusRead}}}})
			if err != nil {
				return err
			}

			out = &chat.ReadReceipt{
				ConversationID: conversationID,
				UserID:         userID,
				MessageID:      target.ID,
				ReadAt:         target.At,
				UnreadCount:    unread,
			}
			moved = true
			return nil
		})
		if errors.Is(err, errReadRaced) {
			continue
		}
		if err != nil {
			return nil, false, chat.Internal("mark_read", conversationID, err)
		}
		return out, moved, nil
	}
	return nil, false, fmt.Errorf("%w: read pointer kept moving", chat.ErrConflict)
}

// MarkDelivered advances the other members' messages up to messageID from
// sent to delivered and returns how many changed.
func (s *MessagesStore) MarkDelivered(ctx context.Context, conversationID, userID, messageID string) (int64, error) {
	if _, err := s.activeParticipant(ctx, conversationID, userID); err != nil {
		return 0, chat.Internal("mark_delivered", conversationID, err)
	}
	target, err := s.messageIn(ctx, conversationID, messageID)
	if err != nil {
		return 0, chat.Internal("mark_delivered", conversationID, err)
	}

	filter := bson.D{
		{Key: "conversation_id", Value: conversationID},
		{Key: "sender_id", Value: bson.D{{Key: "$ne", Value: userID}}},
		{Key: "status", Value: chat.StatusSent},
	}
	res, err := s.cols.Messages.UpdateMany(ctx, append(filter, upTo(target)...),
		bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: chat.StatusDelivered}}}})
	if err != nil {
		return 0, chat.Internal("mark_delivered", conversationID, err)
	}
	return res.ModifiedCount, nil
}

// messageIn returns the position of a message that must belong to the
// conversation.
func (s *MessagesStore) messageIn(ctx context.Context, conversationID, messageID string) (chat.Cursor, error) {
	var m chat.Message
	opts := options.FindOne().SetProjection(bson.D{{Key: "created_at", Value: 1}})
	err := s.cols.Messages.FindOne(ctx, bson.D{
		{Key: "_id", Value: messageID},
		{Key: "conversation_id", Value: conversationID},
	}, opts).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return chat.Cursor{}, fmt.Errorf("%w: message %s", chat.ErrNotFound, messageID)
	}
	if err != nil {
		return chat.Cursor{}, err
	}
	return m.Position(), nil
}
