// Package data implements the conversation and message store on MongoDB.
package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/PaulBabatuyi/marketChat-gRPC/internal/chat"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/db"
)

// Collections groups the collections the stores share. Writes that span
// several of them run in one transaction.
type Collections struct {
	Conversations *mongo.Collection
	Participants  *mongo.Collection
	Messages      *mongo.Collection
	Reactions     *mongo.Collection
	Reports       *mongo.Collection
	Settings      *mongo.Collection
}

// CollectionsFrom returns the service collections of c.
func CollectionsFrom(c *db.Client) Collections {
	return Collections{
		Conversations: c.ConversationsCollection(),
		Participants:  c.ParticipantsCollection(),
		Messages:      c.MessagesCollection(),
		Reactions:     c.ReactionsCollection(),
		Reports:       c.ReportsCollection(),
		Settings:      c.SettingsCollection(),
	}
}

// Option configures a store.
type Option func(*base)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

type base struct {
	cols Collections
	now  func() time.Time
}

func newBase(cols Collections, opts []Option) base {
	b := base{cols: cols, now: time.Now}
	for _, o := range opts {
		o(&b)
	}
	return b
}

// timestamp is the current time at storage precision.
func (b *base) timestamp() time.Time {
	return chat.Timestamp(b.now())
}

// newID returns a time-ordered UUIDv7, falling back to a random UUID if the
// clock source fails.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// tx runs fn inside a transaction. fn may be invoked more than once when the
// server reports a transient error, so it must not keep state across calls.
func (b *base) tx(ctx context.Context, fn func(ctx context.Context) error) error {
	sess, err := b.cols.Conversations.Database().Client().StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

func (b *base) conversation(ctx context.Context, id string) (*chat.Conversation, error) {
	var c chat.Conversation
	err := b.cols.Conversations.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: conversation %s", chat.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// activeParticipant returns the user's active membership or ErrNotFound.
func (b *base) activeParticipant(ctx context.Context, conversationID, userID string) (*chat.Participant, error) {
	var p chat.Participant
	err := b.cols.Participants.FindOne(ctx, bson.D{
		{Key: "conversation_id", Value: conversationID},
		{Key: "user_id", Value: userID},
		{Key: "active", Value: true},
	}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: conversation %s", chat.ErrNotFound, conversationID)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// visibleMessage loads a message the user may see. Messages of conversations
// the user is not an active member of are reported as not found.
func (b *base) visibleMessage(ctx context.Context, messageID, userID string) (*chat.Message, error) {
	var m chat.Message
	err := b.cols.Messages.FindOne(ctx, bson.D{{Key: "_id", Value: messageID}}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: message %s", chat.ErrNotFound, messageID)
	}
	if err != nil {
		return nil, err
	}
	if _, err := b.activeParticipant(ctx, m.ConversationID, userID); err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return nil, fmt.Errorf("%w: message %s", chat.ErrNotFound, messageID)
		}
		return nil, err
	}
	return &m, nil
}

// appendMessage inserts m and updates the denormalized conversation fields
// and the other members' unread counters. It must run inside tx.
func (b *base) appendMessage(ctx context.Context, m *chat.Message) error {
	if _, err := b.cols.Messages.InsertOne(ctx, m); err != nil {
		return err
	}

	// Only move last_message_* forward in (created_at, id) order.
	_, err := b.cols.Conversations.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: m.ConversationID},
			{Key: "$or", Value: bson.A{
				bson.D{{Key: "last_message_at", Value: bson.D{{Key: "$exists", Value: false}}}},
				bson.D{{Key: "last_message_at", Value: bson.D{{Key: "$lt", Value: m.CreatedAt}}}},
				bson.D{{Key: "last_message_at", Value: m.CreatedAt}, {Key: "last_message_id", Value: bson.D{{Key: "$lt", Value: m.ID}}}},
			}},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "last_message_at", Value: m.CreatedAt},
			{Key: "last_message_id", Value: m.ID},
			{Key: "last_message_preview", Value: chat.Preview(m)},
			{Key: "activity_at", Value: m.CreatedAt},
		}}},
	)
	if err != nil {
		return err
	}

	_, err = b.cols.Participants.UpdateMany(ctx,
		bson.D{
			{Key: "conversation_id", Value: m.ConversationID},
			{Key: "active", Value: true},
			{Key: "user_id", Value: bson.D{{Key: "$ne", Value: m.SenderID}}},
		},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "unread_count", Value: 1}}}},
	)
	return err
}

// refreshPreview rewrites the conversation preview when m is its latest message.
func (b *base) refreshPreview(ctx context.Context, m *chat.Message) error {
	_, err := b.cols.Conversations.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: m.ConversationID}, {Key: "last_message_id", Value: m.ID}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "last_message_preview", Value: chat.Preview(m)}}}},
	)
	return err
}

// after matches documents strictly after c in (created_at, _id) order.
func after(c chat.Cursor) bson.D {
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "created_at", Value: bson.D{{Key: "$gt", Value: c.At}}}},
		bson.D{{Key: "created_at", Value: c.At}, {Key: "_id", Value: bson.D{{Key: "$gt", Value: c.ID}}}},
	}}}
}

// upTo matches documents at or before c in (created_at, _id) order.
func upTo(c chat.Cursor) bson.D {
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "created_at", Value: bson.D{{Key: "$lt", Value: c.At}}}},
		bson.D{{Key: "created_at", Value: c.At}, {Key: "_id", Value: bson.D{{Key: "$lte", Value: c.ID}}}},
	}}}
}
