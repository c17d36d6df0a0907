package data

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/PaulBabatuyi/marketChat-gRPC/internal/chat"
)

// ReactionsStore keeps at most one reaction per (message, user).
type ReactionsStore struct {
	base
}

func NewReactionsStore(cols Collections, opts ...Option) *ReactionsStore {
	return &ReactionsStore{base: newBase(cols, opts)}
}

// Set stores the user's reaction to a message, replacing a previous symbol.
// Setting the symbol the user already has is a no-op and reports
// changed=false.
func (s *ReactionsStore) Set(ctx context.Context, messageID, userID, symbol string) (r *chat.Reaction, changed bool, err error) {
	sym, err := chat.NormalizeSymbol(symbol)
	if err != nil {
		return nil, false, err
	}
	m, err := s.visibleMessage(ctx, messageID, userID)
	if err != nil {
		return nil, false, chat.Internal("set_reaction", messageID, err)
	}
	if m.IsDeleted() {
		return nil, false, chat.Invalid("message_id", "message is deleted")
	}

	key := bson.D{{Key: "message_id", Value: messageID}, {Key: "user_id", Value: userID}}

	var existing chat.Reaction
	err = s.cols.Reactions.FindOne(ctx, key).Decode(&existing)
	switch {
	case err == nil && existing.Symbol == sym:
		return &existing, false, nil
	case err != nil && !errors.Is(err, mongo.ErrNoDocuments):
		return nil, false, chat.Internal("set_reaction", messageID, err)
	}

	now := s.timestamp()
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "symbol", Value: sym},
			{Key: "updated_at", Value: now},
		}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "_id", Value: newID()},
			{Key: "conversation_id", Value: m.ConversationID},
			{Key: "created_at", Value: now},
		}},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out chat.Reaction
	err = s.cols.Reactions.FindOneAndUpdate(ctx, key, update, opts).Decode(&out)
	if mongo.IsDuplicateKeyError(err) {
		// two upserts for the same key raced; the loser retries as an update
		err = s.cols.Reactions.FindOneAndUpdate(ctx, key, update, opts).Decode(&out)
	}
	if err != nil {
		return nil, false, chat.Internal("set_reaction", messageID, err)
	}
	return &out, true, nil
}

// Remove deletes the user's reaction to a message. Removing a reaction that
// does not exist is a no-op and reports removed=false.
func (s *ReactionsStore) Remove(ctx context.Context, messageID, userID string) (conversationID string, removed bool, err error) {
	m, err := s.visibleMessage(ctx, messageID, userID)
	if err != nil {
		return "", false, chat.Internal("remove_reaction", messageID, err)
	}
	res, err := s.cols.Reactions.DeleteOne(ctx, bson.D{{Key: "message_id", Value: messageID}, {Key: "user_id", Value: userID}})
	if err != nil {
		return "", false, chat.Internal("remove_reaction", messageID, err)
	}
	return m.ConversationID, res.DeletedCount > 0, nil
}

// List returns the reactions on a message the user can see, oldest first.
func (s *ReactionsStore) List(ctx context.Context, messageID, userID string) ([]chat.Reaction, error) {
	if _, err := s.visibleMessage(ctx, messageID, userID); err != nil {
		return nil, chat.Internal("list_reactions", messageID, err)
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.cols.Reactions.Find(ctx, bson.D{{Key: "message_id", Value: messageID}}, opts)
	if err != nil {
		return nil, chat.Internal("list_reactions", messageID, err)
	}
	var out []chat.Reaction
	if err := cur.All(ctx, &out); err != nil {
		return nil, chat.Internal("list_reactions", messageID, err)
	}
	return out, nil
}
