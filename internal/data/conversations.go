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

// ConversationsStore owns conversations, memberships and per-user settings.
type ConversationsStore struct {
	base
}

// NewConversationsStore returns a ConversationsStore over cols.
func NewConversationsStore(cols Collections, opts ...Option) *ConversationsStore {
	return &ConversationsStore{base: newBase(cols, opts)}
}

// Create validates nc and creates the conversation with its participants.
// For direct and listing conversations an existing conversation between the
// same members (about the same listing) is returned instead, with created
// reported as false.
func (s *ConversationsStore) Create(ctx context.Context, nc chat.NewConversation) (*chat.Conversation, bool, error) {
	members, err := nc.Members()
	if err != nil {
		return nil, false, err
	}

	key := chat.DirectKey(nc.Type, members, nc.Listing)
	if key != "" {
		existing, err := s.byDirectKey(ctx, key)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, chat.ErrNotFound) {
			return nil, false, chat.Internal("create_conversation", "", err)
		}
	}

	now := s.timestamp()
	conv := chat.Conversation{
		ID:         newID(),
		Type:       nc.Type,
		Title:      nc.Title,
		Listing:    nc.Listing,
		DirectKey:  key,
		CreatedBy:  nc.InitiatorID,
		CreatedAt:  now,
		ActivityAt: now,
	}

	parts := make([]any, 0, len(members))
	for i, userID := range members {
		parts = append(parts, chat.Participant{
			ID:                   newID(),
			ConversationID:       conv.ID,
			UserID:               userID,
			Active:               true,
			JoinedAt:             now,
			NotificationsEnabled: true,
			IsAdmin:              nc.Type == chat.ConversationGroup && i == 0,
		})
	}

	err = s.tx(ctx, func(ctx context.Context) error {
		if _, err := s.cols.Conversations.InsertOne(ctx, conv); err != nil {
			return err
		}
		_, err := s.cols.Participants.InsertMany(ctx, parts)
		return err
	})
	if err != nil {
		// Lost a race with a concurrent create for the same pair.
		if key != "" && mongo.IsDuplicateKeyError(err) {
			existing, ferr := s.byDirectKey(ctx, key)
			if ferr == nil {
				return existing, false, nil
			}
		}
		return nil, false, chat.Internal("create_conversation", conv.ID, err)
	}
	return &conv, true, nil
}

func (s *ConversationsStore) byDirectKey(ctx context.Context, key string) (*chat.Conversation, error) {
	var c chat.Conversation
	err := s.cols.Conversations.FindOne(ctx, bson.D{{Key: "direct_key", Value: key}}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns the user's active conversations, most recent activity first.
// Conversations the user archived are skipped unless includeArchived is set.
func (s *ConversationsStore) List(ctx context.Context, userID string, includeArchived bool) ([]chat.ConversationView, error) {
	cur, err := s.cols.Participants.Find(ctx, bson.D{{Key: "user_id", Value: userID}, {Key: "active", Value: true}})
	if err != nil {
		return nil, chat.Internal("list_conversations", "", err)
	}
	var memberships []chat.Participant
	if err := cur.All(ctx, &memberships); err != nil {
		return nil, chat.Internal("list_conversations", "", err)
	}
	if len(memberships) == 0 {
		return nil, nil
	}

	byConv := make(map[string]chat.Participant, len(memberships))
	ids := make(bson.A, 0, len(memberships))
	for _, p := range memberships {
		byConv[p.ConversationID] = p
		ids = append(ids, p.ConversationID)
	}

	settings, err := s.settingsFor(ctx, userID, ids)
	if err != nil {
		return nil, chat.Internal("list_conversations", "", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "activity_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err = s.cols.Conversations.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}}, opts)
	if err != nil {
		return nil, chat.Internal("list_conversations", "", err)
	}
	var convs []chat.Conversation
	if err := cur.All(ctx, &convs); err != nil {
		return nil, chat.Internal("list_conversations", "", err)
	}

	views := make([]chat.ConversationView, 0, len(convs))
	for _, c := range convs {
		st := settings[c.ID]
		if st.Archived && !includeArchived {
			continue
		}
		views = append(views, chat.ConversationView{Conversation: c, Viewer: byConv[c.ID], Settings: st})
	}
	return views, nil
}

func (s *ConversationsStore) settingsFor(ctx context.Context, userID string, convIDs bson.A) (map[string]chat.Settings, error) {
	cur, err := s.cols.Settings.Find(ctx, bson.D{
		{Key: "user_id", Value: userID},
		{Key: "conversation_id", Value: bson.D{{Key: "$in", Value: convIDs}}},
	})
	if err != nil {
		return nil, err
	}
	var list []chat.Settings
	if err := cur.All(ctx, &list); err != nil {
		return nil, err
	}
	out := make(map[string]chat.Settings, len(list))
	for _, st := range list {
		out[st.ConversationID] = st
	}
	return out, nil
}

// Get returns the conversation as userID sees it. Non-members get ErrNotFound.
func (s *ConversationsStore) Get(ctx context.Context, conversationID, userID string) (*chat.ConversationView, error) {
	viewer, err := s.activeParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, chat.Internal("get_conversation", conversationID, err)
	}
	conv, err := s.conversation(ctx, conversationID)
	if err != nil {
		return nil, chat.Internal("get_conversation", conversationID, err)
	}
	parts, err := s.activeParticipants(ctx, conversationID)
	if err != nil {
		return nil, chat.Internal("get_conversation", conversationID, err)
	}
	settings, err := s.settingsFor(ctx, userID, bson.A{conversationID})
	if err != nil {
		return nil, chat.Internal("get_conversation", conversationID, err)
	}
	st, ok := settings[conversationID]
	if !ok {
		st = chat.Settings{ConversationID: conversationID, UserID: userID}
	}
	return &chat.ConversationView{Conversation: *conv, Viewer: *viewer, Settings: st, Participants: parts}, nil
}

func (s *ConversationsStore) activeParticipants(ctx context.Context, conversationID string) ([]chat.Participant, error) {
	opts := options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.cols.Participants.Find(ctx, bson.D{
		{Key: "conversation_id", Value: conversationID},
		{Key: "active", Value: true},
	}, opts)
	if err != nil {
		return nil, err
	}
	var parts []chat.Participant
	if err := cur.All(ctx, &parts); err != nil {
		return nil, err
	}
	return parts, nil
}

// ActiveParticipantIDs returns the user ids currently in the conversation.
// The broadcaster resolves recipients through it.
func (s *ConversationsStore) ActiveParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	parts, err := s.activeParticipants(ctx, conversationID)
	if err != nil {
		return nil, chat.Internal("active_participants", conversationID, err)
	}
	ids := make([]string, len(parts))
	for i, p := range parts {
		ids[i] = p.UserID
	}
	return ids, nil
}

// UpdateSettings applies patch to the user's settings for the conversation.
func (s *ConversationsStore) UpdateSettings(ctx context.Context, conversationID, userID string, patch chat.SettingsPatch) (*chat.Settings, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.activeParticipant(ctx, conversationID, userID); err != nil {
		return nil, chat.Internal("update_settings", conversationID, err)
	}

	set := bson.D{{Key: "updated_at", Value: s.timestamp()}}
	if patch.Muted != nil {
		set = append(set, bson.E{Key: "muted", Value: *patch.Muted})
	}
	if patch.Archived != nil {
		set = append(set, bson.E{Key: "archived", Value: *patch.Archived})
	}
	if patch.Blocked != nil {
		set = append(set, bson.E{Key: "blocked", Value: *patch.Blocked})
	}
	if patch.CustomName != nil {
		set = append(set, bson.E{Key: "custom_name", Value: *patch.CustomName})
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var st chat.Settings
	err := s.cols.Settings.FindOneAndUpdate(ctx,
		bson.D{{Key: "conversation_id", Value: conversationID}, {Key: "user_id", Value: userID}},
		bson.D{{Key: "$set", Value: set}},
		opts,
	).Decode(&st)
	if err != nil {
		return nil, chat.Internal("update_settings", conversationID, err)
	}
	return &st, nil
}

// Leave ends the user's membership of a group conversation and records a
// system message in the same transaction. Direct and listing conversations
// keep both members for their whole life.
func (s *ConversationsStore) Leave(ctx context.Context, conversationID, userID string) (*chat.Message, error) {
	conv, err := s.conversation(ctx, conversationID)
	if err != nil {
		return nil, chat.Internal("leave_conversation", conversationID, err)
	}
	if _, err := s.activeParticipant(ctx, conversationID, userID); err != nil {
		return nil, chat.Internal("leave_conversation", conversationID, err)
	}
	if conv.Type != chat.ConversationGroup {
		return nil, chat.Invalid("conversation_id", "only group conversations can be left")
	}

	now := s.timestamp()
	msg := chat.Draft{
		ConversationID: conversationID,
		SenderID:       userID,
		Payload:        chat.SystemPayload{Content: fmt.Sprintf("%s left the conversation", userID)},
	}.Build(newID(), now)

	err = s.tx(ctx, func(ctx context.Context) error {
		res, err := s.cols.Participants.UpdateOne(ctx,
			bson.D{
				{Key: "conversation_id", Value: conversationID},
				{Key: "user_id", Value: userID},
				{Key: "active", Value: true},
			},
			bson.D{{Key: "$set", Value: bson.D{
				{Key: "active", Value: false},
				{Key: "left_at", Value: now},
			}}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("%w: conversation %s", chat.ErrNotFound, conversationID)
		}
		return s.appendMessage(ctx, &msg)
	})
	if err != nil {
		return nil, chat.Internal("leave_conversation", conversationID, err)
	}
	return &msg, nil
}
