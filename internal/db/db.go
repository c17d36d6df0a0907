// Package db manages MongoDB connections and collections.
package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// DefaultDatabase is used when no database name is configured.
const DefaultDatabase = "chat_db"

// Collection names. Every collection below conversations carries
// conversation_id so a conversation's data can be located (and purged) by that
// key alone.
const (
	Conversations = "conversations"
	Participants  = "participants"
	Messages      = "messages"
	Reactions     = "reactions"
	Reports       = "reports"
	Settings      = "conversation_settings"
)

// Client wraps mongo.Client and exposes collections.
type Client struct {
	// client is the underlying MongoDB connection (thread-safe, can be reused)
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB and returns a Client. Transactions used by the
// message store require the server to be a replica set member.
func New(ctx context.Context, mongoURI, database string) (*Client, error) {
	opts := options.Client().
		ApplyURI(mongoURI).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	if database == "" {
		database = DefaultDatabase
	}
	return &Client{client: client, db: client.Database(database)}, nil
}

// Collection returns the named collection.
func (c *Client) Collection(name string) *mongo.Collection {
	return c.db.Collection(name)
}

func (c *Client) ConversationsCollection() *mongo.Collection { return c.Collection(Conversations) }
func (c *Client) ParticipantsCollection() *mongo.Collection  { return c.Collection(Participants) }
func (c *Client) MessagesCollection() *mongo.Collection      { return c.Collection(Messages) }
func (c *Client) ReactionsCollection() *mongo.Collection     { return c.Collection(Reactions) }
func (c *Client) ReportsCollection() *mongo.Collection       { return c.Collection(Reports) }
func (c *Client) SettingsCollection() *mongo.Collection      { return c.Collection(Settings) }

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Drop removes every collection owned by the service. Tests only.
func (c *Client) Drop(ctx context.Context) error {
	for _, name := range []string{Conversations, Participants, Messages, Reactions, Reports, Settings} {
		if err := c.Collection(name).Drop(ctx); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
	}
	return nil
}

// CreateIndexes creates the indexes the stores rely on for uniqueness and
// ordering. It is safe to call on every start.
func (c *Client) CreateIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		Conversations: {
			{
				// One direct/listing conversation per member pair (and listing).
				// Group conversations carry no key and stay out of the index.
				Keys: bson.D{{Key: "direct_key", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.D{{Key: "direct_key", Value: bson.D{{Key: "$type", Value: "string"}}}}),
			},
		},
		Participants: {
			{
				// A user holds at most one active membership per conversation.
				Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.D{{Key: "active", Value: true}}),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "active", Value: 1}}},
		},
		Messages: {
			// Conversation order is (created_at, _id).
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
		},
		Reactions: {
			{
				Keys:    bson.D{{Key: "message_id", Value: 1}, {Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "conversation_id", Value: 1}}},
		},
		Reports: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "message_id", Value: 1}}},
		},
		Settings: {
			{
				Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}

	for name, models := range specs {
		if _, err := c.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", name, err)
		}
	}
	return nil
}
