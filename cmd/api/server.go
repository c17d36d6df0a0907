package main

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	v1 "github.com/PaulBabatuyi/marketChat-gRPC/api/chat/v1"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/chat"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/events"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/listing"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/middleware"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/realtime"
)

// The store subsets the handlers need. The Mongo stores in internal/data
// satisfy them; tests use in-memory fakes.

type conversationStore interface {
	Create(ctx context.Context, nc chat.NewConversation) (*chat.Conversation, bool, error)
	List(ctx context.Context, userID string, includeArchived bool) ([]chat.ConversationView, error)
	Get(ctx context.Context, conversationID, userID string) (*chat.ConversationView, error)
	ActiveParticipantIDs(ctx context.Context, conversationID string) ([]string, error)
	UpdateSettings(ctx context.Context, conversationID, userID string, patch chat.SettingsPatch) (*chat.Settings, error)
	Leave(ctx context.Context, conversationID, userID string) (*chat.Message, error)
}

type messageStore interface {
	Send(ctx context.Context, d chat.Draft) (*chat.Message, error)
	Edit(ctx context.Context, messageID, editorID, content string) (*chat.Message, error)
	Delete(ctx context.Context, messageID, requesterID string) (*chat.Message, bool, error)
	List(ctx context.Context, conversationID, requesterID, cursor string, limit int) (*chat.MessagePage, error)
	MarkRead(ctx context.Context, conversationID, userID, messageID string) (*chat.ReadReceipt, bool, error)
	MarkDelivered(ctx context.Context, conversationID, userID, messageID string) (int64, error)
}

type reactionStore interface {
	Set(ctx context.Context, messageID, userID, symbol string) (*chat.Reaction, bool, error)
	Remove(ctx context.Context, messageID, userID string) (string, bool, error)
	List(ctx context.Context, messageID, userID string) ([]chat.Reaction, error)
}

type reportStore interface {
	File(ctx context.Context, nr chat.NewReport) (*chat.Report, error)
	Transition(ctx context.Context, reportID, actorID string, to chat.ReportStatus, note string) (*chat.Report, error)
	List(ctx context.Context, status chat.ReportStatus, limit int) ([]chat.Report, error)
}

// serverMetrics is the part of the metrics package the handlers report to.
type serverMetrics interface {
	MessageWritten(op, messageType string)
	FrameRejected(reason string)
}

type nopServerMetrics struct{}

func (nopServerMetrics) MessageWritten(string, string) {}
func (nopServerMetrics) FrameRejected(string)          {}

// Server implements the chat service and contains references to stores and
// the real-time components.
type Server struct {
	v1.UnimplementedChatServiceServer

	convs     conversationStore
	msgs      messageStore
	reactions reactionStore
	reports   reportStore

	registry *realtime.Registry
	bc       *realtime.Broadcaster
	typing   *realtime.Typing
	frames   *middleware.LimiterStore

	listings listing.Resolver
	events   events.Publisher
	metrics  serverMetrics

	outboxSize   int
	writeTimeout time.Duration
	log          *zap.Logger
}

// serverDeps collects everything newServer wires together. Zero values get
// working defaults, except for the stores.
type serverDeps struct {
	Convs     conversationStore
	Msgs      messageStore
	Reactions reactionStore
	Reports   reportStore

	Registry       *realtime.Registry
	TypingStore    realtime.TypingStore
	TypingTTL      time.Duration
	Frames         *middleware.LimiterStore
	Listings       listing.Resolver
	Events         events.Publisher
	Metrics        serverMetrics
	TypingMetrics  realtime.Metrics
	OutboxSize     int
	WriteTimeout   time.Duration
	MaxConcurrency int
	Log            *zap.Logger
}

// newServer returns a ready-to-use Server wired with stores and real-time
// delivery.
func newServer(d serverDeps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Registry == nil {
		d.Registry = realtime.NewRegistry(d.Log)
	}
	if d.TypingStore == nil {
		d.TypingStore = realtime.NewMemoryTypingStore()
	}
	if d.Listings == nil {
		d.Listings = listing.Nop{}
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Metrics == nil {
		d.Metrics = nopServerMetrics{}
	}
	if d.Frames == nil {
		d.Frames = middleware.NewLimiterStore(600, 30, time.Minute)
	}

	bc := realtime.NewBroadcaster(d.Registry, d.Convs, d.MaxConcurrency, d.Log)
	return &Server{
		convs:     d.Convs,
		msgs:      d.Msgs,
		reactions: d.Reactions,
		reports:   d.Reports,
		registry:  d.Registry,
		bc:        bc,
		typing: realtime.NewTyping(d.TypingStore, d.Convs, bc, d.Log,
			realtime.WithTypingTTL(d.TypingTTL), realtime.WithTypingMetrics(d.TypingMetrics)),
		frames:       d.Frames,
		listings:     d.Listings,
		events:       d.Events,
		metrics:      d.Metrics,
		outboxSize:   d.OutboxSize,
		writeTimeout: d.WriteTimeout,
		log:          d.Log,
	}
}

// registerService registers the ChatService on the given gRPC server.
func registerService(s *grpc.Server, srv *Server) {
	v1.RegisterChatServiceServer(s, srv)
}
