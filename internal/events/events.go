// Package events publishes a record of every durable chat write to Kafka so
// that downstream consumers (notifications, search, moderation) can follow
// the service without polling MongoDB.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Record types.
const (
	ConversationCreated = "conversation_created"
	ConversationLeft    = "conversation_left"
	SettingsUpdated     = "settings_updated"
	MessageSent         = "message_sent"
	MessageEdited       = "message_edited"
	MessageDeleted      = "message_deleted"
	MessagesRead        = "messages_read"
	ReactionSet         = "reaction_set"
	ReactionRemoved     = "reaction_removed"
	ReportFiled         = "report_filed"
	ReportTransitioned  = "report_transitioned"
)

// Record is one published event.
type Record struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	ReportID       string    `json:"report_id,omitempty"`
	ActorID        string    `json:"actor_id"`
	At             time.Time `json:"at"`
}

// Publisher emits records. Publishing never fails the caller; errors are
// logged by the implementation.
type Publisher interface {
	Publish(ctx context.Context, r Record)
	Close() error
}

// Nop discards every record. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Record) {}
func (Nop) Close() error                    { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes records as JSON, keyed by conversation id so that a
// conversation's records stay ordered within one partition.
type KafkaPublisher struct {
	w   messageWriter
	now func() time.Time
	log *zap.Logger
}

// NewKafkaPublisher returns an asynchronous publisher for topic. Delivery
// errors are reported to log.
func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("topic", topic))
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.Warn("event delivery failed", zap.Int("records", len(msgs)), zap.Error(err))
			}
		},
	}
	return newKafkaPublisher(w, log)
}

func newKafkaPublisher(w messageWriter, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{w: w, now: time.Now, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, r Record) {
	if r.At.IsZero() {
		r.At = p.now().UTC()
	}
	b, err := json.Marshal(r)
	if err != nil {
		p.log.Error("encode event record", zap.String("type", r.Type), zap.Error(err))
		return
	}
	key := r.ConversationID
	if key == "" {
		key = r.ReportID
	}
	msg := kafka.Message{Key: []byte(key), Value: b, Time: r.At}
	if err := p.w.WriteMessages(context.WithoutCancel(ctx), msg); err != nil {
		p.log.Warn("publish event record",
			zap.String("type", r.Type),
			zap.String("conversation_id", r.ConversationID),
			zap.Error(err))
	}
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }
