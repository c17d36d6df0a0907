package realtime

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ParticipantSource resolves the active members of a conversation.
type ParticipantSource interface {
	ActiveParticipantIDs(ctx context.Context, conversationID string) ([]string, error)
}

const DefaultMaxConcurrency = 32

// Broadcaster fans an event out to the connected members of a conversation.
// Delivery is best effort: failures are logged and counted, never returned.
type Broadcaster struct {
	reg   *Registry
	parts ParticipantSource
	limit int
	log   *zap.Logger
}

func NewBroadcaster(reg *Registry, parts ParticipantSource, maxConcurrency int, log *zap.Logger) *Broadcaster {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{reg: reg, parts: parts, limit: maxConcurrency, log: log}
}

// BroadcastToConversation sends ev to every active participant except
// exclude. It returns once every send has finished or timed out.
func (b *Broadcaster) BroadcastToConversation(ctx context.Context, ev Event, exclude string) {
	ids, err := b.parts.ActiveParticipantIDs(ctx, ev.ConversationID)
	if err != nil {
		b.log.Warn("broadcast: resolving participants failed",
			zap.String("conversation_id", ev.ConversationID),
			zap.String("event", string(ev.Type)),
			zap.Error(err))
		return
	}
	b.BroadcastTo(ctx, ids, ev, exclude)
}

// BroadcastTo sends ev to recipients except exclude.
func (b *Broadcaster) BroadcastTo(ctx context.Context, recipients []string, ev Event, exclude string) {
	// deliveries outlive the request that triggered them
	ctx = context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(b.limit)
	for _, id := range recipients {
		if id == exclude {
			continue
		}
		g.Go(func() error {
			err := b.reg.SendToUser(ctx, id, ev)
			switch {
			case err == nil, errors.Is(err, ErrNotConnected):
			default:
				b.log.Debug("broadcast: delivery failed",
					zap.String("user_id", id),
					zap.String("conversation_id", ev.ConversationID),
					zap.String("event", string(ev.Type)),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}
