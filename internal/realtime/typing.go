package realtime

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PaulBabatuyi/marketChat-gRPC/internal/chat"
)

const DefaultTypingTTL = 30 * time.Second

// TypingEntry is one user currently typing in a conversation.
type TypingEntry struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TypingStore keeps ephemeral typing records. Active never returns records
// that expired at or before now.
type TypingStore interface {
	Upsert(ctx context.Context, conversationID, userID string, expiresAt time.Time) error
	Remove(ctx context.Context, conversationID, userID string) (bool, error)
	Active(ctx context.Context, conversationID string, now time.Time) ([]TypingEntry, error)
}

// MemoryTypingStore is a process-local TypingStore.
type MemoryTypingStore struct {
	mu      sync.Mutex
	entries map[string]map[string]time.Time
}

func NewMemoryTypingStore() *MemoryTypingStore {
	return &MemoryTypingStore{entries: make(map[string]map[string]time.Time)}
}

func (s *MemoryTypingStore) Upsert(_ context.Context, conversationID, userID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, ok := s.entries[conversationID]
	if !ok {
		users = make(map[string]time.Time)
		s.entries[conversationID] = users
	}
	users[userID] = expiresAt
	return nil
}

func (s *MemoryTypingStore) Remove(_ context.Context, conversationID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := s.entries[conversationID]
	if _, ok := users[userID]; !ok {
		return false, nil
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(s.entries, conversationID)
	}
	return true, nil
}

func (s *MemoryTypingStore) Active(_ context.Context, conversationID string, now time.Time) ([]TypingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TypingEntry
	for user, exp := range s.entries[conversationID] {
		if exp.After(now) {
			out = append(out, TypingEntry{UserID: user, ExpiresAt: exp})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Sweep drops every record expired at now and returns how many it removed.
func (s *MemoryTypingStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for conv, users := range s.entries {
		for user, exp := range users {
			if !exp.After(now) {
				delete(users, user)
				n++
			}
		}
		if len(users) == 0 {
			delete(s.entries, conv)
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryTypingStore) RunSweeper(ctx context.Context, interval time.Duration, now func() time.Time) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(now())
		}
	}
}

// Typing implements the typing indicator: membership check, store update and
// fan-out to the other members.
type Typing struct {
	store   TypingStore
	parts   ParticipantSource
	bc      *Broadcaster
	ttl     time.Duration
	now     func() time.Time
	metrics Metrics
	log     *zap.Logger
}

// TypingOption configures Typing.
type TypingOption func(*Typing)

func WithTypingClock(now func() time.Time) TypingOption {
	return func(t *Typing) { t.now = now }
}

func WithTypingTTL(d time.Duration) TypingOption {
	return func(t *Typing) {
		if d > 0 {
			t.ttl = d
		}
	}
}

func WithTypingMetrics(m Metrics) TypingOption {
	return func(t *Typing) {
		if m != nil {
			t.metrics = m
		}
	}
}

func NewTyping(store TypingStore, parts ParticipantSource, bc *Broadcaster, log *zap.Logger, opts ...TypingOption) *Typing {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Typing{
		store:   store,
		parts:   parts,
		bc:      bc,
		ttl:     DefaultTypingTTL,
		now:     time.Now,
		metrics: nopMetrics{},
		log:     log,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// members returns the conversation's active participants after checking
// that userID is one of them.
func (t *Typing) members(ctx context.Context, conversationID, userID string) ([]string, error) {
	ids, err := t.parts.ActiveParticipantIDs(ctx, conversationID)
	if err != nil {
		return nil, chat.Internal("typing", conversationID, err)
	}
	if !slices.Contains(ids, userID) {
		return nil, fmt.Errorf("%w: not a participant of conversation %s", chat.ErrForbidden, conversationID)
	}
	return ids, nil
}

// Start records that userID is typing until now+TTL and notifies the others.
func (t *Typing) Start(ctx context.Context, conversationID, userID string) (*TypingEntry, error) {
	ids, err := t.members(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	exp := chat.Timestamp(t.now().Add(t.ttl))
	if err := t.store.Upsert(ctx, conversationID, userID, exp); err != nil {
		return nil, chat.Internal("typing", conversationID, err)
	}
	t.metrics.TypingUpdated(EventTyping)
	t.bc.BroadcastTo(ctx, ids, Event{
		Type:           EventTyping,
		ConversationID: conversationID,
		Data:           TypingData{UserID: userID, ExpiresAt: &exp},
	}, userID)
	return &TypingEntry{UserID: userID, ExpiresAt: exp}, nil
}

// Stop removes the user's record and notifies the others. The stop is sent
// even when the record had already expired, since peers may still show it.
func (t *Typing) Stop(ctx context.Context, conversationID, userID string) error {
	ids, err := t.members(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if _, err := t.store.Remove(ctx, conversationID, userID); err != nil {
		return chat.Internal("typing_stopped", conversationID, err)
	}
	t.metrics.TypingUpdated(EventTypingStopped)
	t.bc.BroadcastTo(ctx, ids, Event{
		Type:           EventTypingStopped,
		ConversationID: conversationID,
		Data:           TypingData{UserID: userID},
	}, userID)
	return nil
}

// Active lists unexpired typing records of a conversation the caller belongs
// to.
func (t *Typing) Active(ctx context.Context, conversationID, userID string) ([]TypingEntry, error) {
	if _, err := t.members(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	entries, err := t.store.Active(ctx, conversationID, t.now())
	if err != nil {
		return nil, chat.Internal("typing_active", conversationID, err)
	}
	return entries, nil
}
