package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PaulBabatuyi/marketChat-gRPC/internal/chat"
)

type fakeParticipants struct {
	ids map[string][]string
	err error
}

func (f fakeParticipants) ActiveParticipantIDs(_ context.Context, conversationID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ids[conversationID], nil
}

type countingMetrics struct {
	mu        sync.Mutex
	delivered int
	dropped   int
	typing    int
}

func (m *countingMetrics) ConnectionsChanged(int) {}
func (m *countingMetrics) EventDelivered(EventType) {
	m.mu.Lock()
	m.delivered++
	m.mu.Unlock()
}
func (m *countingMetrics) EventDropped(EventType, string) {
	m.mu.Lock()
	m.dropped++
	m.mu.Unlock()
}
func (m *countingMetrics) TypingUpdated(EventType) {
	m.mu.Lock()
	m.typing++
	m.mu.Unlock()
}

func TestBroadcast_ExcludesSenderAndSkipsOffline(t *testing.T) {
	metrics := &countingMetrics{}
	reg := NewRegistry(nil, WithMetrics(metrics))
	alice, bob := newFakeConn(), newFakeConn()
	reg.Register("alice", alice)
	reg.Register("bob", bob)

	bc := NewBroadcaster(reg, fakeParticipants{ids: map[string][]string{"c1": {"alice", "bob", "carol"}}}, 2, nil)
	bc.BroadcastToConversation(context.Background(), Event{Type: EventNewMessage, ConversationID: "c1"}, "alice")

	if len(alice.received()) != 0 {
		t.Fatal("excluded sender received its own event")
	}
	if len(bob.received()) != 1 {
		t.Fatalf("bob received %d events", len(bob.received()))
	}
	if metrics.delivered != 1 || metrics.dropped != 0 {
		t.Fatalf("delivered=%d dropped=%d", metrics.delivered, metrics.dropped)
	}
}

func TestBroadcast_SlowRecipientDoesNotDelayOthers(t *testing.T) {
	reg := NewRegistry(nil, WithSendTimeout(50*time.Millisecond))
	stuck := newFakeConn()
	stuck.block = true
	reg.Register("stuck", stuck)

	healthy := make([]*fakeConn, 5)
	ids := []string{"stuck"}
	for i := range healthy {
		healthy[i] = newFakeConn()
		id := string(rune('a' + i))
		reg.Register(id, healthy[i])
		ids = append(ids, id)
	}

	bc := NewBroadcaster(reg, fakeParticipants{ids: map[string][]string{"c1": ids}}, 8, nil)
	start := time.Now()
	bc.BroadcastToConversation(context.Background(), Event{Type: EventNewMessage, ConversationID: "c1"}, "")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("broadcast took %v", elapsed)
	}
	for i, c := range healthy {
		if len(c.received()) != 1 {
			t.Fatalf("recipient %d missed the event", i)
		}
	}
	if reg.Connected("stuck") {
		t.Fatal("stuck recipient should have been released")
	}
}

func TestBroadcast_ParticipantErrorIsSwallowed(t *testing.T) {
	reg := NewRegistry(nil)
	bc := NewBroadcaster(reg, fakeParticipants{err: errors.New("db down")}, 0, nil)
	// must not panic or block
	bc.BroadcastToConversation(context.Background(), Event{Type: EventNewMessage, ConversationID: "c1"}, "")
}

func TestBroadcast_SurvivesCanceledRequest(t *testing.T) {
	reg := NewRegistry(nil)
	bob := newFakeConn()
	reg.Register("bob", bob)
	bc := NewBroadcaster(reg, fakeParticipants{}, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bc.BroadcastTo(ctx, []string{"bob"}, Event{Type: EventReadReceipt, ConversationID: "c1"}, "")
	if len(bob.received()) != 1 {
		t.Fatal("a finished request must not cancel delivery")
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTypingFixture(t *testing.T) (*Typing, *MemoryTypingStore, *fakeClock, *fakeConn, *countingMetrics) {
	t.Helper()
	reg := NewRegistry(nil)
	bob := newFakeConn()
	reg.Register("bob", bob)
	parts := fakeParticipants{ids: map[string][]string{"c1": {"alice", "bob"}}}
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryTypingStore()
	metrics := &countingMetrics{}
	typing := NewTyping(store, parts, NewBroadcaster(reg, parts, 0, nil), nil,
		WithTypingClock(clock.Now), WithTypingTTL(5*time.Second), WithTypingMetrics(metrics))
	return typing, store, clock, bob, metrics
}

func TestTyping_StartBroadcastsAndExpires(t *testing.T) {
	typing, _, clock, bob, metrics := newTypingFixture(t)
	ctx := context.Background()

	entry, err := typing.Start(ctx, "c1", "alice")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !entry.ExpiresAt.Equal(clock.Now().Add(5 * time.Second)) {
		t.Fatalf("expires_at = %v", entry.ExpiresAt)
	}
	got := bob.received()
	if len(got) != 1 || got[0].Type != EventTyping {
		t.Fatalf("bob events = %+v", got)
	}
	if data := got[0].Data.(TypingData); data.UserID != "alice" || data.ExpiresAt == nil {
		t.Fatalf("typing data = %+v", data)
	}
	if metrics.typing != 1 {
		t.Fatalf("typing metric = %d", metrics.typing)
	}

	active, err := typing.Active(ctx, "c1", "bob")
	if err != nil || len(active) != 1 {
		t.Fatalf("Active = %+v, %v", active, err)
	}

	clock.Advance(5 * time.Second)
	active, err = typing.Active(ctx, "c1", "bob")
	if err != nil || len(active) != 0 {
		t.Fatalf("expired record still active: %+v, %v", active, err)
	}
}

func TestTyping_StopAlwaysBroadcasts(t *testing.T) {
	typing, store, clock, bob, _ := newTypingFixture(t)
	ctx := context.Background()

	if _, err := typing.Start(ctx, "c1", "alice"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := typing.Stop(ctx, "c1", "alice"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	got := bob.received()
	if len(got) != 2 || got[1].Type != EventTypingStopped {
		t.Fatalf("bob events = %+v", got)
	}

	// the record expires and is swept before the client says it stopped
	if _, err := typing.Start(ctx, "c1", "alice"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	clock.Advance(time.Minute)
	store.Sweep(clock.Now())
	if err := typing.Stop(ctx, "c1", "alice"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	got = bob.received()
	if len(got) != 4 || got[3].Type != EventTypingStopped {
		t.Fatalf("expected a stop after expiry, bob events = %+v", got)
	}
}

func TestTyping_NonParticipantForbidden(t *testing.T) {
	typing, _, _, bob, _ := newTypingFixture(t)
	ctx := context.Background()

	if _, err := typing.Start(ctx, "c1", "mallory"); !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
	if _, err := typing.Active(ctx, "c1", "mallory"); !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
	if len(bob.received()) != 0 {
		t.Fatal("rejected typing frame was broadcast")
	}
}

func TestMemoryTypingStore_Sweep(t *testing.T) {
	s := NewMemoryTypingStore()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_ = s.Upsert(ctx, "c1", "alice", now.Add(time.Second))
	_ = s.Upsert(ctx, "c1", "bob", now.Add(time.Minute))
	_ = s.Upsert(ctx, "c2", "carol", now)

	if n := s.Sweep(now.Add(2 * time.Second)); n != 2 {
		t.Fatalf("Sweep removed %d, want 2", n)
	}
	active, _ := s.Active(ctx, "c1", now)
	if len(active) != 1 || active[0].UserID != "bob" {
		t.Fatalf("active = %+v", active)
	}
	if _, ok := s.entries["c2"]; ok {
		t.Fatal("empty conversation should be dropped")
	}
}
