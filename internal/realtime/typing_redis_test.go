package realtime

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisTypingStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping integration test")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis ping failed: %v", err)
	}

	prefix := fmt.Sprintf("test:%d:", time.Now().UnixNano())
	s := NewRedisTypingStore(client, prefix, time.Minute)
	t.Cleanup(func() { _ = client.Del(context.Background(), s.key("c1")).Err() })

	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := s.Upsert(ctx, "c1", "alice", now.Add(time.Second)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := s.Upsert(ctx, "c1", "bob", now.Add(-time.Second)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	active, err := s.Active(ctx, "c1", now)
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if len(active) != 1 || active[0].UserID != "alice" || !active[0].ExpiresAt.Equal(now.Add(time.Second)) {
		t.Fatalf("active = %+v", active)
	}

	ttl, err := client.TTL(ctx, s.key("c1")).Result()
	if err != nil || ttl <= 0 {
		t.Fatalf("key should carry a TTL, got %v (%v)", ttl, err)
	}

	removed, err := s.Remove(ctx, "c1", "alice")
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
	removed, err = s.Remove(ctx, "c1", "alice")
	if err != nil || removed {
		t.Fatalf("second Remove = %v, %v", removed, err)
	}
}
