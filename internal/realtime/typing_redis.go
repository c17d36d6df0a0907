package realtime

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTypingStore keeps one sorted set per conversation, members scored by
// their expiry in Unix milliseconds. Expired members are trimmed on read and
// the key itself expires shortly after its newest member.
type RedisTypingStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisTypingStore returns a store using keys "<prefix>typing:<conversation>".
// keyTTL bounds how long an idle conversation key survives.
func NewRedisTypingStore(client redis.Cmdable, prefix string, keyTTL time.Duration) *RedisTypingStore {
	if keyTTL <= 0 {
		keyTTL = 2 * DefaultTypingTTL
	}
	return &RedisTypingStore{client: client, prefix: prefix, ttl: keyTTL}
}

func (s *RedisTypingStore) key(conversationID string) string {
	return fmt.Sprintf("%styping:%s", s.prefix, conversationID)
}

func (s *RedisTypingStore) Upsert(ctx context.Context, conversationID, userID string, expiresAt time.Time) error {
	key := s.key(conversationID)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, key, redis.Z{Score: float64(expiresAt.UnixMilli()), Member: userID})
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

func (s *RedisTypingStore) Remove(ctx context.Context, conversationID, userID string) (bool, error) {
	n, err := s.client.ZRem(ctx, s.key(conversationID), userID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisTypingStore) Active(ctx context.Context, conversationID string, now time.Time) ([]TypingEntry, error) {
	key := s.key(conversationID)
	cutoff := strconv.FormatInt(now.UnixMilli(), 10)
	if err := s.client.ZRemRangeByScore(ctx, key, "-inf", cutoff).Err(); err != nil {
		return nil, err
	}
	zs, err := s.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{Min: "(" + cutoff, Max: "+inf"}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]TypingEntry, 0, len(zs))
	for _, z := range zs {
		user, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, TypingEntry{UserID: user, ExpiresAt: time.UnixMilli(int64(z.Score)).UTC()})
	}
	return out, nil
}
