package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mindburn-Labs/sdnguard/pkg/dispatch"
)

const redisKeyPrefix = "sdnguard:session:"

// RedisStore keeps each session as one JSON value whose TTL is refreshed on
// every Put, so idle sessions expire on the server.
type RedisStore struct {
	client   *redis.Client
	ttl      time.Duration
	maxTurns int
}

// NewRedisStore connects lazily to addr.
func NewRedisStore(addr, password string, db int, maxTurns int, ttl time.Duration) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: rdb, ttl: ttl, maxTurns: maxTurns}
}

func redisKey(id string) string { return redisKeyPrefix + id }

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis session store: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) ([]dispatch.Turn, error) {
	raw, err := s.client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis session get %q: %w", id, err)
	}
	var turns []dispatch.Turn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, fmt.Errorf("redis session %q is corrupt: %w", id, err)
	}
	return turns, nil
}

func (s *RedisStore) Put(ctx context.Context, id string, turns []dispatch.Turn) error {
	raw, err := json.Marshal(trim(turns, s.maxTurns))
	if err != nil {
		return fmt.Errorf("redis session encode: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(id), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis session put %q: %w", id, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
