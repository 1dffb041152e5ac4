package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/sdnguard/pkg/dispatch"
)

// TestRedisStore_Integration requires a running Redis on localhost:6379.
func TestRedisStore_Integration(t *testing.T) {
	s := NewRedisStore("localhost:6379", "", 0, 4, time.Minute)
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	id := "test-" + time.Now().Format("150405.000000")
	defer s.client.Del(ctx, redisKey(id))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)

	turns := []dispatch.Turn{
		dispatch.Operator("q1"), dispatch.Assistant("a1"),
		dispatch.Operator("q2"), dispatch.Assistant("a2"),
		dispatch.Operator("q3"), dispatch.Assistant("a3"),
	}
	require.NoError(t, s.Put(ctx, id, turns))

	got, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, turns[2:], got)

	ttl, err := s.client.TTL(ctx, redisKey(id)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisKey(t *testing.T) {
	assert.Equal(t, "sdnguard:session:ops", redisKey("ops"))
}
