package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitTTL(t *testing.T) {
	assert.Equal(t, time.Second, Limit{Rate: 0, Burst: 5}.ttl())
	assert.Equal(t, 20*time.Second, Limit{Rate: 0.5, Burst: 5}.ttl())
	assert.Equal(t, time.Second, Limit{Rate: 100, Burst: 1}.ttl())
}

func TestParseReply(t *testing.T) {
	res, err := parseReply([]interface{}{int64(1), "3.7", int64(0)}, Limit{Rate: 1, Burst: 5})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 3, res.Remaining)
	assert.Equal(t, 5, res.Limit)

	res, err = parseReply([]interface{}{int64(0), "0.5", int64(1000)}, Limit{Rate: 0.5, Burst: 5})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, time.Second, res.RetryAfter)

	_, err = parseReply([]interface{}{int64(1)}, Limit{Rate: 1, Burst: 1})
	assert.Error(t, err)
}

func TestTokenBucket_RejectsBadInput(t *testing.T) {
	var bucket *TokenBucket
	_, err := bucket.Allow(context.Background(), "k", Limit{Rate: 1, Burst: 1})
	assert.ErrorIs(t, err, ErrNotConfigured)

	bucket = NewTokenBucket(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}))
	_, err = bucket.Allow(context.Background(), "", Limit{Rate: 1, Burst: 1})
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = bucket.Allow(context.Background(), "k", Limit{Rate: 0, Burst: 1})
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestNilBulkLimiterAllows(t *testing.T) {
	var l *BulkLimiter
	assert.False(t, l.Enabled())

	res, err := l.Allow(context.Background(), "100")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestBulkLimiter_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	l := newBulkLimiter(NewTokenBucket(client), 1, 2)
	ctx := context.Background()
	actor := uuid.NewString()

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, actor)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := l.Allow(ctx, actor)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}
