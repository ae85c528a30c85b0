package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrNotConfigured = errors.New("rate_limiter_not_configured")
	ErrEmptyKey      = errors.New("rate_limiter_key_empty")
	ErrInvalidLimit  = errors.New("rate_limiter_invalid_limit")
)

// bucketScript refills on the redis clock and returns
// {allowed, remaining tokens as string, retry after in ms}.
const bucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = (t[1] * 1000) + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local ts = tonumber(state[2]) or now

local elapsed = math.max(now - ts, 0)
tokens = math.min(burst, tokens + (elapsed / 1000) * rate)

local allowed = 0
local retry = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  retry = math.ceil(((1 - tokens) / rate) * 1000)
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens), retry}
`

// Limit is a refill rate in tokens per second and a bucket capacity.
type Limit struct {
	Rate  float64
	Burst int
}

func (l Limit) valid() bool {
	return l.Rate > 0 && l.Burst > 0
}

// ttl keeps an idle bucket around for twice the time it takes to refill.
func (l Limit) ttl() time.Duration {
	if !l.valid() {
		return time.Second
	}
	seconds := math.Max(math.Ceil(float64(l.Burst)/l.Rate*2), 1)
	return time.Duration(seconds) * time.Second
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, script: redis.NewScript(bucketScript)}
}

func (t *TokenBucket) Allow(ctx context.Context, key string, limit Limit) (*RateLimitResult, error) {
	switch {
	case t == nil || t.client == nil:
		return nil, ErrNotConfigured
	case key == "":
		return nil, ErrEmptyKey
	case !limit.valid():
		return nil, ErrInvalidLimit
	}

	reply, err := t.script.Run(ctx, t.client, []string{key},
		limit.Rate, limit.Burst, limit.ttl().Milliseconds(),
	).Slice()
	if err != nil {
		return nil, err
	}
	return parseReply(reply, limit)
}

func parseReply(reply []interface{}, limit Limit) (*RateLimitResult, error) {
	if len(reply) != 3 {
		return nil, errors.New("unexpected rate limit reply")
	}
	allowed, _ := reply[0].(int64)
	retryMs, _ := reply[2].(int64)

	var remaining float64
	if raw, ok := reply[1].(string); ok {
		remaining, _ = strconv.ParseFloat(raw, 64)
	}

	return &RateLimitResult{
		Allowed:    allowed == 1,
		Limit:      limit.Burst,
		Remaining:  int(math.Floor(remaining)),
		RetryAfter: time.Duration(retryMs) * time.Millisecond,
	}, nil
}
