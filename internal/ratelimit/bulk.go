package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/coursedesk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyBulkActor = "coursedesk:ratelimit:bulk:%s"

// BulkLimiter throttles bulk corrections per actor. A nil limiter allows everything.
type BulkLimiter struct {
	bucket *TokenBucket
	limit  Limit
}

func NewBulkLimiter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *BulkLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" || cfg.BulkRateLimitPerMinute <= 0 || cfg.BulkRateLimitBurst <= 0 {
		log.Info("bulk rate limit disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	log.Info("bulk rate limit enabled",
		zap.Float64("per_minute", cfg.BulkRateLimitPerMinute),
		zap.Int("burst", cfg.BulkRateLimitBurst),
	)
	return newBulkLimiter(NewTokenBucket(client), cfg.BulkRateLimitPerMinute, cfg.BulkRateLimitBurst)
}

func newBulkLimiter(bucket *TokenBucket, perMinute float64, burst int) *BulkLimiter {
	return &BulkLimiter{
		bucket: bucket,
		limit:  Limit{Rate: perMinute / 60, Burst: burst},
	}
}

func (l *BulkLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *BulkLimiter) Allow(ctx context.Context, actorID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyBulkActor, strings.TrimSpace(actorID)), l.limit)
}
