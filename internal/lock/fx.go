package lock

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/coursedesk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("lock",
	fx.Provide(NewLocker),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Cfg       config.Config
	Log       *zap.Logger
}

// NewLocker uses Redis when REDIS_ADDR is set and an in-process keyed mutex otherwise.
func NewLocker(p Params) Locker {
	addr := strings.TrimSpace(p.Cfg.RedisAddr)
	if addr == "" {
		p.Log.Info("record locks are process local")
		return NewMemoryLocker()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(p.Cfg.RedisPassword),
		DB:       p.Cfg.RedisDB,
	})
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	p.Log.Info("record locks use redis", zap.String("addr", addr))
	return NewRedisLocker(client, p.Cfg.LockTTL)
}
