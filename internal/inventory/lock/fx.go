package lock

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/kontago/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("inventory.lock",
	fx.Provide(NewLocker),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
}

// NewLocker picks the lease backend from LOCK_BACKEND.
func NewLocker(p Params) Locker {
	log := p.Log.Named("inventory.lock")
	if p.Config.Lock.Backend != config.LockBackendRedis {
		log.Info("using in-process product locks")
		return NewLocalLocker()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     p.Config.Lock.RedisAddr,
		Password: p.Config.Lock.RedisPassword,
		DB:       p.Config.Lock.RedisDB,
	})
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	log.Info("using redis product leases",
		zap.String("addr", p.Config.Lock.RedisAddr),
		zap.Duration("lease_ttl", p.Config.Lock.LeaseTTL),
	)
	return NewRedisLocker(client, p.Config.Lock.LeaseTTL, log)
}
