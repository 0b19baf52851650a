package redisclient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/verma04/thrico-backend-services-sub003/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("redis",
	fx.Provide(New),
)

var ErrMissingAddr = errors.New("redis_addr_required")

// New builds the shared Redis client used for the event log, markers,
// leaderboards and the notification stream.
func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*redis.Client, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, ErrMissingAddr
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})

	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("ping redis %s: %w", addr, err)
				}
				log.Info("redis connected", zap.String("addr", addr), zap.Int("db", cfg.Redis.DB))
				return nil
			},
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}
	return client, nil
}
