package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/verma04/thrico-backend-services-sub003/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewLocker),
	fx.Provide(func(client *redis.Client, cfg config.Config) *Cooldown {
		return NewCooldown(client, cfg.Engine.Cooldown)
	}),
)
