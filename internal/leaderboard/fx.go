package leaderboard

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/verma04/thrico-backend-services-sub003/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("gamification.leaderboard",
	fx.Provide(func(client *redis.Client, cfg config.Config) *Board {
		return New(client, cfg.Leaderboard.Retention)
	}),
)
