package consumer

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/verma04/thrico-backend-services-sub003/internal/clock"
	"github.com/verma04/thrico-backend-services-sub003/internal/config"
	"github.com/verma04/thrico-backend-services-sub003/internal/engine"
	obsmetrics "github.com/verma04/thrico-backend-services-sub003/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("gamification.consumer",
	fx.Provide(NewConsumer),
	fx.Invoke(registerConsumer),
)

type Params struct {
	fx.In

	Client    *redis.Client
	Processor *engine.Processor
	Config    config.Config
	Clock     clock.Clock
	Metrics   *obsmetrics.EngineMetrics
	Log       *zap.Logger
}

func NewConsumer(p Params) *Consumer {
	return New(p.Client, p.Processor, p.Config.Stream, p.Clock, p.Metrics, p.Log)
}

func registerConsumer(lc fx.Lifecycle, c *Consumer) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.Start()
			return nil
		},
		OnStop: c.Stop,
	})
}
