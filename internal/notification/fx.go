package notification

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/verma04/thrico-backend-services-sub003/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("gamification.notification",
	fx.Provide(NewSink),
)

type Params struct {
	fx.In

	Config config.Config
	Client *redis.Client
	Log    *zap.Logger
}

// NewSink selects the sink named by notification.sink.
func NewSink(p Params) Sink {
	if p.Config.Notification.Sink == config.SinkLog {
		return NewLogSink(p.Log)
	}
	return NewStreamSink(p.Client, p.Config.Notification.Stream, p.Config.Notification.MaxLen)
}
