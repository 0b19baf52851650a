package engine

import (
	"github.com/bwmarrin/snowflake"
	"github.com/verma04/thrico-backend-services-sub003/internal/badges"
	"github.com/verma04/thrico-backend-services-sub003/internal/clock"
	"github.com/verma04/thrico-backend-services-sub003/internal/config"
	"github.com/verma04/thrico-backend-services-sub003/internal/gamification/domain"
	"github.com/verma04/thrico-backend-services-sub003/internal/idempotency"
	"github.com/verma04/thrico-backend-services-sub003/internal/leaderboard"
	"github.com/verma04/thrico-backend-services-sub003/internal/notification"
	obsmetrics "github.com/verma04/thrico-backend-services-sub003/internal/observability/metrics"
	"github.com/verma04/thrico-backend-services-sub003/internal/outbox"
	"github.com/verma04/thrico-backend-services-sub003/internal/points"
	"github.com/verma04/thrico-backend-services-sub003/internal/ranks"
	"github.com/verma04/thrico-backend-services-sub003/internal/ratelimit"
	"github.com/verma04/thrico-backend-services-sub003/internal/rules"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("gamification.engine",
	fx.Provide(NewProcessor),
	fx.Invoke(RegisterHandlers),
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Repo       domain.Repository
	Guard      *idempotency.Guard
	Loader     *rules.Loader
	Awarder    *points.Awarder
	Badges     *badges.Tracker
	Ranks      *ranks.Tracker
	Cooldown   *ratelimit.Cooldown
	Writer     *outbox.Writer
	Dispatcher *outbox.Dispatcher
	GenID      *snowflake.Node
	Clock      clock.Clock
	Metrics    *obsmetrics.EngineMetrics
	Config     config.Config
	Log        *zap.Logger
}

func NewProcessor(p Params) *Processor {
	return New(Deps{
		DB:         p.DB,
		Repo:       p.Repo,
		Guard:      p.Guard,
		Loader:     p.Loader,
		Awarder:    p.Awarder,
		Badges:     p.Badges,
		Ranks:      p.Ranks,
		Cooldown:   p.Cooldown,
		Writer:     p.Writer,
		Dispatcher: p.Dispatcher,
		GenID:      p.GenID,
		Clock:      p.Clock,
		Metrics:    p.Metrics,
		Log:        p.Log,
	}, Options{NotifyPointsEarned: p.Config.Engine.NotifyPointsEarned})
}

// RegisterHandlers binds the side-effect kinds to their handlers.
func RegisterHandlers(d *outbox.Dispatcher, board *leaderboard.Board, sink notification.Sink, metrics *obsmetrics.EngineMetrics) {
	d.Register(outbox.KindLeaderboardIncrement, LeaderboardHandler(board, metrics))
	d.Register(outbox.KindNotification, NotificationHandler(sink))
}
