package outbox

import (
	"context"
	"time"

	"github.com/verma04/thrico-backend-services-sub003/internal/clock"
	"github.com/verma04/thrico-backend-services-sub003/internal/config"
	"github.com/verma04/thrico-backend-services-sub003/internal/idempotency"
	obsmetrics "github.com/verma04/thrico-backend-services-sub003/internal/observability/metrics"
	"github.com/verma04/thrico-backend-services-sub003/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("gamification.outbox",
	fx.Provide(NewWriter),
	fx.Provide(provideDispatcher),
	fx.Provide(provideReconciler),
	fx.Invoke(registerReconciler),
)

type DispatcherParams struct {
	fx.In

	DB      *gorm.DB
	Writer  *Writer
	Clock   clock.Clock
	Config  config.Config
	Metrics *obsmetrics.EngineMetrics
	Log     *zap.Logger
}

func provideDispatcher(p DispatcherParams) *Dispatcher {
	return NewDispatcher(p.DB, p.Writer, p.Clock, SettingsFromConfig(p.Config.Outbox), p.Metrics, p.Log)
}

type ReconcilerParams struct {
	fx.In

	DB         *gorm.DB
	Dispatcher *Dispatcher
	Locker     *ratelimit.Locker
	Guard      *idempotency.Guard
	Config     config.Config
	Log        *zap.Logger
}

func provideReconciler(p ReconcilerParams) *Reconciler {
	var sweeps []Sweep
	if retention := p.Config.Engine.ProcessedRetention; retention > 0 {
		sweeps = append(sweeps, purgeProcessed(p.DB, p.Guard, retention, p.Log))
	}
	return NewReconciler(p.Dispatcher, p.Locker, p.Config.Outbox, p.Log, sweeps...)
}

func purgeProcessed(db *gorm.DB, guard *idempotency.Guard, retention time.Duration, log *zap.Logger) Sweep {
	return func(ctx context.Context) error {
		n, err := guard.Purge(ctx, db, retention)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("purged processed events", zap.Int64("rows", n))
		}
		return nil
	}
}

func registerReconciler(lc fx.Lifecycle, r *Reconciler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return r.Start(ctx)
		},
		OnStop: func(context.Context) error {
			cancel()
			return r.Stop()
		},
	})
}
