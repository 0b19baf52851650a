package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/verma04/thrico-backend-services-sub003/internal/config"
	"github.com/verma04/thrico-backend-services-sub003/internal/ratelimit"
	"go.uber.org/zap"
)

const reconcilerLockKey = "gamification:lock:outbox-reconciler"

// Sweep is extra housekeeping run under the reconciler lease.
type Sweep func(ctx context.Context) error

// Reconciler periodically retries due records on one process at a time.
type Reconciler struct {
	dispatcher *Dispatcher
	locker     *ratelimit.Locker
	cfg        config.OutboxConfig
	log        *zap.Logger
	sweeps     []Sweep
	scheduler  gocron.Scheduler
}

func NewReconciler(dispatcher *Dispatcher, locker *ratelimit.Locker, cfg config.OutboxConfig, log *zap.Logger, sweeps ...Sweep) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Reconciler{
		dispatcher: dispatcher,
		locker:     locker,
		cfg:        cfg,
		log:        log.Named("gamification.outbox.reconciler"),
		sweeps:     sweeps,
	}
}

// Start schedules RunOnce every interval. Overlapping runs are skipped.
func (r *Reconciler) Start(ctx context.Context) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(r.cfg.Interval),
		gocron.NewTask(func() {
			if err := r.RunOnce(ctx); err != nil {
				r.log.Warn("outbox reconcile failed", zap.Error(err))
			}
		}),
		gocron.WithName("outbox-reconciler"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("schedule reconciler: %w", err)
	}
	s.Start()
	r.scheduler = s
	return nil
}

func (r *Reconciler) Stop() error {
	if r.scheduler == nil {
		return nil
	}
	return r.scheduler.Shutdown()
}

// RunOnce drains due records in batches while holding the lease. It returns
// nil without work when another process holds the lease.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	if r.locker != nil {
		token, ok, err := r.locker.TryLock(ctx, reconcilerLockKey, r.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("acquire reconciler lease: %w", err)
		}
		if !ok {
			return nil
		}
		defer func() {
			if err := r.locker.Release(context.Background(), reconcilerLockKey, token); err != nil {
				r.log.Warn("release reconciler lease", zap.Error(err))
			}
		}()
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.LockTTL)
	defer cancel()

	var errs error
	total := 0
	for {
		n, err := r.dispatcher.DrainDue(ctx, r.cfg.BatchSize)
		total += n
		if err != nil {
			errs = errors.Join(errs, err)
		}
		// A short batch means nothing else is due; failed rows are pushed past now.
		if n < r.cfg.BatchSize || ctx.Err() != nil {
			break
		}
	}
	for _, sweep := range r.sweeps {
		errs = errors.Join(errs, sweep(ctx))
	}
	if total > 0 {
		r.log.Info("outbox reconciled", zap.Int("records", total))
	}
	return errs
}
