package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/verma04/thrico-backend-services-sub003/internal/clock"
	"github.com/verma04/thrico-backend-services-sub003/internal/config"
	obsmetrics "github.com/verma04/thrico-backend-services-sub003/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler applies one record. Returned records are written in the same
// transaction that marks this one done.
type Handler func(ctx context.Context, rec Record) ([]Pending, error)

// Settings bounds retries.
type Settings struct {
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	ClaimTimeout time.Duration
}

func SettingsFromConfig(cfg config.OutboxConfig) Settings {
	return Settings{
		MaxAttempts:  cfg.MaxAttempts,
		BaseBackoff:  cfg.BaseBackoff,
		MaxBackoff:   cfg.MaxBackoff,
		ClaimTimeout: cfg.ClaimTimeout,
	}
}

func (s Settings) withDefaults() Settings {
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 8
	}
	if s.BaseBackoff <= 0 {
		s.BaseBackoff = 2 * time.Second
	}
	if s.MaxBackoff < s.BaseBackoff {
		s.MaxBackoff = s.BaseBackoff
	}
	if s.ClaimTimeout <= 0 {
		s.ClaimTimeout = time.Minute
	}
	return s
}

// Backoff returns the delay before retry number attempt (1-based).
func (s Settings) Backoff(attempt int) time.Duration {
	s = s.withDefaults()
	delay := s.BaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.MaxBackoff {
			return s.MaxBackoff
		}
	}
	return delay
}

// Dispatcher claims records and runs their handlers.
type Dispatcher struct {
	db       *gorm.DB
	writer   *Writer
	clock    clock.Clock
	settings Settings
	metrics  *obsmetrics.EngineMetrics
	log      *zap.Logger
	handlers map[Kind]Handler
}

func NewDispatcher(db *gorm.DB, writer *Writer, clk clock.Clock, settings Settings, metrics *obsmetrics.EngineMetrics, log *zap.Logger) *Dispatcher {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		db:       db,
		writer:   writer,
		clock:    clk,
		settings: settings.withDefaults(),
		metrics:  metrics,
		log:      log.Named("gamification.outbox"),
		handlers: make(map[Kind]Handler),
	}
}

// Register binds a handler to kind. Call before dispatching.
func (d *Dispatcher) Register(kind Kind, h Handler) {
	d.handlers[kind] = h
}

// Dispatch applies the given records and any follow-ups they produce.
// Failures are recorded on the rows and left for the reconciler.
func (d *Dispatcher) Dispatch(ctx context.Context, ids ...snowflake.ID) error {
	var errs error
	queue := append([]snowflake.ID(nil), ids...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		next, err := d.process(ctx, id)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		queue = append(queue, next...)
	}
	return errs
}

// DrainDue dispatches up to limit records that are due or whose claim went stale.
func (d *Dispatcher) DrainDue(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	now := d.clock.Now()
	var rows []struct {
		ID snowflake.ID
	}
	err := d.db.WithContext(ctx).Raw(
		`SELECT id FROM outbox_records
		 WHERE (status = ? AND next_attempt_at <= ?)
		    OR (status = ? AND claimed_at < ?)
		 ORDER BY id
		 LIMIT ?`,
		StatusPending, now,
		StatusProcessing, now.Add(-d.settings.ClaimTimeout),
		limit,
	).Scan(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("list due outbox records: %w", err)
	}

	ids := make([]snowflake.ID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return len(ids), d.Dispatch(ctx, ids...)
}

func (d *Dispatcher) process(ctx context.Context, id snowflake.ID) ([]snowflake.ID, error) {
	rec, ok, err := d.claim(ctx, id)
	if err != nil || !ok {
		return nil, err
	}

	handler, found := d.handlers[rec.Kind]
	if !found {
		return nil, d.fail(ctx, rec, fmt.Errorf("%w: %s", ErrUnknownKind, rec.Kind), true)
	}

	followups, herr := handler(ctx, rec)
	if herr != nil {
		return nil, d.fail(ctx, rec, herr, false)
	}

	var next []snowflake.ID
	now := d.clock.Now()
	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range followups {
			created, err := d.writer.Enqueue(ctx, tx, p.Kind, p.Payload)
			if err != nil {
				return err
			}
			next = append(next, created.ID)
		}
		return tx.Exec(
			`UPDATE outbox_records SET status = ?, processed_at = ?, last_error = NULL
			 WHERE id = ? AND status = ?`,
			StatusDone, now, rec.ID, StatusProcessing,
		).Error
	})
	if err != nil {
		return nil, fmt.Errorf("complete outbox record %s: %w", rec.ID, err)
	}
	d.metrics.IncOutboxDispatch(string(rec.Kind), obsmetrics.DispatchResultOK)
	return next, nil
}

// claim moves a due record to processing. ok is false when another worker
// holds it or it is already finished.
func (d *Dispatcher) claim(ctx context.Context, id snowflake.ID) (Record, bool, error) {
	now := d.clock.Now()
	result := d.db.WithContext(ctx).Exec(
		`UPDATE outbox_records SET status = ?, claimed_at = ?, attempts = attempts + 1
		 WHERE id = ?
		   AND ((status = ? AND next_attempt_at <= ?) OR (status = ? AND claimed_at < ?))`,
		StatusProcessing, now,
		id,
		StatusPending, now,
		StatusProcessing, now.Add(-d.settings.ClaimTimeout),
	)
	if result.Error != nil {
		return Record{}, false, fmt.Errorf("claim outbox record %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return Record{}, false, nil
	}

	rec, err := d.Find(ctx, id)
	if err != nil {
		return Record{}, false, err
	}
	return *rec, true, nil
}

func (d *Dispatcher) fail(ctx context.Context, rec Record, cause error, permanent bool) error {
	now := d.clock.Now()
	msg := truncate(cause.Error(), 1024)

	status := StatusPending
	next := now.Add(d.settings.Backoff(rec.Attempts))
	result := obsmetrics.DispatchResultRetry
	if permanent || rec.Attempts >= d.settings.MaxAttempts {
		status = StatusFailed
		next = now
		result = obsmetrics.DispatchResultExpired
	}

	err := d.db.WithContext(ctx).Exec(
		`UPDATE outbox_records SET status = ?, last_error = ?, next_attempt_at = ?, claimed_at = NULL
		 WHERE id = ? AND status = ?`,
		status, msg, next, rec.ID, StatusProcessing,
	).Error
	d.metrics.IncOutboxDispatch(string(rec.Kind), result)

	fields := []zap.Field{
		zap.String("record_id", rec.ID.String()),
		zap.String("kind", string(rec.Kind)),
		zap.Int("attempts", rec.Attempts),
		zap.Error(cause),
	}
	if status == StatusFailed {
		d.log.Error("outbox record failed permanently", fields...)
	} else {
		d.log.Warn("outbox record failed, will retry", append(fields, zap.Time("next_attempt_at", next))...)
	}

	if err != nil {
		return errors.Join(cause, fmt.Errorf("record outbox failure %s: %w", rec.ID, err))
	}
	return fmt.Errorf("outbox record %s: %w", rec.ID, cause)
}

// Find loads one record.
func (d *Dispatcher) Find(ctx context.Context, id snowflake.ID) (*Record, error) {
	var rec Record
	err := d.db.WithContext(ctx).Raw(
		`SELECT id, kind, payload, status, attempts, last_error, next_attempt_at, claimed_at, created_at, processed_at
		 FROM outbox_records WHERE id = ?`,
		id,
	).Scan(&rec).Error
	if err != nil {
		return nil, fmt.Errorf("load outbox record %s: %w", id, err)
	}
	if rec.ID == 0 {
		return nil, ErrRecordNotFound
	}
	return &rec, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
