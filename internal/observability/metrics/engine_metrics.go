package metrics

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Config supplies the constant labels attached to every series.
type Config struct {
	ServiceName string
	Environment string
}

const (
	OutcomeProcessed    = "processed"
	OutcomeDuplicate    = "duplicate"
	OutcomeNoop         = "noop"
	OutcomeFailed       = "failed"
	OutcomeDecodeFailed = "decode_failed"
	OutcomeDeadLettered = "dead_lettered"
)

const (
	ErrorReasonDeadlineExceeded     = "deadline_exceeded"
	ErrorReasonUniqueViolation      = "unique_violation"
	ErrorReasonSerializationFailure = "serialization_failure"
	ErrorReasonDBLockTimeout        = "db_lock_timeout"
	ErrorReasonDB                   = "db"
	ErrorReasonRedis                = "redis"
	ErrorReasonNetwork              = "network"
	ErrorReasonUnknown              = "unknown"
)

const (
	DispatchResultOK      = "ok"
	DispatchResultRetry   = "retry"
	DispatchResultExpired = "failed"
)

// EngineMetrics captures reward pipeline health signals.
type EngineMetrics struct {
	events                  *prometheus.CounterVec
	eventDuration           *prometheus.HistogramVec
	eventErrors             *prometheus.CounterVec
	pointsAwarded           *prometheus.CounterVec
	badgesEarned            *prometheus.CounterVec
	rankUps                 prometheus.Counter
	leaderboardAchievements *prometheus.CounterVec
	readErrors              prometheus.Counter
	reclaimed               prometheus.Counter
	outboxDispatch          *prometheus.CounterVec
	lastPoll                prometheus.Gauge

	otel *Instruments
}

// New registers the engine metrics on the default registerer.
func New(cfg Config) *EngineMetrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer, cfg)
}

// NewWithRegisterer registers the engine metrics on registerer.
func NewWithRegisterer(registerer prometheus.Registerer, cfg Config) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "gamification-worker"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &EngineMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "gamification_events_total",
			Help:        "Stream entries handled by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		eventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "gamification_event_duration_seconds",
			Help:        "Latency of the reward pipeline per event.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		eventErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "gamification_event_errors_total",
			Help:        "Pipeline errors by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		pointsAwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "gamification_points_awarded_total",
			Help:        "Points awarded by module.",
			ConstLabels: constLabels,
		}, []string{"module"}),
		badgesEarned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "gamification_badges_earned_total",
			Help:        "Badges completed by badge type.",
			ConstLabels: constLabels,
		}, []string{"type"}),
		rankUps: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "gamification_rank_ups_total",
			Help:        "Rank promotions.",
			ConstLabels: constLabels,
		}),
		leaderboardAchievements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "gamification_leaderboard_achievements_total",
			Help:        "Leaderboard band crossings by band.",
			ConstLabels: constLabels,
		}, []string{"band"}),
		readErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "gamification_stream_read_errors_total",
			Help:        "Failed reads from the event log.",
			ConstLabels: constLabels,
		}),
		reclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "gamification_stream_reclaimed_total",
			Help:        "Idle pending entries claimed from other consumers.",
			ConstLabels: constLabels,
		}),
		outboxDispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "gamification_outbox_dispatch_total",
			Help:        "Outbox side-effect dispatch attempts by kind and result.",
			ConstLabels: constLabels,
		}, []string{"kind", "result"}),
		lastPoll: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "gamification_stream_last_poll_timestamp_seconds",
			Help:        "Unix time of the last completed poll of the event log.",
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(
		m.events,
		m.eventDuration,
		m.eventErrors,
		m.pointsAwarded,
		m.badgesEarned,
		m.rankUps,
		m.leaderboardAchievements,
		m.readErrors,
		m.reclaimed,
		m.outboxDispatch,
		m.lastPoll,
	)
	return m
}

// ObserveEvent records an event outcome and its pipeline latency.
func (m *EngineMetrics) ObserveEvent(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(outcome).Inc()
	m.eventDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.otel.recordEvent(outcome)
}

// IncEvent records an outcome without latency, used for dead-lettered entries.
func (m *EngineMetrics) IncEvent(outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(outcome).Inc()
	m.otel.recordEvent(outcome)
}

// IncEventError increments the error counter with a classified reason.
func (m *EngineMetrics) IncEventError(err error) {
	if m == nil || err == nil {
		return
	}
	m.eventErrors.WithLabelValues(ClassifyError(err)).Inc()
}

func (m *EngineMetrics) AddPointsAwarded(module string, points int64) {
	if m == nil || points <= 0 {
		return
	}
	module = strings.TrimSpace(module)
	m.pointsAwarded.WithLabelValues(module).Add(float64(points))
	m.otel.recordPoints(module, points)
}

func (m *EngineMetrics) IncBadgeEarned(badgeType string) {
	if m == nil {
		return
	}
	m.badgesEarned.WithLabelValues(badgeType).Inc()
	m.otel.recordBadge(badgeType)
}

func (m *EngineMetrics) IncRankUp() {
	if m == nil {
		return
	}
	m.rankUps.Inc()
	m.otel.recordRankUp()
}

func (m *EngineMetrics) IncLeaderboardAchievement(band string) {
	if m == nil {
		return
	}
	m.leaderboardAchievements.WithLabelValues(band).Inc()
}

func (m *EngineMetrics) IncReadError() {
	if m == nil {
		return
	}
	m.readErrors.Inc()
}

func (m *EngineMetrics) AddReclaimed(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.reclaimed.Add(float64(count))
}

func (m *EngineMetrics) IncOutboxDispatch(kind, result string) {
	if m == nil {
		return
	}
	m.outboxDispatch.WithLabelValues(kind, result).Inc()
}

func (m *EngineMetrics) SetLastPoll(at time.Time) {
	if m == nil {
		return
	}
	m.lastPoll.Set(float64(at.Unix()))
}

// ClassifyError maps pipeline errors to low-cardinality reasons.
func ClassifyError(err error) string {
	if err == nil {
		return ErrorReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return ErrorReasonUniqueViolation
	}
	if hasPGCode(err, "40001") {
		return ErrorReasonSerializationFailure
	}
	if hasPGCode(err, "55P03") {
		return ErrorReasonDBLockTimeout
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) || errors.Is(err, gorm.ErrInvalidTransaction) || errors.Is(err, gorm.ErrInvalidDB) {
		return ErrorReasonDB
	}
	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		return ErrorReasonRedis
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorReasonNetwork
	}
	return ErrorReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
