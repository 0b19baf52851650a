package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/verma04/thrico-backend-services-sub003/internal/actionevent"
	"github.com/verma04/thrico-backend-services-sub003/internal/badges"
	"github.com/verma04/thrico-backend-services-sub003/internal/clock"
	"github.com/verma04/thrico-backend-services-sub003/internal/gamification/domain"
	"github.com/verma04/thrico-backend-services-sub003/internal/idempotency"
	"github.com/verma04/thrico-backend-services-sub003/internal/leaderboard"
	"github.com/verma04/thrico-backend-services-sub003/internal/notification"
	obscontext "github.com/verma04/thrico-backend-services-sub003/internal/observability/context"
	"github.com/verma04/thrico-backend-services-sub003/internal/observability/logger"
	obsmetrics "github.com/verma04/thrico-backend-services-sub003/internal/observability/metrics"
	"github.com/verma04/thrico-backend-services-sub003/internal/outbox"
	"github.com/verma04/thrico-backend-services-sub003/internal/points"
	"github.com/verma04/thrico-backend-services-sub003/internal/ranks"
	"github.com/verma04/thrico-backend-services-sub003/internal/ratelimit"
	"github.com/verma04/thrico-backend-services-sub003/internal/rules"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tracerName = "gamification.engine"

// Outcome is how an event left the pipeline.
type Outcome string

const (
	OutcomeProcessed Outcome = obsmetrics.OutcomeProcessed
	OutcomeDuplicate Outcome = obsmetrics.OutcomeDuplicate
	OutcomeNoop      Outcome = obsmetrics.OutcomeNoop
)

// Result summarises one handled event.
type Result struct {
	Outcome   Outcome
	EventKey  string
	Awarded   int64
	Total     int64
	Points    []points.Line
	Badges    []badges.Earned
	Promotion *ranks.Promotion
	Outbox    []snowflake.ID
}

type Options struct {
	NotifyPointsEarned bool
}

// Processor runs the reward pipeline for one action event.
type Processor struct {
	db         *gorm.DB
	repo       domain.Repository
	guard      *idempotency.Guard
	loader     *rules.Loader
	awarder    *points.Awarder
	badges     *badges.Tracker
	ranks      *ranks.Tracker
	cooldown   *ratelimit.Cooldown
	writer     *outbox.Writer
	dispatcher *outbox.Dispatcher
	genID      *snowflake.Node
	clock      clock.Clock
	metrics    *obsmetrics.EngineMetrics
	tracer     trace.Tracer
	opts       Options
	log        *zap.Logger
}

// Deps lists the collaborators of a Processor.
type Deps struct {
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
	Log        *zap.Logger
}

func New(d Deps, opts Options) *Processor {
	if d.Clock == nil {
		d.Clock = clock.NewSystem()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Processor{
		db:         d.DB,
		repo:       d.Repo,
		guard:      d.Guard,
		loader:     d.Loader,
		awarder:    d.Awarder,
		badges:     d.Badges,
		ranks:      d.Ranks,
		cooldown:   d.Cooldown,
		writer:     d.Writer,
		dispatcher: d.Dispatcher,
		genID:      d.GenID,
		clock:      d.Clock,
		metrics:    d.Metrics,
		tracer:     otel.Tracer(tracerName),
		opts:       opts,
		log:        d.Log.Named("gamification.engine"),
	}
}

// Handle processes one decoded event read from stream entry entryID. Duplicates
// and events that earn nothing return a nil error so the entry is acknowledged.
func (p *Processor) Handle(ctx context.Context, entryID string, evt actionevent.Event) (Result, error) {
	start := time.Now()
	key := evt.IdempotencyKey(entryID)

	ctx = obscontext.WithEvent(ctx, obscontext.EventFields{
		EventKey:  key,
		EntryID:   entryID,
		EntityID:  evt.EntityID.String(),
		UserID:    evt.UserID.String(),
		TriggerID: evt.TriggerID,
		ModuleID:  evt.ModuleID,
	})
	ctx, span := p.tracer.Start(ctx, "gamification.process_event", trace.WithAttributes(
		attribute.String("gamification.event_key", key),
		attribute.String("gamification.entity_id", evt.EntityID.String()),
		attribute.String("gamification.module", evt.ModuleID),
		attribute.String("gamification.trigger", evt.TriggerID),
	))
	defer span.End()

	res, err := p.handle(ctx, entryID, key, evt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.IncEventError(err)
		p.metrics.ObserveEvent(obsmetrics.OutcomeFailed, time.Since(start))
		return Result{EventKey: key}, err
	}

	span.SetAttributes(
		attribute.String("gamification.outcome", string(res.Outcome)),
		attribute.Int64("gamification.points_awarded", res.Awarded),
	)
	p.metrics.ObserveEvent(string(res.Outcome), time.Since(start))
	return res, nil
}

func (p *Processor) handle(ctx context.Context, entryID, key string, evt actionevent.Event) (Result, error) {
	log := logger.WithContext(ctx, p.log)

	seen, err := p.guard.Seen(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if seen {
		log.Debug("duplicate event skipped")
		return Result{Outcome: OutcomeDuplicate, EventKey: key}, nil
	}
	// The marker can expire or be lost while the row stays.
	processed, err := p.guard.Processed(ctx, p.db, key)
	if err != nil {
		return Result{}, fmt.Errorf("check processed event: %w", err)
	}
	if processed {
		p.mark(ctx, log, key)
		log.Debug("duplicate event found in processed rows")
		return Result{Outcome: OutcomeDuplicate, EventKey: key}, nil
	}

	set, err := p.loader.Load(ctx, evt.EntityID, evt.ModuleID, evt.TriggerID)
	if err != nil {
		return Result{}, err
	}
	if set.Empty() {
		p.mark(ctx, log, key)
		return Result{Outcome: OutcomeNoop, EventKey: key}, nil
	}

	meta, err := actionevent.AuditJSON(evt.TypedMetadata())
	if err != nil {
		return Result{}, err
	}

	now := p.clock.Now()
	res := Result{Outcome: OutcomeProcessed, EventKey: key}
	var award points.Result

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := p.guard.Claim(ctx, tx, idempotency.ProcessedEvent{
			EventKey:    key,
			EntityID:    evt.EntityID,
			UserID:      evt.UserID,
			TriggerID:   evt.TriggerID,
			EntryID:     entryID,
			ProcessedAt: now,
		}); err != nil {
			return err
		}

		user, err := p.resolveUser(ctx, tx, evt, now)
		if err != nil {
			return err
		}

		award, err = p.awarder.Award(ctx, tx, points.Input{
			User:     user,
			Rules:    set.Rules,
			EventKey: key,
			Metadata: meta,
			At:       now,
		})
		if err != nil {
			return fmt.Errorf("award points: %w", err)
		}
		res.Awarded = award.Awarded
		res.Total = user.TotalPoints
		res.Points = award.Lines

		earned, err := p.badges.AdvanceActionBadges(ctx, tx, user, set.ActionBadges, now)
		if err != nil {
			return fmt.Errorf("advance action badges: %w", err)
		}

		var pending []outbox.Pending
		if award.Awarded > 0 {
			thresholds, err := p.badges.AwardPointsBadges(ctx, tx, user, award.Total, now)
			if err != nil {
				return fmt.Errorf("award points badges: %w", err)
			}
			earned = append(earned, thresholds...)

			promotion, err := p.ranks.Promote(ctx, tx, user, award.Total, now)
			if err != nil {
				return fmt.Errorf("promote rank: %w", err)
			}
			res.Promotion = promotion

			pending = append(pending, outbox.Pending{
				Kind: outbox.KindLeaderboardIncrement,
				Payload: LeaderboardIncrement{
					EntityID: evt.EntityID,
					UserID:   evt.UserID,
					Day:      leaderboard.Day(now),
					Points:   award.Awarded,
				},
			})
			if p.opts.NotifyPointsEarned {
				pending = append(pending, notify(notification.PointsEarned(evt.UserID, evt.EntityID, award.Awarded, award.Total, evt.ModuleID, evt.TriggerID)))
			}
			if promotion != nil {
				pending = append(pending, notify(notification.RankUp(evt.UserID, evt.EntityID, promotion.From, promotion.To, award.Total)))
			}
		}
		for _, e := range earned {
			pending = append(pending, notify(notification.BadgeEarned(evt.UserID, evt.EntityID, e.Badge)))
		}
		res.Badges = earned

		for _, item := range pending {
			rec, err := p.writer.Enqueue(ctx, tx, item.Kind, item.Payload)
			if err != nil {
				return err
			}
			res.Outbox = append(res.Outbox, rec.ID)
		}
		return nil
	})
	if errors.Is(err, idempotency.ErrDuplicate) {
		p.mark(ctx, log, key)
		log.Debug("duplicate event rolled back")
		return Result{Outcome: OutcomeDuplicate, EventKey: key}, nil
	}
	if err != nil {
		return Result{}, err
	}

	p.afterCommit(ctx, log, key, evt, award, res)
	return res, nil
}

// resolveUser creates the profile on first sight. A concurrent creator wins
// the insert and the re-read sees its row.
func (p *Processor) resolveUser(ctx context.Context, tx *gorm.DB, evt actionevent.Event, now time.Time) (*domain.GamificationUser, error) {
	candidate := &domain.GamificationUser{
		ID:        p.genID.Generate(),
		UserID:    evt.UserID,
		EntityID:  evt.EntityID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.repo.EnsureUser(ctx, tx, candidate); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	user, err := p.repo.FindUser(ctx, tx, evt.UserID, evt.EntityID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// afterCommit runs the best-effort follow-ups of a durable reward. Failures
// are logged; the processed row and the outbox make them recoverable.
func (p *Processor) afterCommit(ctx context.Context, log *zap.Logger, key string, evt actionevent.Event, award points.Result, res Result) {
	p.mark(ctx, log, key)

	if len(award.CooldownKeys) > 0 {
		if err := p.cooldown.Arm(ctx, award.CooldownKeys...); err != nil {
			log.Warn("arm cooldown markers", zap.Error(err))
		}
	}

	p.metrics.AddPointsAwarded(evt.ModuleID, res.Awarded)
	for _, e := range res.Badges {
		p.metrics.IncBadgeEarned(string(e.Badge.Type))
	}
	if res.Promotion != nil {
		p.metrics.IncRankUp()
	}

	if len(res.Outbox) > 0 {
		if err := p.dispatcher.Dispatch(ctx, res.Outbox...); err != nil {
			log.Warn("outbox dispatch deferred to reconciler", zap.Error(err))
		}
	}

	log.Info("event processed",
		zap.Int64("points_awarded", res.Awarded),
		zap.Int64("total_points", res.Total),
		zap.Int("badges_earned", len(res.Badges)),
		zap.Bool("rank_up", res.Promotion != nil),
	)
}

func (p *Processor) mark(ctx context.Context, log *zap.Logger, key string) {
	if _, err := p.guard.Mark(ctx, key); err != nil {
		log.Warn("set idempotency marker", zap.Error(err))
	}
}

func notify(req notification.Request) outbox.Pending {
	return outbox.Pending{Kind: outbox.KindNotification, Payload: req}
}
