package points

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/verma04/thrico-backend-services-sub003/internal/gamification/domain"
	"github.com/verma04/thrico-backend-services-sub003/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrMissingUser = errors.New("award_requires_user")

// SkipReason explains why a matching rule paid nothing.
type SkipReason string

const (
	SkipFirstTimeTaken SkipReason = "first_time_taken"
	SkipCooldown       SkipReason = "cooldown"
	SkipDailyCap       SkipReason = "daily_cap"
	SkipWeeklyCap      SkipReason = "weekly_cap"
)

// Input is one event's award request against an already resolved user.
type Input struct {
	User     *domain.GamificationUser
	Rules    []domain.PointRule
	EventKey string
	Metadata datatypes.JSON
	At       time.Time
}

// Line is one rule that paid out.
type Line struct {
	Rule      domain.PointRule
	Points    int64
	HistoryID snowflake.ID
}

// Skip is one rule that did not pay out.
type Skip struct {
	RuleID snowflake.ID
	Reason SkipReason
}

type Result struct {
	Awarded      int64
	Total        int64
	Lines        []Line
	Skipped      []Skip
	CooldownKeys []string
}

// Awarder applies point rules inside the reward transaction.
type Awarder struct {
	repo     domain.Repository
	cooldown *ratelimit.Cooldown
	genID    *snowflake.Node
	log      *zap.Logger
}

type Params struct {
	fx.In

	Repo     domain.Repository
	Cooldown *ratelimit.Cooldown
	GenID    *snowflake.Node
	Log      *zap.Logger
}

func NewAwarder(p Params) *Awarder {
	return New(p.Repo, p.Cooldown, p.GenID, p.Log)
}

func New(repo domain.Repository, cooldown *ratelimit.Cooldown, genID *snowflake.Node, log *zap.Logger) *Awarder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Awarder{repo: repo, cooldown: cooldown, genID: genID, log: log.Named("gamification.points")}
}

// Award walks the rules in order. Any failure aborts the whole award and
// the caller must roll back tx. Cooldown keys in the result are armed by the
// caller after commit.
func (a *Awarder) Award(ctx context.Context, tx *gorm.DB, in Input) (Result, error) {
	if in.User == nil {
		return Result{}, ErrMissingUser
	}
	at := in.At.UTC()
	result := Result{Total: in.User.TotalPoints}

	for _, rule := range in.Rules {
		reason, err := a.check(ctx, tx, in.User.ID, rule, at)
		if err != nil {
			return Result{}, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		if reason != "" {
			result.Skipped = append(result.Skipped, Skip{RuleID: rule.ID, Reason: reason})
			continue
		}

		entry := &domain.PointHistory{
			ID:                 a.genID.Generate(),
			GamificationUserID: in.User.ID,
			PointRuleID:        rule.ID,
			PointsEarned:       rule.Points,
			Metadata:           in.Metadata,
			EventKey:           in.EventKey,
			CreatedAt:          at,
		}
		if rule.Trigger == domain.TriggerFirstTime {
			key := domain.FirstTimeKey(in.User.ID, rule.ID)
			entry.FirstTimeKey = &key
		}
		if err := a.repo.InsertPointHistory(ctx, tx, entry); err != nil {
			return Result{}, fmt.Errorf("rule %s: append history: %w", rule.ID, err)
		}

		result.Awarded += rule.Points
		result.Lines = append(result.Lines, Line{Rule: rule, Points: rule.Points, HistoryID: entry.ID})
		result.CooldownKeys = append(result.CooldownKeys, ratelimit.CooldownKey(in.User.ID, rule.ID))
	}

	if result.Awarded > 0 {
		total, err := a.repo.AddPoints(ctx, tx, in.User.ID, result.Awarded, at)
		if err != nil {
			return Result{}, fmt.Errorf("add points: %w", err)
		}
		result.Total = total
		in.User.TotalPoints = total
	}
	return result, nil
}

func (a *Awarder) check(ctx context.Context, tx *gorm.DB, userID snowflake.ID, rule domain.PointRule, at time.Time) (SkipReason, error) {
	if rule.Trigger == domain.TriggerFirstTime {
		taken, err := a.repo.HasFirstTimeAward(ctx, tx, userID, rule.ID)
		if err != nil {
			return "", err
		}
		if taken {
			return SkipFirstTimeTaken, nil
		}
	}

	active, err := a.cooldown.Active(ctx, ratelimit.CooldownKey(userID, rule.ID))
	if err != nil {
		return "", err
	}
	if active {
		return SkipCooldown, nil
	}

	if rule.DailyCap != nil {
		earned, err := a.repo.SumPointsSince(ctx, tx, userID, rule.ID, StartOfDay(at))
		if err != nil {
			return "", err
		}
		if earned+rule.Points > *rule.DailyCap {
			return SkipDailyCap, nil
		}
	}
	if rule.WeeklyCap != nil {
		earned, err := a.repo.SumPointsSince(ctx, tx, userID, rule.ID, StartOfWeek(at))
		if err != nil {
			return "", err
		}
		if earned+rule.Points > *rule.WeeklyCap {
			return SkipWeeklyCap, nil
		}
	}
	return "", nil
}

// StartOfDay is midnight UTC of t's day.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfWeek is Monday 00:00 UTC of t's ISO week.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
