package badges

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/verma04/thrico-backend-services-sub003/internal/gamification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Earned is a badge that completed during this event.
type Earned struct {
	Badge     domain.Badge
	UserBadge domain.UserBadge
}

// Tracker advances badge progress inside the reward transaction.
type Tracker struct {
	repo  domain.Repository
	genID *snowflake.Node
	log   *zap.Logger
}

type Params struct {
	fx.In

	Repo  domain.Repository
	GenID *snowflake.Node
	Log   *zap.Logger
}

func NewTracker(p Params) *Tracker {
	return New(p.Repo, p.GenID, p.Log)
}

func New(repo domain.Repository, genID *snowflake.Node, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{repo: repo, genID: genID, log: log.Named("gamification.badges")}
}

// AdvanceActionBadges moves every ACTION badge one step. Completed badges are
// left untouched.
func (t *Tracker) AdvanceActionBadges(ctx context.Context, tx *gorm.DB, user *domain.GamificationUser, badges []domain.Badge, at time.Time) ([]Earned, error) {
	var earned []Earned
	for _, badge := range badges {
		if badge.Type != domain.BadgeTypeAction {
			continue
		}
		target := badge.TargetValue
		if target < 1 {
			target = 1
		}

		current, err := t.repo.FindUserBadge(ctx, tx, user.ID, badge.ID)
		if err != nil {
			return nil, fmt.Errorf("badge %s: %w", badge.ID, err)
		}

		if current == nil {
			ub := domain.UserBadge{
				ID:                 t.genID.Generate(),
				GamificationUserID: user.ID,
				BadgeID:            badge.ID,
				Progress:           1,
				CreatedAt:          at,
				UpdatedAt:          at,
			}
			if ub.Progress >= target {
				completeAt(&ub, at)
			}
			if err := t.repo.InsertUserBadge(ctx, tx, &ub); err != nil {
				return nil, fmt.Errorf("badge %s: create progress: %w", badge.ID, err)
			}
			if ub.IsCompleted {
				earned = append(earned, Earned{Badge: badge, UserBadge: ub})
			}
			continue
		}

		if current.IsCompleted {
			continue
		}

		updated, err := t.repo.AdvanceUserBadge(ctx, tx, current.ID, target, at)
		if err != nil {
			return nil, fmt.Errorf("badge %s: advance progress: %w", badge.ID, err)
		}
		if !updated {
			continue
		}
		stored, err := t.repo.FindUserBadge(ctx, tx, user.ID, badge.ID)
		if err != nil {
			return nil, fmt.Errorf("badge %s: reload progress: %w", badge.ID, err)
		}
		if stored != nil && stored.IsCompleted {
			earned = append(earned, Earned{Badge: badge, UserBadge: *stored})
		}
	}
	return earned, nil
}

// AwardPointsBadges completes every POINTS badge the total now reaches that
// the user does not hold yet. Safe to call on every positive award.
func (t *Tracker) AwardPointsBadges(ctx context.Context, tx *gorm.DB, user *domain.GamificationUser, totalPoints int64, at time.Time) ([]Earned, error) {
	candidates, err := t.repo.ListActivePointsBadges(ctx, tx, user.EntityID, totalPoints)
	if err != nil {
		return nil, fmt.Errorf("load points badges: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]snowflake.ID, 0, len(candidates))
	for _, badge := range candidates {
		ids = append(ids, badge.ID)
	}
	held, err := t.repo.ListUserBadgeIDs(ctx, tx, user.ID, ids)
	if err != nil {
		return nil, fmt.Errorf("load held badges: %w", err)
	}

	var earned []Earned
	for _, badge := range candidates {
		if _, ok := held[badge.ID]; ok {
			continue
		}
		ub := domain.UserBadge{
			ID:                 t.genID.Generate(),
			GamificationUserID: user.ID,
			BadgeID:            badge.ID,
			Progress:           totalPoints,
			CreatedAt:          at,
			UpdatedAt:          at,
		}
		completeAt(&ub, at)
		if err := t.repo.InsertUserBadge(ctx, tx, &ub); err != nil {
			return nil, fmt.Errorf("badge %s: award: %w", badge.ID, err)
		}
		earned = append(earned, Earned{Badge: badge, UserBadge: ub})
	}
	return earned, nil
}

func completeAt(ub *domain.UserBadge, at time.Time) {
	ub.IsCompleted = true
	if ub.EarnedAt == nil {
		stamp := at
		ub.EarnedAt = &stamp
	}
}
