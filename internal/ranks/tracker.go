package ranks

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

// Promotion describes a rank change applied in this event.
type Promotion struct {
	From    *domain.Rank
	To      domain.Rank
	History domain.RankHistory
}

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
	return &Tracker{repo: repo, genID: genID, log: log.Named("gamification.ranks")}
}

// Promote moves the user to the highest active rank reachable with
// totalPoints. It never moves a user down; nil means no change.
func (t *Tracker) Promote(ctx context.Context, tx *gorm.DB, user *domain.GamificationUser, totalPoints int64, at time.Time) (*Promotion, error) {
	target, err := t.repo.HighestEligibleRank(ctx, tx, user.EntityID, totalPoints)
	if err != nil {
		return nil, fmt.Errorf("resolve rank: %w", err)
	}
	if target == nil {
		return nil, nil
	}
	if user.CurrentRankID != nil && *user.CurrentRankID == target.ID {
		return nil, nil
	}

	var current *domain.Rank
	if user.CurrentRankID != nil {
		current, err = t.repo.FindRank(ctx, tx, *user.CurrentRankID)
		if err != nil {
			return nil, fmt.Errorf("load current rank: %w", err)
		}
		if current != nil && !outranks(*target, *current) {
			return nil, nil
		}
	}

	if err := t.repo.SetCurrentRank(ctx, tx, user.ID, target.ID, at); err != nil {
		return nil, fmt.Errorf("set rank: %w", err)
	}
	history := domain.RankHistory{
		ID:                 t.genID.Generate(),
		GamificationUserID: user.ID,
		FromRankID:         user.CurrentRankID,
		ToRankID:           target.ID,
		AchievedAt:         at,
	}
	if err := t.repo.InsertRankHistory(ctx, tx, &history); err != nil {
		return nil, fmt.Errorf("append rank history: %w", err)
	}

	rankID := target.ID
	user.CurrentRankID = &rankID
	return &Promotion{From: current, To: *target, History: history}, nil
}

func outranks(a, b domain.Rank) bool {
	if a.MinPoints != b.MinPoints {
		return a.MinPoints > b.MinPoints
	}
	return a.Order > b.Order
}
