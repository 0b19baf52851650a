package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository gives the engine narrow access to reward state. Every method
// takes the handle to run on so callers can pass a transaction.
type Repository interface {
	EnsureUser(ctx context.Context, db *gorm.DB, user *GamificationUser) error
	FindUser(ctx context.Context, db *gorm.DB, userID, entityID uuid.UUID) (*GamificationUser, error)
	AddPoints(ctx context.Context, db *gorm.DB, id snowflake.ID, points int64, at time.Time) (int64, error)
	SetCurrentRank(ctx context.Context, db *gorm.DB, id, rankID snowflake.ID, at time.Time) error

	ListActiveRules(ctx context.Context, db *gorm.DB, entityID uuid.UUID, module, action string) ([]PointRule, error)
	InsertPointHistory(ctx context.Context, db *gorm.DB, entry *PointHistory) error
	HasFirstTimeAward(ctx context.Context, db *gorm.DB, gamificationUserID, ruleID snowflake.ID) (bool, error)
	SumPointsSince(ctx context.Context, db *gorm.DB, gamificationUserID, ruleID snowflake.ID, since time.Time) (int64, error)

	ListActiveActionBadges(ctx context.Context, db *gorm.DB, entityID uuid.UUID, module, action string) ([]Badge, error)
	ListActivePointsBadges(ctx context.Context, db *gorm.DB, entityID uuid.UUID, maxTarget int64) ([]Badge, error)
	FindUserBadge(ctx context.Context, db *gorm.DB, gamificationUserID, badgeID snowflake.ID) (*UserBadge, error)
	ListUserBadgeIDs(ctx context.Context, db *gorm.DB, gamificationUserID snowflake.ID, badgeIDs []snowflake.ID) (map[snowflake.ID]struct{}, error)
	InsertUserBadge(ctx context.Context, db *gorm.DB, badge *UserBadge) error
	AdvanceUserBadge(ctx context.Context, db *gorm.DB, id snowflake.ID, target int64, at time.Time) (bool, error)

	FindRank(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Rank, error)
	HighestEligibleRank(ctx context.Context, db *gorm.DB, entityID uuid.UUID, totalPoints int64) (*Rank, error)
	InsertRankHistory(ctx context.Context, db *gorm.DB, entry *RankHistory) error
}
