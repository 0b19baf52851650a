package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/verma04/thrico-backend-services-sub003/internal/gamification/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const userColumns = `id, user_id, entity_id, total_points, current_rank_id, created_at, updated_at`

func (r *repo) EnsureUser(ctx context.Context, db *gorm.DB, user *domain.GamificationUser) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "entity_id"}},
			DoNothing: true,
		}).
		Create(user).Error
}

func (r *repo) FindUser(ctx context.Context, db *gorm.DB, userID, entityID uuid.UUID) (*domain.GamificationUser, error) {
	var user domain.GamificationUser
	err := db.WithContext(ctx).Raw(
		`SELECT `+userColumns+`
		 FROM gamification_users WHERE user_id = ? AND entity_id = ?`,
		userID,
		entityID,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) AddPoints(ctx context.Context, db *gorm.DB, id snowflake.ID, points int64, at time.Time) (int64, error) {
	err := db.WithContext(ctx).Exec(
		`UPDATE gamification_users
		 SET total_points = total_points + ?, updated_at = ?
		 WHERE id = ?`,
		points,
		at,
		id,
	).Error
	if err != nil {
		return 0, err
	}

	var total int64
	err = db.WithContext(ctx).Raw(
		`SELECT total_points FROM gamification_users WHERE id = ?`,
		id,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) SetCurrentRank(ctx context.Context, db *gorm.DB, id, rankID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE gamification_users SET current_rank_id = ?, updated_at = ? WHERE id = ?`,
		rankID,
		at,
		id,
	).Error
}

func (r *repo) ListActiveRules(ctx context.Context, db *gorm.DB, entityID uuid.UUID, module, action string) ([]domain.PointRule, error) {
	var rules []domain.PointRule
	err := db.WithContext(ctx).Raw(
		`SELECT id, entity_id, module, action, trigger_type, points, daily_cap, weekly_cap, is_active, created_at, updated_at
		 FROM point_rules
		 WHERE entity_id = ? AND module = ? AND action = ? AND is_active = ?
		 ORDER BY id ASC`,
		entityID,
		module,
		action,
		true,
	).Scan(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) InsertPointHistory(ctx context.Context, db *gorm.DB, entry *domain.PointHistory) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO point_histories (id, gamification_user_id, point_rule_id, points_earned, metadata, first_time_key, event_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.GamificationUserID,
		entry.PointRuleID,
		entry.PointsEarned,
		entry.Metadata,
		entry.FirstTimeKey,
		entry.EventKey,
		entry.CreatedAt,
	).Error
}

func (r *repo) HasFirstTimeAward(ctx context.Context, db *gorm.DB, gamificationUserID, ruleID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM point_histories WHERE gamification_user_id = ? AND point_rule_id = ?`,
		gamificationUserID,
		ruleID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) SumPointsSince(ctx context.Context, db *gorm.DB, gamificationUserID, ruleID snowflake.ID, since time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(points_earned), 0)
		 FROM point_histories
		 WHERE gamification_user_id = ? AND point_rule_id = ? AND created_at >= ?`,
		gamificationUserID,
		ruleID,
		since,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

const badgeColumns = `id, entity_id, name, description, type, module, action, target_value, is_active, created_at, updated_at`

func (r *repo) ListActiveActionBadges(ctx context.Context, db *gorm.DB, entityID uuid.UUID, module, action string) ([]domain.Badge, error) {
	var badges []domain.Badge
	err := db.WithContext(ctx).Raw(
		`SELECT `+badgeColumns+`
		 FROM badges
		 WHERE entity_id = ? AND type = ? AND module = ? AND action = ? AND is_active = ?
		 ORDER BY id ASC`,
		entityID,
		domain.BadgeTypeAction,
		module,
		action,
		true,
	).Scan(&badges).Error
	if err != nil {
		return nil, err
	}
	return badges, nil
}

func (r *repo) ListActivePointsBadges(ctx context.Context, db *gorm.DB, entityID uuid.UUID, maxTarget int64) ([]domain.Badge, error) {
	var badges []domain.Badge
	err := db.WithContext(ctx).Raw(
		`SELECT `+badgeColumns+`
		 FROM badges
		 WHERE entity_id = ? AND type = ? AND target_value <= ? AND is_active = ?
		 ORDER BY target_value ASC, id ASC`,
		entityID,
		domain.BadgeTypePoints,
		maxTarget,
		true,
	).Scan(&badges).Error
	if err != nil {
		return nil, err
	}
	return badges, nil
}

const userBadgeColumns = `id, gamification_user_id, badge_id, progress, is_completed, earned_at, created_at, updated_at`

func (r *repo) FindUserBadge(ctx context.Context, db *gorm.DB, gamificationUserID, badgeID snowflake.ID) (*domain.UserBadge, error) {
	var badge domain.UserBadge
	err := db.WithContext(ctx).Raw(
		`SELECT `+userBadgeColumns+`
		 FROM user_badges WHERE gamification_user_id = ? AND badge_id = ?`,
		gamificationUserID,
		badgeID,
	).Scan(&badge).Error
	if err != nil {
		return nil, err
	}
	if badge.ID == 0 {
		return nil, nil
	}
	return &badge, nil
}

func (r *repo) ListUserBadgeIDs(ctx context.Context, db *gorm.DB, gamificationUserID snowflake.ID, badgeIDs []snowflake.ID) (map[snowflake.ID]struct{}, error) {
	found := make(map[snowflake.ID]struct{}, len(badgeIDs))
	if len(badgeIDs) == 0 {
		return found, nil
	}

	var ids []int64
	err := db.WithContext(ctx).Raw(
		`SELECT badge_id FROM user_badges WHERE gamification_user_id = ? AND badge_id IN ?`,
		gamificationUserID,
		badgeIDs,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		found[snowflake.ID(id)] = struct{}{}
	}
	return found, nil
}

func (r *repo) InsertUserBadge(ctx context.Context, db *gorm.DB, badge *domain.UserBadge) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO user_badges (id, gamification_user_id, badge_id, progress, is_completed, earned_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		badge.ID,
		badge.GamificationUserID,
		badge.BadgeID,
		badge.Progress,
		badge.IsCompleted,
		badge.EarnedAt,
		badge.CreatedAt,
		badge.UpdatedAt,
	).Error
}

// AdvanceUserBadge adds one step to an incomplete row in place, capped at
// target, and completes it when the cap is reached. It reports whether a row
// was updated. earned_at and is_completed come before progress so engines that
// assign left to right still see the old progress.
func (r *repo) AdvanceUserBadge(ctx context.Context, db *gorm.DB, id snowflake.ID, target int64, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE user_badges
		 SET earned_at = CASE WHEN progress + 1 >= ? THEN ? ELSE earned_at END,
		     is_completed = (progress + 1 >= ?),
		     progress = CASE WHEN progress + 1 >= ? THEN ? ELSE progress + 1 END,
		     updated_at = ?
		 WHERE id = ? AND is_completed = ?`,
		target, at,
		target,
		target, target,
		at,
		id,
		false,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

const rankColumns = `id, entity_id, name, min_points, max_points, rank_order, is_active, created_at, updated_at`

func (r *repo) FindRank(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Rank, error) {
	var rank domain.Rank
	err := db.WithContext(ctx).Raw(
		`SELECT `+rankColumns+` FROM ranks WHERE id = ?`,
		id,
	).Scan(&rank).Error
	if err != nil {
		return nil, err
	}
	if rank.ID == 0 {
		return nil, nil
	}
	return &rank, nil
}

func (r *repo) HighestEligibleRank(ctx context.Context, db *gorm.DB, entityID uuid.UUID, totalPoints int64) (*domain.Rank, error) {
	var rank domain.Rank
	err := db.WithContext(ctx).Raw(
		`SELECT `+rankColumns+`
		 FROM ranks
		 WHERE entity_id = ? AND is_active = ? AND min_points <= ?
		 ORDER BY min_points DESC, rank_order DESC
		 LIMIT 1`,
		entityID,
		true,
		totalPoints,
	).Scan(&rank).Error
	if err != nil {
		return nil, err
	}
	if rank.ID == 0 {
		return nil, nil
	}
	return &rank, nil
}

func (r *repo) InsertRankHistory(ctx context.Context, db *gorm.DB, entry *domain.RankHistory) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO rank_histories (id, gamification_user_id, from_rank_id, to_rank_id, achieved_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.ID,
		entry.GamificationUserID,
		entry.FromRankID,
		entry.ToRankID,
		entry.AchievedAt,
	).Error
}
