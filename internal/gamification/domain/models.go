package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Trigger controls how often a point rule can pay out.
type Trigger string

const (
	TriggerFirstTime Trigger = "FIRST_TIME"
	TriggerRecurring Trigger = "RECURRING"
)

// BadgeType distinguishes action-counted badges from point-threshold badges.
type BadgeType string

const (
	BadgeTypeAction BadgeType = "ACTION"
	BadgeTypePoints BadgeType = "POINTS"
)

// GamificationUser is the per-tenant reward profile of an authenticated user.
type GamificationUser struct {
	ID            snowflake.ID  `json:"id" gorm:"primaryKey"`
	UserID        uuid.UUID     `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:ux_gamification_users_user_entity,priority:1"`
	EntityID      uuid.UUID     `json:"entity_id" gorm:"type:uuid;not null;uniqueIndex:ux_gamification_users_user_entity,priority:2;index"`
	TotalPoints   int64         `json:"total_points" gorm:"not null;default:0"`
	CurrentRankID *snowflake.ID `json:"current_rank_id,omitempty" gorm:"index"`
	CreatedAt     time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time     `json:"updated_at" gorm:"not null"`
}

func (GamificationUser) TableName() string { return "gamification_users" }

// PointRule maps a (module, action) pair to a reward. Caps are optional.
type PointRule struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	EntityID  uuid.UUID    `json:"entity_id" gorm:"type:uuid;not null;index:ix_point_rules_lookup,priority:1"`
	Module    string       `json:"module" gorm:"type:text;not null;index:ix_point_rules_lookup,priority:2"`
	Action    string       `json:"action" gorm:"type:text;not null;index:ix_point_rules_lookup,priority:3"`
	Trigger   Trigger      `json:"trigger" gorm:"column:trigger_type;type:text;not null"`
	Points    int64        `json:"points" gorm:"not null"`
	DailyCap  *int64       `json:"daily_cap,omitempty"`
	WeeklyCap *int64       `json:"weekly_cap,omitempty"`
	IsActive  bool         `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (PointRule) TableName() string { return "point_rules" }

// PointHistory is the append-only audit of awarded points.
type PointHistory struct {
	ID                 snowflake.ID   `json:"id" gorm:"primaryKey"`
	GamificationUserID snowflake.ID   `json:"gamification_user_id" gorm:"not null;index:ix_point_histories_user_rule,priority:1"`
	PointRuleID        snowflake.ID   `json:"point_rule_id" gorm:"not null;index:ix_point_histories_user_rule,priority:2"`
	PointsEarned       int64          `json:"points_earned" gorm:"not null"`
	Metadata           datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`
	FirstTimeKey       *string        `json:"first_time_key,omitempty" gorm:"type:text;uniqueIndex"`
	EventKey           string         `json:"event_key" gorm:"type:text;not null;index"`
	CreatedAt          time.Time      `json:"created_at" gorm:"not null;index:ix_point_histories_user_rule,priority:3"`
}

func (PointHistory) TableName() string { return "point_histories" }

// Badge is a tenant-defined achievement.
type Badge struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	EntityID    uuid.UUID    `json:"entity_id" gorm:"type:uuid;not null;index"`
	Name        string       `json:"name" gorm:"type:text;not null"`
	Description string       `json:"description" gorm:"type:text"`
	Type        BadgeType    `json:"type" gorm:"type:text;not null"`
	Module      *string      `json:"module,omitempty" gorm:"type:text"`
	Action      *string      `json:"action,omitempty" gorm:"type:text"`
	TargetValue int64        `json:"target_value" gorm:"not null"`
	IsActive    bool         `json:"is_active" gorm:"not null;default:true"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null"`
}

func (Badge) TableName() string { return "badges" }

// UserBadge tracks progress towards one badge. Frozen once completed.
type UserBadge struct {
	ID                 snowflake.ID `json:"id" gorm:"primaryKey"`
	GamificationUserID snowflake.ID `json:"gamification_user_id" gorm:"not null;uniqueIndex:ux_user_badges_user_badge,priority:1"`
	BadgeID            snowflake.ID `json:"badge_id" gorm:"not null;uniqueIndex:ux_user_badges_user_badge,priority:2"`
	Progress           int64        `json:"progress" gorm:"not null;default:0"`
	IsCompleted        bool         `json:"is_completed" gorm:"not null;default:false"`
	EarnedAt           *time.Time   `json:"earned_at,omitempty"`
	CreatedAt          time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time    `json:"updated_at" gorm:"not null"`
}

func (UserBadge) TableName() string { return "user_badges" }

// Rank is an ordered tier within a tenant.
type Rank struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	EntityID  uuid.UUID    `json:"entity_id" gorm:"type:uuid;not null;index"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	MinPoints int64        `json:"min_points" gorm:"not null"`
	MaxPoints *int64       `json:"max_points,omitempty"`
	Order     int          `json:"order" gorm:"column:rank_order;not null;default:0"`
	IsActive  bool         `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Rank) TableName() string { return "ranks" }

// RankHistory records a promotion.
type RankHistory struct {
	ID                 snowflake.ID  `json:"id" gorm:"primaryKey"`
	GamificationUserID snowflake.ID  `json:"gamification_user_id" gorm:"not null;index"`
	FromRankID         *snowflake.ID `json:"from_rank_id,omitempty"`
	ToRankID           snowflake.ID  `json:"to_rank_id" gorm:"not null"`
	AchievedAt         time.Time     `json:"achieved_at" gorm:"not null"`
}

func (RankHistory) TableName() string { return "rank_histories" }

// Models lists the tables owned by this package, in creation order.
func Models() []any {
	return []any{
		&GamificationUser{},
		&PointRule{},
		&PointHistory{},
		&Badge{},
		&UserBadge{},
		&Rank{},
		&RankHistory{},
	}
}

// RuleSet is what an action can earn: matching point rules and ACTION badges.
type RuleSet struct {
	Rules        []PointRule
	ActionBadges []Badge
}

// Empty reports whether the action earns nothing.
func (s RuleSet) Empty() bool {
	return len(s.Rules) == 0 && len(s.ActionBadges) == 0
}
