package domain

import (
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrUserNotFound   = errors.New("gamification_user_not_found")
	ErrInvalidUser    = errors.New("invalid_user_id")
	ErrInvalidEntity  = errors.New("invalid_entity_id")
	ErrInvalidTrigger = errors.New("invalid_trigger")
)

// Valid reports whether t is a known trigger.
func (t Trigger) Valid() bool {
	switch t {
	case TriggerFirstTime, TriggerRecurring:
		return true
	default:
		return false
	}
}

// FirstTimeKey is the unique marker stored with FIRST_TIME awards.
func FirstTimeKey(gamificationUserID, ruleID snowflake.ID) string {
	return gamificationUserID.String() + ":" + ruleID.String()
}
