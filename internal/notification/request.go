package notification

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/verma04/thrico-backend-services-sub003/internal/gamification/domain"
)

// Type is the notification kind understood by the dispatcher.
type Type string

const (
	TypePointsEarned     Type = "POINTS_EARNED"
	TypeBadgeEarned      Type = "BADGE_EARNED"
	TypeRankUp           Type = "RANK_UP"
	TypeLevelUp          Type = "LEVEL_UP"
	TypeLeaderboardTop3  Type = "LEADERBOARD_TOP_3"
	TypeLeaderboardTop10 Type = "LEADERBOARD_TOP_10"
)

var (
	ErrInvalidRequest = errors.New("invalid_notification_request")
	ErrUnknownBand    = errors.New("unknown_leaderboard_band")
)

// Request is the payload handed to the notification dispatcher.
type Request struct {
	UserID   uuid.UUID      `json:"userId"`
	EntityID uuid.UUID      `json:"entityId"`
	Type     Type           `json:"type"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Payload  map[string]any `json:"payload,omitempty"`
}

func (r Request) Validate() error {
	if r.UserID == uuid.Nil || r.EntityID == uuid.Nil {
		return fmt.Errorf("%w: missing recipient", ErrInvalidRequest)
	}
	switch r.Type {
	case TypePointsEarned, TypeBadgeEarned, TypeRankUp, TypeLevelUp, TypeLeaderboardTop3, TypeLeaderboardTop10:
	default:
		return fmt.Errorf("%w: type %q", ErrInvalidRequest, r.Type)
	}
	return nil
}

// PointsEarned summarises the points awarded by one event.
func PointsEarned(userID, entityID uuid.UUID, points, total int64, module, action string) Request {
	return Request{
		UserID:   userID,
		EntityID: entityID,
		Type:     TypePointsEarned,
		Title:    "Points earned",
		Message:  fmt.Sprintf("You earned %d points.", points),
		Payload: map[string]any{
			"points":      points,
			"totalPoints": total,
			"module":      module,
			"action":      action,
		},
	}
}

func BadgeEarned(userID, entityID uuid.UUID, badge domain.Badge) Request {
	return Request{
		UserID:   userID,
		EntityID: entityID,
		Type:     TypeBadgeEarned,
		Title:    "Badge earned",
		Message:  fmt.Sprintf("You earned the %s badge.", badge.Name),
		Payload: map[string]any{
			"badgeId":   badge.ID.String(),
			"badgeName": badge.Name,
			"badgeSlug": slug.Make(badge.Name),
			"badgeType": string(badge.Type),
		},
	}
}

func RankUp(userID, entityID uuid.UUID, from *domain.Rank, to domain.Rank, total int64) Request {
	payload := map[string]any{
		"rankId":      to.ID.String(),
		"rankName":    to.Name,
		"totalPoints": total,
	}
	if from != nil {
		payload["previousRankId"] = from.ID.String()
		payload["previousRankName"] = from.Name
	}
	return Request{
		UserID:   userID,
		EntityID: entityID,
		Type:     TypeRankUp,
		Title:    "Rank up",
		Message:  fmt.Sprintf("You reached the %s rank.", to.Name),
		Payload:  payload,
	}
}

// Leaderboard builds the request for entering a top band. band is TOP_3 or TOP_10.
func Leaderboard(userID, entityID uuid.UUID, band string, position int64, score float64, day string) (Request, error) {
	var (
		typ   Type
		limit int
	)
	switch band {
	case "TOP_3":
		typ, limit = TypeLeaderboardTop3, 3
	case "TOP_10":
		typ, limit = TypeLeaderboardTop10, 10
	default:
		return Request{}, fmt.Errorf("%w: %q", ErrUnknownBand, band)
	}
	return Request{
		UserID:   userID,
		EntityID: entityID,
		Type:     typ,
		Title:    "Leaderboard",
		Message:  fmt.Sprintf("You are in today's top %d at position %d.", limit, position),
		Payload: map[string]any{
			"position": position,
			"score":    score,
			"day":      day,
		},
	}, nil
}
