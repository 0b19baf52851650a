package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/verma04/thrico-backend-services-sub003/internal/leaderboard"
	"github.com/verma04/thrico-backend-services-sub003/internal/notification"
	obsmetrics "github.com/verma04/thrico-backend-services-sub003/internal/observability/metrics"
	"github.com/verma04/thrico-backend-services-sub003/internal/outbox"
)

// LeaderboardIncrement is the payload of a leaderboard_increment record.
type LeaderboardIncrement struct {
	EntityID uuid.UUID `json:"entityId"`
	UserID   uuid.UUID `json:"userId"`
	Day      string    `json:"day"`
	Points   int64     `json:"points"`
}

// LeaderboardHandler applies the increment once per record and queues a
// notification when the user enters a top band.
func LeaderboardHandler(board *leaderboard.Board, metrics *obsmetrics.EngineMetrics) outbox.Handler {
	return func(ctx context.Context, rec outbox.Record) ([]outbox.Pending, error) {
		var inc LeaderboardIncrement
		if err := rec.Decode(&inc); err != nil {
			return nil, err
		}
		res, err := board.Increment(ctx, leaderboard.Increment{
			RecordID: rec.ID.String(),
			EntityID: inc.EntityID,
			UserID:   inc.UserID,
			Day:      inc.Day,
			Points:   inc.Points,
		})
		if err != nil {
			return nil, err
		}
		if res.Band == leaderboard.BandNone {
			return nil, nil
		}

		req, err := notification.Leaderboard(inc.UserID, inc.EntityID, string(res.Band), res.Position, res.Score, inc.Day)
		if err != nil {
			return nil, err
		}
		metrics.IncLeaderboardAchievement(string(res.Band))
		return []outbox.Pending{notify(req)}, nil
	}
}

func NotificationHandler(sink notification.Sink) outbox.Handler {
	return func(ctx context.Context, rec outbox.Record) ([]outbox.Pending, error) {
		var req notification.Request
		if err := rec.Decode(&req); err != nil {
			return nil, err
		}
		return nil, sink.Send(ctx, req)
	}
}
