package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/verma04/thrico-backend-services-sub003/internal/clock"
	"github.com/verma04/thrico-backend-services-sub003/internal/leaderboard"
)

const (
	defaultStandings = 10
	maxStandings     = 100
)

// StandingsReader reads a tenant's daily board.
type StandingsReader interface {
	Top(ctx context.Context, entityID uuid.UUID, day string, n int64) ([]leaderboard.Standing, error)
}

type standingsResponse struct {
	EntityID  string                 `json:"entity_id"`
	Day       string                 `json:"day"`
	Standings []leaderboard.Standing `json:"standings"`
}

// leaderboardHandler serves GET /leaderboards/:entityId?day=YYYY-MM-DD&limit=N.
// day defaults to the current UTC day.
func leaderboardHandler(reader StandingsReader, clk clock.Clock) gin.HandlerFunc {
	return func(c *gin.Context) {
		entityID, err := uuid.Parse(c.Param("entityId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_entity_id"})
			return
		}

		day := c.Query("day")
		if day == "" {
			day = leaderboard.Day(clk.Now())
		} else if _, err := time.Parse("2006-01-02", day); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_day"})
			return
		}

		limit := int64(defaultStandings)
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || n < 1 || n > maxStandings {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
				return
			}
			limit = n
		}

		standings, err := reader.Top(c.Request.Context(), entityID, day, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "leaderboard_unavailable"})
			return
		}
		if standings == nil {
			standings = []leaderboard.Standing{}
		}
		c.JSON(http.StatusOK, standingsResponse{
			EntityID:  entityID.String(),
			Day:       day,
			Standings: standings,
		})
	}
}
