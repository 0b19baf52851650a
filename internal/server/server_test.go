package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verma04/thrico-backend-services-sub003/internal/clock"
	"github.com/verma04/thrico-backend-services-sub003/internal/config"
	"github.com/verma04/thrico-backend-services-sub003/internal/consumer"
	"github.com/verma04/thrico-backend-services-sub003/internal/leaderboard"
	"github.com/verma04/thrico-backend-services-sub003/internal/testsupport"
)

type staticReporter struct {
	health consumer.Health
}

func (s staticReporter) Health() consumer.Health { return s.health }

func newTestEngine(t *testing.T, h consumer.Health, gatherer prometheus.Gatherer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewEngine(EngineParams{
		Reporter: staticReporter{health: h},
		Gatherer: gatherer,
		Config:   config.Default(),
	})
}

func TestHealthReportsConsumer(t *testing.T) {
	polled := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	r := newTestEngine(t, consumer.Health{
		ConsumerID: "host-1-01j",
		Status:     consumer.StatusOK,
		LastPollAt: &polled,
		Processed:  12,
	}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "host-1-01j", body["consumer_id"])
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(12), body["processed"])
	assert.Equal(t, "2026-03-10T09:00:00Z", body["last_poll_at"])
}

func TestHealthUnavailableWhenStale(t *testing.T) {
	r := newTestEngine(t, consumer.Health{ConsumerID: "c", Status: consumer.StatusStale}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsServesGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "gamification_sample_total", Help: "sample"})
	reg.MustRegister(counter)
	counter.Inc()

	r := newTestEngine(t, consumer.Health{Status: consumer.StatusOK}, reg)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gamification_sample_total 1")
}

func TestLeaderboardServesStandings(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, client := testsupport.Redis(t)
	board := leaderboard.New(client, 0)
	entity := uuid.New()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	day := leaderboard.Day(now)

	alice, bob := uuid.New(), uuid.New()
	for i, inc := range []struct {
		user   uuid.UUID
		points int64
	}{{alice, 15}, {bob, 40}} {
		_, err := board.Increment(context.Background(), leaderboard.Increment{
			RecordID: fmt.Sprintf("rec-%d", i),
			EntityID: entity,
			UserID:   inc.user,
			Day:      day,
			Points:   inc.points,
		})
		require.NoError(t, err)
	}

	r := NewEngine(EngineParams{
		Reporter:  staticReporter{health: consumer.Health{Status: consumer.StatusOK}},
		Standings: board,
		Clock:     clock.NewFakeClock(now),
		Config:    config.Default(),
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/leaderboards/"+entity.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Day       string                 `json:"day"`
		Standings []leaderboard.Standing `json:"standings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "2026-03-10", body.Day)
	require.Len(t, body.Standings, 2)
	assert.Equal(t, bob.String(), body.Standings[0].UserID)
	assert.Equal(t, int64(1), body.Standings[0].Position)
	assert.Equal(t, float64(40), body.Standings[0].Score)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/leaderboards/"+entity.String()+"?day=2026-03-09&limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Standings)
}

func TestLeaderboardRejectsBadInput(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, client := testsupport.Redis(t)
	r := NewEngine(EngineParams{
		Reporter:  staticReporter{health: consumer.Health{Status: consumer.StatusOK}},
		Standings: leaderboard.New(client, 0),
		Config:    config.Default(),
	})

	for _, path := range []string{
		"/leaderboards/not-a-uuid",
		"/leaderboards/" + uuid.NewString() + "?day=10-03-2026",
		"/leaderboards/" + uuid.NewString() + "?limit=0",
		"/leaderboards/" + uuid.NewString() + "?limit=500",
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	r := newTestEngine(t, consumer.Health{Status: consumer.StatusOK}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-health")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-health", w.Header().Get("X-Request-Id"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}
