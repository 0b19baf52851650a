package notification

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verma04/thrico-backend-services-sub003/internal/config"
	"github.com/verma04/thrico-backend-services-sub003/internal/gamification/domain"
	"github.com/verma04/thrico-backend-services-sub003/internal/testsupport"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestStreamSinkPublishesRequest(t *testing.T) {
	ctx := context.Background()
	_, client := testsupport.Redis(t)
	sink := NewStreamSink(client, "gamification:notifications", 100)

	userID, entityID := uuid.New(), uuid.New()
	badge := domain.Badge{ID: 42, Name: "First Post", Type: domain.BadgeTypeAction}
	require.NoError(t, sink.Send(ctx, BadgeEarned(userID, entityID, badge)))

	entries, err := client.XRange(ctx, "gamification:notifications", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var got Request
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values[PayloadField].(string)), &got))
	assert.Equal(t, TypeBadgeEarned, got.Type)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, entityID, got.EntityID)
	assert.Equal(t, "First Post", got.Payload["badgeName"])
	assert.Equal(t, "first-post", got.Payload["badgeSlug"])
}

func TestStreamSinkRejectsInvalidRequest(t *testing.T) {
	_, client := testsupport.Redis(t)
	sink := NewStreamSink(client, "n", 0)

	err := sink.Send(context.Background(), Request{Type: TypeRankUp})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	var unconfigured *StreamSink
	assert.ErrorIs(t, unconfigured.Send(context.Background(), Request{}), ErrSinkNotConfigured)
}

func TestLogSinkWritesEntry(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	req := RankUp(uuid.New(), uuid.New(), nil, domain.Rank{ID: 7, Name: "Explorer"}, 210)
	require.NoError(t, sink.Send(context.Background(), req))

	entries := logs.FilterMessage("notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "RANK_UP", entries[0].ContextMap()["type"])
}

func TestLeaderboardRequest(t *testing.T) {
	req, err := Leaderboard(uuid.New(), uuid.New(), "TOP_3", 2, 45, "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, TypeLeaderboardTop3, req.Type)
	assert.Equal(t, int64(2), req.Payload["position"])

	req, err = Leaderboard(uuid.New(), uuid.New(), "TOP_10", 8, 12, "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, TypeLeaderboardTop10, req.Type)

	_, err = Leaderboard(uuid.New(), uuid.New(), "TOP_100", 50, 1, "2026-03-10")
	assert.ErrorIs(t, err, ErrUnknownBand)
}

func TestNewSinkSelectsConfiguredSink(t *testing.T) {
	cfg := config.Default()
	cfg.Notification.Sink = config.SinkLog
	assert.IsType(t, &LogSink{}, NewSink(Params{Config: cfg, Log: zap.NewNop()}))

	cfg.Notification.Sink = config.SinkStream
	assert.IsType(t, &StreamSink{}, NewSink(Params{Config: cfg, Client: redis.NewClient(&redis.Options{})}))
}
