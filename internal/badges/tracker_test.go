package badges

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verma04/thrico-backend-services-sub003/internal/gamification/domain"
	"github.com/verma04/thrico-backend-services-sub003/internal/gamification/repository"
	"github.com/verma04/thrico-backend-services-sub003/internal/testsupport"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*gorm.DB, domain.Repository, *Tracker, *domain.GamificationUser) {
	t.Helper()
	db := testsupport.OpenDB(t, domain.Models()...)
	repo := repository.Provide()
	node := testsupport.Node(t)
	now := time.Now().UTC()
	user := &domain.GamificationUser{ID: node.Generate(), UserID: uuid.New(), EntityID: uuid.New(), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.EnsureUser(context.Background(), db, user))
	return db, repo, New(repo, node, zap.NewNop()), user
}

func actionBadge(t *testing.T, db *gorm.DB, entityID uuid.UUID, target int64) domain.Badge {
	t.Helper()
	module, action := "feed", "tr-feed-create"
	now := time.Now().UTC()
	badge := domain.Badge{
		ID: testsupport.Node(t).Generate(), EntityID: entityID, Name: "Writer", Type: domain.BadgeTypeAction,
		Module: &module, Action: &action, TargetValue: target, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, db.Create(&badge).Error)
	return badge
}

func TestSingleStepBadgeCompletesImmediately(t *testing.T) {
	db, repo, tracker, user := setup(t)
	badge := actionBadge(t, db, user.EntityID, 1)
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	earned, err := tracker.AdvanceActionBadges(context.Background(), db, user, []domain.Badge{badge}, at)
	require.NoError(t, err)
	require.Len(t, earned, 1)

	stored, err := repo.FindUserBadge(context.Background(), db, user.ID, badge.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Progress)
	assert.True(t, stored.IsCompleted)
	require.NotNil(t, stored.EarnedAt)
	assert.True(t, at.Equal(*stored.EarnedAt))
}

func TestActionBadgeProgressIsMonotonicAndFrozen(t *testing.T) {
	db, repo, tracker, user := setup(t)
	badge := actionBadge(t, db, user.EntityID, 3)
	ctx := context.Background()
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	var completions int
	var lastProgress int64
	for i := 0; i < 6; i++ {
		earned, err := tracker.AdvanceActionBadges(ctx, db, user, []domain.Badge{badge}, start.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		completions += len(earned)

		stored, err := repo.FindUserBadge(ctx, db, user.ID, badge.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, stored.Progress, lastProgress)
		assert.LessOrEqual(t, stored.Progress, badge.TargetValue)
		assert.Equal(t, stored.Progress >= badge.TargetValue, stored.IsCompleted)
		lastProgress = stored.Progress
	}
	assert.Equal(t, 1, completions)

	stored, err := repo.FindUserBadge(ctx, db, user.ID, badge.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.EarnedAt)
	assert.True(t, start.Add(2*time.Minute).Equal(*stored.EarnedAt))
}

func TestPointsBadgesAwardOnceWithTotalAsProgress(t *testing.T) {
	db, repo, tracker, user := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()
	node := testsupport.Node(t)

	starter := domain.Badge{ID: node.Generate(), EntityID: user.EntityID, Name: "Starter", Type: domain.BadgeTypePoints, TargetValue: 10, IsActive: true, CreatedAt: now, UpdatedAt: now}
	pro := domain.Badge{ID: node.Generate(), EntityID: user.EntityID, Name: "Pro", Type: domain.BadgeTypePoints, TargetValue: 100, IsActive: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.Create(&[]domain.Badge{starter, pro}).Error)

	earned, err := tracker.AwardPointsBadges(ctx, db, user, 25, now)
	require.NoError(t, err)
	require.Len(t, earned, 1)
	assert.Equal(t, "Starter", earned[0].Badge.Name)
	assert.Equal(t, int64(25), earned[0].UserBadge.Progress)

	earned, err = tracker.AwardPointsBadges(ctx, db, user, 40, now)
	require.NoError(t, err)
	assert.Empty(t, earned)

	earned, err = tracker.AwardPointsBadges(ctx, db, user, 120, now)
	require.NoError(t, err)
	require.Len(t, earned, 1)
	assert.Equal(t, "Pro", earned[0].Badge.Name)

	stored, err := repo.FindUserBadge(ctx, db, user.ID, starter.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), stored.Progress)
	assert.True(t, stored.IsCompleted)
}
