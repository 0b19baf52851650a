package ranks

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
)

func TestPromoteFollowsThresholdsAndNeverRegresses(t *testing.T) {
	ctx := context.Background()
	db := testsupport.OpenDB(t, domain.Models()...)
	repo := repository.Provide()
	node := testsupport.Node(t)
	tracker := New(repo, node, zap.NewNop())
	now := time.Now().UTC()

	user := &domain.GamificationUser{ID: node.Generate(), UserID: uuid.New(), EntityID: uuid.New(), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.EnsureUser(ctx, db, user))

	maxNewbie := int64(199)
	newbie := domain.Rank{ID: node.Generate(), EntityID: user.EntityID, Name: "Newbie", MinPoints: 0, MaxPoints: &maxNewbie, Order: 1, IsActive: true, CreatedAt: now, UpdatedAt: now}
	explorer := domain.Rank{ID: node.Generate(), EntityID: user.EntityID, Name: "Explorer", MinPoints: 200, Order: 2, IsActive: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.Create(&[]domain.Rank{newbie, explorer}).Error)

	promo, err := tracker.Promote(ctx, db, user, 10, now)
	require.NoError(t, err)
	require.NotNil(t, promo)
	assert.Nil(t, promo.From)
	assert.Equal(t, newbie.ID, promo.To.ID)

	promo, err = tracker.Promote(ctx, db, user, 150, now)
	require.NoError(t, err)
	assert.Nil(t, promo)

	promo, err = tracker.Promote(ctx, db, user, 205, now)
	require.NoError(t, err)
	require.NotNil(t, promo)
	require.NotNil(t, promo.From)
	assert.Equal(t, newbie.ID, promo.From.ID)
	assert.Equal(t, explorer.ID, promo.To.ID)

	// A lower total must not demote.
	promo, err = tracker.Promote(ctx, db, user, 50, now)
	require.NoError(t, err)
	assert.Nil(t, promo)

	stored, err := repo.FindUser(ctx, db, user.UserID, user.EntityID)
	require.NoError(t, err)
	require.NotNil(t, stored.CurrentRankID)
	assert.Equal(t, explorer.ID, *stored.CurrentRankID)

	var history []domain.RankHistory
	require.NoError(t, db.Order("achieved_at, id").Find(&history).Error)
	require.Len(t, history, 2)
	assert.Nil(t, history[0].FromRankID)
	require.NotNil(t, history[1].FromRankID)
	assert.Equal(t, newbie.ID, *history[1].FromRankID)
	assert.Equal(t, explorer.ID, history[1].ToRankID)
}

func TestPromoteWithoutRanks(t *testing.T) {
	ctx := context.Background()
	db := testsupport.OpenDB(t, domain.Models()...)
	repo := repository.Provide()
	node := testsupport.Node(t)
	now := time.Now().UTC()

	user := &domain.GamificationUser{ID: node.Generate(), UserID: uuid.New(), EntityID: uuid.New(), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.EnsureUser(ctx, db, user))

	promo, err := New(repo, node, nil).Promote(ctx, db, user, 1000, now)
	require.NoError(t, err)
	assert.Nil(t, promo)
}
