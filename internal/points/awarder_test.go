package points

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verma04/thrico-backend-services-sub003/internal/gamification/domain"
	"github.com/verma04/thrico-backend-services-sub003/internal/gamification/repository"
	"github.com/verma04/thrico-backend-services-sub003/internal/ratelimit"
	"github.com/verma04/thrico-backend-services-sub003/internal/testsupport"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	repo     domain.Repository
	cooldown *ratelimit.Cooldown
	awarder  *Awarder
	user     *domain.GamificationUser
	advance  func(time.Duration)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testsupport.OpenDB(t, domain.Models()...)
	srv, client := testsupport.Redis(t)
	node := testsupport.Node(t)
	repo := repository.Provide()
	cooldown := ratelimit.NewCooldown(client, 5*time.Second)
	now := time.Now().UTC()

	user := &domain.GamificationUser{ID: node.Generate(), UserID: uuid.New(), EntityID: uuid.New(), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.EnsureUser(context.Background(), db, user))

	return &fixture{
		db:       db,
		repo:     repo,
		cooldown: cooldown,
		awarder:  New(repo, cooldown, node, zap.NewNop()),
		user:     user,
		advance:  srv.FastForward,
	}
}

func (f *fixture) rule(t *testing.T, trigger domain.Trigger, points int64) domain.PointRule {
	t.Helper()
	now := time.Now().UTC()
	rule := domain.PointRule{
		ID:        testsupport.Node(t).Generate(),
		EntityID:  f.user.EntityID,
		Module:    "feed",
		Action:    "tr-feed-create",
		Trigger:   trigger,
		Points:    points,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.db.Create(&rule).Error)
	return rule
}

func (f *fixture) award(t *testing.T, at time.Time, rules ...domain.PointRule) Result {
	t.Helper()
	var result Result
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = f.awarder.Award(context.Background(), tx, Input{
			User:     f.user,
			Rules:    rules,
			EventKey: uuid.NewString(),
			At:       at,
		})
		return err
	})
	require.NoError(t, err)
	require.NoError(t, f.cooldown.Arm(context.Background(), result.CooldownKeys...))
	return result
}

func (f *fixture) historyCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&domain.PointHistory{}).Where("gamification_user_id = ?", f.user.ID).Count(&count).Error)
	return count
}

func TestAwardRecurringRule(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, domain.TriggerRecurring, 10)

	result := f.award(t, time.Now(), rule)

	assert.Equal(t, int64(10), result.Awarded)
	assert.Equal(t, int64(10), result.Total)
	require.Len(t, result.Lines, 1)
	assert.Len(t, result.CooldownKeys, 1)
	assert.Equal(t, int64(1), f.historyCount(t))
}

func TestCooldownDampsBursts(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, domain.TriggerRecurring, 10)

	f.award(t, time.Now(), rule)
	second := f.award(t, time.Now(), rule)
	assert.Zero(t, second.Awarded)
	require.Len(t, second.Skipped, 1)
	assert.Equal(t, SkipCooldown, second.Skipped[0].Reason)

	f.advance(6 * time.Second)
	third := f.award(t, time.Now(), rule)
	assert.Equal(t, int64(10), third.Awarded)
	assert.Equal(t, int64(20), third.Total)
	assert.Equal(t, int64(2), f.historyCount(t))
}

func TestFirstTimeRulePaysOnce(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, domain.TriggerFirstTime, 50)

	first := f.award(t, time.Now(), rule)
	assert.Equal(t, int64(50), first.Awarded)

	f.advance(time.Minute)
	second := f.award(t, time.Now(), rule)
	assert.Zero(t, second.Awarded)
	assert.Equal(t, SkipFirstTimeTaken, second.Skipped[0].Reason)
	assert.Equal(t, int64(50), second.Total)
	assert.Equal(t, int64(1), f.historyCount(t))

	var entry domain.PointHistory
	require.NoError(t, f.db.Where("gamification_user_id = ?", f.user.ID).First(&entry).Error)
	require.NotNil(t, entry.FirstTimeKey)
	assert.Equal(t, domain.FirstTimeKey(f.user.ID, rule.ID), *entry.FirstTimeKey)
}

func TestDailyCapIsEnforced(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, domain.TriggerRecurring, 10)
	daily := int64(20)
	rule.DailyCap = &daily

	day := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(10), f.award(t, day, rule).Awarded)
	f.advance(time.Minute)
	assert.Equal(t, int64(10), f.award(t, day.Add(time.Minute), rule).Awarded)
	f.advance(time.Minute)

	capped := f.award(t, day.Add(2*time.Minute), rule)
	assert.Zero(t, capped.Awarded)
	assert.Equal(t, SkipDailyCap, capped.Skipped[0].Reason)

	f.advance(time.Minute)
	nextDay := f.award(t, day.Add(24*time.Hour), rule)
	assert.Equal(t, int64(10), nextDay.Awarded)
	assert.Equal(t, int64(30), nextDay.Total)
}

func TestWeeklyCapIsEnforced(t *testing.T) {
	f := newFixture(t)
	rule := f.rule(t, domain.TriggerRecurring, 15)
	weekly := int64(20)
	rule.WeeklyCap = &weekly

	tuesday := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(15), f.award(t, tuesday, rule).Awarded)
	f.advance(time.Minute)

	sameWeek := f.award(t, tuesday.Add(48*time.Hour), rule)
	assert.Equal(t, SkipWeeklyCap, sameWeek.Skipped[0].Reason)

	f.advance(time.Minute)
	nextMonday := time.Date(2026, 3, 16, 0, 30, 0, 0, time.UTC)
	assert.Equal(t, int64(15), f.award(t, nextMonday, rule).Awarded)
}

type failingRepo struct {
	domain.Repository
	failAfter int
	inserts   int
}

func (r *failingRepo) InsertPointHistory(ctx context.Context, db *gorm.DB, entry *domain.PointHistory) error {
	r.inserts++
	if r.inserts > r.failAfter {
		return errors.New("disk full")
	}
	return r.Repository.InsertPointHistory(ctx, db, entry)
}

func TestRuleFailureAbortsWholeAward(t *testing.T) {
	f := newFixture(t)
	first := f.rule(t, domain.TriggerRecurring, 10)
	second := f.rule(t, domain.TriggerRecurring, 5)

	awarder := New(&failingRepo{Repository: f.repo, failAfter: 1}, f.cooldown, testsupport.Node(t), zap.NewNop())
	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := awarder.Award(context.Background(), tx, Input{User: f.user, Rules: []domain.PointRule{first, second}, EventKey: "evt", At: time.Now()})
		return err
	})
	require.Error(t, err)

	assert.Equal(t, int64(0), f.historyCount(t))
	stored, err := f.repo.FindUser(context.Background(), f.db, f.user.UserID, f.user.EntityID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.TotalPoints)
}

func TestAwardRequiresUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.awarder.Award(context.Background(), f.db, Input{})
	assert.ErrorIs(t, err, ErrMissingUser)
}

func TestWindowBoundaries(t *testing.T) {
	sunday := time.Date(2026, 3, 15, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), StartOfDay(sunday))
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), StartOfWeek(sunday))

	monday := time.Date(2026, 3, 16, 0, 0, 1, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), StartOfWeek(monday))
}
