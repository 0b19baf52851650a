package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verma04/thrico-backend-services-sub003/internal/clock"
	"github.com/verma04/thrico-backend-services-sub003/internal/testsupport"
	"gorm.io/gorm"
)

func newEvent(key string) ProcessedEvent {
	return ProcessedEvent{
		EventKey:  key,
		EntityID:  uuid.New(),
		UserID:    uuid.New(),
		TriggerID: "tr-feed-create",
		EntryID:   "1700000000000-0",
	}
}

func TestMarkIsExclusiveAndExpires(t *testing.T) {
	ctx := context.Background()
	srv, client := testsupport.Redis(t)
	guard := New(client, clock.NewSystem(), time.Hour)

	seen, err := guard.Seen(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	created, err := guard.Mark(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = guard.Mark(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, created)

	seen, err = guard.Seen(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, time.Hour, srv.TTL(markerPrefix+"evt-1"))

	srv.FastForward(2 * time.Hour)
	seen, err = guard.Seen(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestClaimRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	_, client := testsupport.Redis(t)
	conn := testsupport.OpenDB(t, &ProcessedEvent{})
	guard := New(client, clock.NewSystem(), time.Hour)

	require.NoError(t, guard.Claim(ctx, conn, newEvent("evt-1")))
	assert.ErrorIs(t, guard.Claim(ctx, conn, newEvent("evt-1")), ErrDuplicate)

	processed, err := guard.Processed(ctx, conn, "evt-1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestClaimRollsBackWithTransaction(t *testing.T) {
	ctx := context.Background()
	_, client := testsupport.Redis(t)
	conn := testsupport.OpenDB(t, &ProcessedEvent{})
	guard := New(client, clock.NewSystem(), time.Hour)

	err := conn.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, guard.Claim(ctx, tx, newEvent("evt-2")))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	processed, err := guard.Processed(ctx, conn, "evt-2")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, guard.Claim(ctx, conn, newEvent("evt-2")))
}

func TestPurgeRemovesOldRows(t *testing.T) {
	ctx := context.Background()
	_, client := testsupport.Redis(t)
	conn := testsupport.OpenDB(t, &ProcessedEvent{})
	fake := clock.NewFakeClock(time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	guard := New(client, fake, time.Hour)

	old := newEvent("old")
	old.ProcessedAt = fake.Now().Add(-72 * time.Hour)
	require.NoError(t, guard.Claim(ctx, conn, old))
	require.NoError(t, guard.Claim(ctx, conn, newEvent("fresh")))

	removed, err := guard.Purge(ctx, conn, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestEmptyKeyIsRejected(t *testing.T) {
	_, client := testsupport.Redis(t)
	guard := New(client, nil, 0)

	_, err := guard.Mark(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, err = guard.Seen(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}
