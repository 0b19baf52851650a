package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verma04/thrico-backend-services-sub003/internal/testsupport"
)

func TestCooldownArmAndExpire(t *testing.T) {
	ctx := context.Background()
	srv, client := testsupport.Redis(t)
	node := testsupport.Node(t)
	cd := NewCooldown(client, 5*time.Second)
	key := CooldownKey(node.Generate(), node.Generate())

	active, err := cd.Active(ctx, key)
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, cd.Arm(ctx, key))
	active, err = cd.Active(ctx, key)
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, 5*time.Second, srv.TTL(key))

	srv.FastForward(6 * time.Second)
	active, err = cd.Active(ctx, key)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestCooldownDisabled(t *testing.T) {
	_, client := testsupport.Redis(t)
	cd := NewCooldown(client, 0)

	require.NoError(t, cd.Arm(context.Background(), "k"))
	active, err := cd.Active(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestLockerIsExclusiveAndTokenScoped(t *testing.T) {
	ctx := context.Background()
	_, client := testsupport.Redis(t)
	locker := NewLocker(client)

	token, ok, err := locker.TryLock(ctx, "gamification:lock:outbox", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "gamification:lock:outbox", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "gamification:lock:outbox", "someone-else"))
	_, ok, err = locker.TryLock(ctx, "gamification:lock:outbox", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "gamification:lock:outbox", token))
	_, ok, err = locker.TryLock(ctx, "gamification:lock:outbox", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockerValidatesInput(t *testing.T) {
	var nilLocker *Locker
	_, _, err := nilLocker.TryLock(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrLockNotConfigured)

	_, client := testsupport.Redis(t)
	locker := NewLocker(client)
	_, _, err = locker.TryLock(context.Background(), "", time.Second)
	assert.ErrorIs(t, err, ErrEmptyLockKey)
	_, _, err = locker.TryLock(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ErrInvalidLockTTL)
}
