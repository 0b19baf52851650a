package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
)

const keyCooldown = "gamification:cooldown:%s:%s"

// Cooldown suppresses repeat awards of one rule to one user for a short window.
// Active is checked inside the reward transaction, Arm runs after commit.
type Cooldown struct {
	client *redis.Client
	window time.Duration
}

func NewCooldown(client *redis.Client, window time.Duration) *Cooldown {
	return &Cooldown{client: client, window: window}
}

// CooldownKey names the cooldown marker for a (gamification user, rule) pair.
func CooldownKey(gamificationUserID, ruleID snowflake.ID) string {
	return fmt.Sprintf(keyCooldown, gamificationUserID.String(), ruleID.String())
}

// Active reports whether the marker for key is still set.
func (c *Cooldown) Active(ctx context.Context, key string) (bool, error) {
	if c == nil || c.window <= 0 {
		return false, nil
	}
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("check cooldown: %w", err)
	}
	return n > 0, nil
}

// Arm sets the markers for keys. Existing markers keep their expiry.
func (c *Cooldown) Arm(ctx context.Context, keys ...string) error {
	if c == nil || c.window <= 0 || len(keys) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, key := range keys {
		pipe.SetNX(ctx, key, 1, c.window)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("arm cooldown: %w", err)
	}
	return nil
}
