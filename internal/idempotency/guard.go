package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/verma04/thrico-backend-services-sub003/internal/clock"
	"github.com/verma04/thrico-backend-services-sub003/internal/config"
	"github.com/verma04/thrico-backend-services-sub003/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const markerPrefix = "gamification:idempotency:"

var (
	ErrDuplicate = errors.New("duplicate_event")
	ErrEmptyKey  = errors.New("empty_idempotency_key")
)

// ProcessedEvent is written in the reward transaction. Its unique key makes
// the marker and the reward commit or roll back together.
type ProcessedEvent struct {
	EventKey    string    `gorm:"primaryKey;type:text"`
	EntityID    uuid.UUID `gorm:"type:uuid;not null;index"`
	UserID      uuid.UUID `gorm:"type:uuid;not null"`
	TriggerID   string    `gorm:"type:text;not null"`
	EntryID     string    `gorm:"type:text;not null"`
	ProcessedAt time.Time `gorm:"not null;index"`
}

func (ProcessedEvent) TableName() string { return "processed_events" }

// Guard deduplicates events. The Redis marker is the fast path; the
// processed_events row is authoritative.
type Guard struct {
	client *redis.Client
	clock  clock.Clock
	ttl    time.Duration
}

type Params struct {
	fx.In

	Client *redis.Client
	Clock  clock.Clock
	Config config.Config
}

func NewGuard(p Params) *Guard {
	return New(p.Client, p.Clock, p.Config.Engine.IdempotencyTTL)
}

func New(client *redis.Client, clk clock.Clock, ttl time.Duration) *Guard {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Guard{client: client, clock: clk, ttl: ttl}
}

// Seen reports whether the marker for key exists.
func (g *Guard) Seen(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	n, err := g.client.Exists(ctx, markerPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check idempotency marker: %w", err)
	}
	return n > 0, nil
}

// Claim records the event inside tx. A second claim for the same key returns
// ErrDuplicate and the caller rolls back.
func (g *Guard) Claim(ctx context.Context, tx *gorm.DB, evt ProcessedEvent) error {
	if evt.EventKey == "" {
		return ErrEmptyKey
	}
	if evt.ProcessedAt.IsZero() {
		evt.ProcessedAt = g.clock.Now()
	}
	err := tx.WithContext(ctx).Exec(
		`INSERT INTO processed_events (event_key, entity_id, user_id, trigger_id, entry_id, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		evt.EventKey,
		evt.EntityID,
		evt.UserID,
		evt.TriggerID,
		evt.EntryID,
		evt.ProcessedAt,
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("claim event: %w", err)
	}
	return nil
}

// Processed reports whether a row already exists for key.
func (g *Guard) Processed(ctx context.Context, conn *gorm.DB, key string) (bool, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM processed_events WHERE event_key = ?`,
		key,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Mark sets the marker once the outcome is durable. It reports whether this
// call created the marker.
func (g *Guard) Mark(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	ok, err := g.client.SetNX(ctx, markerPrefix+key, 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("set idempotency marker: %w", err)
	}
	return ok, nil
}

// Purge deletes processed rows older than the marker lifetime.
func (g *Guard) Purge(ctx context.Context, conn *gorm.DB, olderThan time.Duration) (int64, error) {
	cutoff := g.clock.Now().Add(-olderThan)
	result := conn.WithContext(ctx).Exec(
		`DELETE FROM processed_events WHERE processed_at < ?`,
		cutoff,
	)
	return result.RowsAffected, result.Error
}
