package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/verma04/thrico-backend-services-sub003/internal/clock"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Kind selects the handler that applies a record.
type Kind string

const (
	KindLeaderboardIncrement Kind = "leaderboard_increment"
	KindNotification         Kind = "notification"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

var (
	ErrEmptyKind      = errors.New("outbox_kind_empty")
	ErrUnknownKind    = errors.New("outbox_kind_unknown")
	ErrRecordNotFound = errors.New("outbox_record_not_found")
)

// Record is a side effect committed together with the reward it belongs to.
type Record struct {
	ID            snowflake.ID   `json:"id" gorm:"primaryKey"`
	Kind          Kind           `json:"kind" gorm:"type:text;not null"`
	Payload       datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	Status        Status         `json:"status" gorm:"type:text;not null;index:ix_outbox_records_due,priority:1"`
	Attempts      int            `json:"attempts" gorm:"not null;default:0"`
	LastError     *string        `json:"last_error,omitempty" gorm:"type:text"`
	NextAttemptAt time.Time      `json:"next_attempt_at" gorm:"not null;index:ix_outbox_records_due,priority:2"`
	ClaimedAt     *time.Time     `json:"claimed_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at" gorm:"not null"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
}

func (Record) TableName() string { return "outbox_records" }

// Decode unmarshals the payload into v.
func (r Record) Decode(v any) error {
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", r.Kind, err)
	}
	return nil
}

// Pending is a record to be written, usually a follow-up of a handled record.
type Pending struct {
	Kind    Kind
	Payload any
}

// Writer inserts records on the caller's transaction.
type Writer struct {
	genID *snowflake.Node
	clock clock.Clock
}

func NewWriter(genID *snowflake.Node, clk clock.Clock) *Writer {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Writer{genID: genID, clock: clk}
}

func (w *Writer) Enqueue(ctx context.Context, tx *gorm.DB, kind Kind, payload any) (Record, error) {
	if kind == "" {
		return Record{}, ErrEmptyKind
	}
	body, err := encodePayload(payload)
	if err != nil {
		return Record{}, err
	}

	now := w.clock.Now()
	rec := Record{
		ID:            w.genID.Generate(),
		Kind:          kind,
		Payload:       body,
		Status:        StatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	err = tx.WithContext(ctx).Exec(
		`INSERT INTO outbox_records (id, kind, payload, status, attempts, next_attempt_at, created_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		rec.ID,
		rec.Kind,
		rec.Payload,
		rec.Status,
		rec.NextAttemptAt,
		rec.CreatedAt,
	).Error
	if err != nil {
		return Record{}, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return rec, nil
}

func encodePayload(payload any) (datatypes.JSON, error) {
	switch v := payload.(type) {
	case datatypes.JSON:
		return v, nil
	case json.RawMessage:
		return datatypes.JSON(v), nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode outbox payload: %w", err)
	}
	return datatypes.JSON(body), nil
}
