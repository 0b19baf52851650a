package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyBoard   = "gamification:leaderboard:%s:%s"
	keyApplied = "gamification:leaderboard:applied:%s"
	dayLayout  = "2006-01-02"
)

// The applied marker stores the position held before the increment so a
// replayed record reports the same starting point.
const incrementScript = `
local applied = redis.call("GET", KEYS[2])
if applied then
  local rank = redis.call("ZREVRANK", KEYS[1], ARGV[1])
  local score = redis.call("ZSCORE", KEYS[1], ARGV[1])
  return {0, tonumber(applied), rank and rank + 1 or 0, score or "0"}
end
local prev = redis.call("ZREVRANK", KEYS[1], ARGV[1])
local prevPos = prev and prev + 1 or 0
local score = redis.call("ZINCRBY", KEYS[1], ARGV[2], ARGV[1])
local rank = redis.call("ZREVRANK", KEYS[1], ARGV[1])
redis.call("SET", KEYS[2], prevPos, "EX", ARGV[4])
redis.call("EXPIRE", KEYS[1], ARGV[3])
return {1, prevPos, rank + 1, score}
`

var (
	ErrInvalidIncrement = errors.New("invalid_leaderboard_increment")
	ErrUnexpectedReply  = errors.New("unexpected_leaderboard_reply")
)

// Band is a notable leaderboard position range.
type Band string

const (
	BandNone  Band = ""
	BandTop3  Band = "TOP_3"
	BandTop10 Band = "TOP_10"
)

// Increment adds points for one user on one tenant day. RecordID makes the
// increment apply once.
type Increment struct {
	RecordID string
	EntityID uuid.UUID
	UserID   uuid.UUID
	Day      string
	Points   int64
}

type Result struct {
	Applied          bool
	PreviousPosition int64
	Position         int64
	Score            float64
	Band             Band
}

type Standing struct {
	UserID   string  `json:"user_id"`
	Position int64   `json:"position"`
	Score    float64 `json:"score"`
}

// Board keeps one descending sorted set per (tenant, UTC day).
type Board struct {
	client    *redis.Client
	script    *redis.Script
	retention time.Duration
}

func New(client *redis.Client, retention time.Duration) *Board {
	if retention <= 0 {
		retention = 8 * 24 * time.Hour
	}
	return &Board{
		client:    client,
		script:    redis.NewScript(incrementScript),
		retention: retention,
	}
}

// Day formats t as the UTC calendar day used in board keys.
func Day(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

func Key(entityID uuid.UUID, day string) string {
	return fmt.Sprintf(keyBoard, entityID.String(), day)
}

func (b *Board) Increment(ctx context.Context, inc Increment) (Result, error) {
	if inc.RecordID == "" || inc.Points <= 0 || inc.Day == "" || inc.UserID == uuid.Nil || inc.EntityID == uuid.Nil {
		return Result{}, ErrInvalidIncrement
	}

	seconds := int64(b.retention / time.Second)
	reply, err := b.script.Run(ctx, b.client,
		[]string{Key(inc.EntityID, inc.Day), fmt.Sprintf(keyApplied, inc.RecordID)},
		inc.UserID.String(), inc.Points, seconds, seconds,
	).Slice()
	if err != nil {
		return Result{}, fmt.Errorf("increment leaderboard: %w", err)
	}
	if len(reply) != 4 {
		return Result{}, ErrUnexpectedReply
	}

	applied, ok1 := reply[0].(int64)
	prev, ok2 := reply[1].(int64)
	pos, ok3 := reply[2].(int64)
	rawScore, ok4 := reply[3].(string)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Result{}, ErrUnexpectedReply
	}
	score, err := strconv.ParseFloat(rawScore, 64)
	if err != nil {
		return Result{}, fmt.Errorf("%w: score %q", ErrUnexpectedReply, rawScore)
	}

	return Result{
		Applied:          applied == 1,
		PreviousPosition: prev,
		Position:         pos,
		Score:            score,
		Band:             Crossed(prev, pos),
	}, nil
}

// Crossed reports the band a move from prev to next enters. Positions are
// 1-based, 0 means unranked. Only improvements count and TOP_3 wins over
// TOP_10 for the same move.
func Crossed(prev, next int64) Band {
	if next <= 0 {
		return BandNone
	}
	if prev != 0 && next >= prev {
		return BandNone
	}
	if next <= 3 && (prev == 0 || prev > 3) {
		return BandTop3
	}
	if next <= 10 && (prev == 0 || prev > 10) {
		return BandTop10
	}
	return BandNone
}

// Top returns the first n standings for a tenant day.
func (b *Board) Top(ctx context.Context, entityID uuid.UUID, day string, n int64) ([]Standing, error) {
	if n <= 0 {
		return nil, nil
	}
	members, err := b.client.ZRevRangeWithScores(ctx, Key(entityID, day), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	out := make([]Standing, 0, len(members))
	for i, m := range members {
		member, _ := m.Member.(string)
		out = append(out, Standing{UserID: member, Position: int64(i + 1), Score: m.Score})
	}
	return out, nil
}

// Score returns the user's points for the day and whether the user is ranked.
func (b *Board) Score(ctx context.Context, entityID uuid.UUID, day string, userID uuid.UUID) (float64, bool, error) {
	score, err := b.client.ZScore(ctx, Key(entityID, day), userID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read leaderboard score: %w", err)
	}
	return score, true, nil
}
