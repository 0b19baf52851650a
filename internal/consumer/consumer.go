package consumer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/verma04/thrico-backend-services-sub003/internal/actionevent"
	"github.com/verma04/thrico-backend-services-sub003/internal/clock"
	"github.com/verma04/thrico-backend-services-sub003/internal/config"
	"github.com/verma04/thrico-backend-services-sub003/internal/engine"
	obscontext "github.com/verma04/thrico-backend-services-sub003/internal/observability/context"
	obsmetrics "github.com/verma04/thrico-backend-services-sub003/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	attemptsPrefix = "gamification:attempts:"
	attemptsTTL    = 24 * time.Hour
	entryTimeout   = 30 * time.Second
)

var ErrMissingPayload = errors.New("stream_entry_missing_payload")

// EventHandler runs the reward pipeline for one decoded event.
type EventHandler interface {
	Handle(ctx context.Context, entryID string, evt actionevent.Event) (engine.Result, error)
}

// Status is the liveness reported on /health.
type Status string

const (
	StatusStarting Status = "starting"
	StatusOK       Status = "ok"
	StatusStale    Status = "stale"
)

type Health struct {
	ConsumerID string     `json:"consumer_id"`
	Status     Status     `json:"status"`
	LastPollAt *time.Time `json:"last_poll_at,omitempty"`
	Processed  int64      `json:"processed"`
}

// Consumer reads action events from the stream as one member of the group.
type Consumer struct {
	client  *redis.Client
	handler EventHandler
	cfg     config.StreamConfig
	id      string
	clock   clock.Clock
	metrics *obsmetrics.EngineMetrics
	log     *zap.Logger

	lastPoll    atomic.Int64
	processed   atomic.Int64
	lastReclaim time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(client *redis.Client, handler EventHandler, cfg config.StreamConfig, clk clock.Clock, metrics *obsmetrics.EngineMetrics, log *zap.Logger) *Consumer {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DeadLetter == "" {
		cfg.DeadLetter = cfg.Name + ":dead"
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	id := NewID()
	return &Consumer{
		client:  client,
		handler: handler,
		cfg:     cfg,
		id:      id,
		clock:   clk,
		metrics: metrics,
		log:     log.Named("gamification.consumer").With(zap.String("consumer_id", id)),
	}
}

// NewID builds a consumer name unique per process start.
func NewID() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), strings.ToLower(ulid.Make().String()))
}

func (c *Consumer) ID() string { return c.id }

// EnsureGroup creates the stream and group when missing.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Name, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Run polls until ctx is cancelled. Store outages are retried, never fatal.
func (c *Consumer) Run(ctx context.Context) error {
	ctx = obscontext.WithConsumerID(ctx, c.id)
	for {
		err := c.EnsureGroup(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		c.metrics.IncReadError()
		c.log.Warn("consumer group unavailable", zap.Error(err))
		sleep(ctx, c.cfg.RetryBackoff)
	}

	c.log.Info("consumer started",
		zap.String("stream", c.cfg.Name),
		zap.String("group", c.cfg.Group),
	)
	for ctx.Err() == nil {
		_ = c.PollOnce(ctx)
	}
	c.log.Info("consumer stopped", zap.Int64("processed", c.processed.Load()))
	return nil
}

// PollOnce runs one iteration: reclaim when due, then one blocking read.
// The heartbeat only advances when the read reaches the group.
func (c *Consumer) PollOnce(ctx context.Context) error {
	if c.reclaimDue() {
		err := c.reclaim(ctx)
		switch {
		case err == nil:
			c.heartbeat()
		case ctx.Err() == nil:
			c.log.Warn("reclaim pending entries", zap.Error(err))
		}
	}

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.id,
		Streams:  []string{c.cfg.Name, ">"},
		Count:    c.cfg.BatchSize,
		Block:    c.cfg.BlockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		c.heartbeat()
		return nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.metrics.IncReadError()
		if isNoGroup(err) {
			gerr := c.EnsureGroup(ctx)
			if gerr == nil {
				c.log.Warn("consumer group recreated", zap.Error(err))
				return err
			}
			err = errors.Join(err, gerr)
		}
		c.log.Warn("read event stream", zap.Error(err), zap.Duration("retry_in", c.cfg.RetryBackoff))
		sleep(ctx, c.cfg.RetryBackoff)
		return err
	}

	c.heartbeat()
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			c.handleMessage(ctx, msg)
		}
	}
	return nil
}

// isNoGroup reports a read against a stream or group that no longer exists,
// as after a store restart without persistence.
func isNoGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "NOGROUP")
}

func (c *Consumer) reclaimDue() bool {
	if c.cfg.ReclaimInterval <= 0 {
		return false
	}
	now := c.clock.Now()
	if !c.lastReclaim.IsZero() && now.Sub(c.lastReclaim) < c.cfg.ReclaimInterval {
		return false
	}
	c.lastReclaim = now
	return true
}

// reclaim takes over entries that stayed pending longer than the idle
// threshold, including entries of consumers that died.
func (c *Consumer) reclaim(ctx context.Context) error {
	start := "0-0"
	for {
		msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.cfg.Name,
			Group:    c.cfg.Group,
			MinIdle:  c.cfg.ReclaimMinIdle,
			Start:    start,
			Count:    c.cfg.BatchSize,
			Consumer: c.id,
		}).Result()
		if err != nil {
			return err
		}
		if len(msgs) > 0 {
			c.metrics.AddReclaimed(len(msgs))
			c.log.Info("reclaimed pending entries", zap.Int("count", len(msgs)))
		}
		for _, msg := range msgs {
			c.handleMessage(ctx, msg)
		}
		if next == "" || next == "0-0" || ctx.Err() != nil {
			return nil
		}
		start = next
	}
}

// handleMessage finishes an entry even when the loop is being stopped.
func (c *Consumer) handleMessage(parent context.Context, msg redis.XMessage) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), entryTimeout)
	defer cancel()

	raw, ok := msg.Values[actionevent.PayloadField].(string)
	if !ok {
		c.metrics.IncEvent(obsmetrics.OutcomeDecodeFailed)
		c.fail(ctx, msg, "", ErrMissingPayload)
		return
	}

	evt, err := actionevent.Decode([]byte(raw))
	if err != nil {
		c.metrics.IncEvent(obsmetrics.OutcomeDecodeFailed)
		c.fail(ctx, msg, raw, err)
		return
	}

	if _, err := c.handler.Handle(ctx, msg.ID, evt); err != nil {
		c.fail(ctx, msg, raw, err)
		return
	}

	if err := c.ack(ctx, msg.ID); err != nil {
		c.log.Warn("ack entry", zap.String("entry_id", msg.ID), zap.Error(err))
		return
	}
	c.processed.Add(1)
}

// fail counts the delivery and moves the entry to the dead-letter stream
// once it reaches the delivery limit. Otherwise it stays pending.
func (c *Consumer) fail(ctx context.Context, msg redis.XMessage, payload string, cause error) {
	key := attemptsPrefix + msg.ID
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, attemptsTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("event failed, delivery count unavailable",
			zap.String("entry_id", msg.ID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}

	attempts := incr.Val()
	if c.cfg.MaxDeliveries <= 0 || attempts < c.cfg.MaxDeliveries {
		c.log.Warn("event failed, left pending",
			zap.String("entry_id", msg.ID),
			zap.Int64("attempts", attempts),
			zap.Error(cause),
		)
		return
	}

	err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.DeadLetter,
		Values: map[string]any{
			actionevent.PayloadField: payload,
			"entry_id":               msg.ID,
			"error":                  cause.Error(),
			"attempts":               strconv.FormatInt(attempts, 10),
			"consumer_id":            c.id,
		},
	}).Err()
	if err != nil {
		c.log.Error("dead-letter entry", zap.String("entry_id", msg.ID), zap.Error(err))
		return
	}
	if err := c.ack(ctx, msg.ID); err != nil {
		c.log.Warn("ack dead-lettered entry", zap.String("entry_id", msg.ID), zap.Error(err))
	}
	c.metrics.IncEvent(obsmetrics.OutcomeDeadLettered)
	c.log.Error("event dead-lettered",
		zap.String("entry_id", msg.ID),
		zap.Int64("attempts", attempts),
		zap.String("dead_letter", c.cfg.DeadLetter),
		zap.Error(cause),
	)
}

func (c *Consumer) ack(ctx context.Context, entryID string) error {
	if err := c.client.XAck(ctx, c.cfg.Name, c.cfg.Group, entryID).Err(); err != nil {
		return err
	}
	return c.client.Del(ctx, attemptsPrefix+entryID).Err()
}

func (c *Consumer) heartbeat() {
	now := c.clock.Now()
	c.lastPoll.Store(now.UnixNano())
	c.metrics.SetLastPoll(now)
}

// Health reports liveness. A heartbeat older than three block timeouts is stale.
func (c *Consumer) Health() Health {
	h := Health{ConsumerID: c.id, Status: StatusStarting, Processed: c.processed.Load()}
	last := c.lastPoll.Load()
	if last == 0 {
		return h
	}
	at := time.Unix(0, last).UTC()
	h.LastPollAt = &at
	h.Status = StatusOK
	if c.clock.Now().Sub(at) > 3*c.cfg.BlockTimeout {
		h.Status = StatusStale
	}
	return h
}

// Start runs the loop in the background until Stop.
func (c *Consumer) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.done = done
	c.cancel = cancel
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
}

// Stop cancels the loop and waits for the in-flight entry to finish.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
