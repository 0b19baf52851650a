package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PayloadField is the stream field holding the encoded request.
const PayloadField = "payload"

var ErrSinkNotConfigured = errors.New("notification_sink_not_configured")

// Sink delivers notification requests. Delivery mechanics live downstream.
type Sink interface {
	Send(ctx context.Context, req Request) error
}

// StreamSink appends requests to a Redis stream read by the notification service.
type StreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamSink(client *redis.Client, stream string, maxLen int64) *StreamSink {
	return &StreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *StreamSink) Send(ctx context.Context, req Request) error {
	if s == nil || s.client == nil || s.stream == "" {
		return ErrSinkNotConfigured
	}
	if err := req.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{PayloadField: string(body)},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// LogSink writes requests to the log. Used when no dispatcher is deployed.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log.Named("gamification.notification")}
}

func (s *LogSink) Send(ctx context.Context, req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	s.log.Info("notification",
		zap.String("type", string(req.Type)),
		zap.String("user_id", req.UserID.String()),
		zap.String("entity_id", req.EntityID.String()),
		zap.String("title", req.Title),
		zap.String("message", req.Message),
		zap.Any("payload", req.Payload),
	)
	return nil
}
