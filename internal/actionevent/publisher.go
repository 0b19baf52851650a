package actionevent

import (
	"context"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

var ErrPublisherNotConfigured = errors.New("publisher_not_configured")

// Publisher appends action events to the event log. Content services use it
// to fire and forget.
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewPublisher(client *redis.Client, stream string, maxLen int64) *Publisher {
	return &Publisher{client: client, stream: stream, maxLen: maxLen}
}

// Publish validates evt and returns the stream entry id.
func (p *Publisher) Publish(ctx context.Context, evt Event) (string, error) {
	if p == nil || p.client == nil || p.stream == "" {
		return "", ErrPublisherNotConfigured
	}
	payload, err := evt.Encode()
	if err != nil {
		return "", err
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{PayloadField: string(payload)},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("append event to %s: %w", p.stream, err)
	}
	return id, nil
}
