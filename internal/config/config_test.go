package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesEngineContract(t *testing.T) {
	cfg := Default()

	assert.Equal(t, int64(10), cfg.Stream.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Stream.BlockTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Engine.IdempotencyTTL)
	assert.Equal(t, "gamification:events:dead", cfg.Stream.DeadLetter)
	assert.Equal(t, SinkStream, cfg.Notification.Sink)
	require.NoError(t, cfg.Validate())
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("STREAM_BATCH_SIZE", "25")
	t.Setenv("STREAM_NAME", "events")
	t.Setenv("ENGINE_COOLDOWN", "3s")
	t.Setenv("NOTIFICATION_SINK", "LOG")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(25), cfg.Stream.BatchSize)
	assert.Equal(t, "events", cfg.Stream.Name)
	assert.Equal(t, "events:dead", cfg.Stream.DeadLetter)
	assert.Equal(t, 3*time.Second, cfg.Engine.Cooldown)
	assert.Equal(t, SinkLog, cfg.Notification.Sink)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"batch", func(c *Config) { c.Stream.BatchSize = 0 }, ErrInvalidBatchSize},
		{"block", func(c *Config) { c.Stream.BlockTimeout = 0 }, ErrInvalidBlockTimeout},
		{"deliveries", func(c *Config) { c.Stream.MaxDeliveries = 0 }, ErrInvalidMaxDeliveries},
		{"stream", func(c *Config) { c.Stream.Group = "" }, ErrInvalidStream},
		{"sink", func(c *Config) { c.Notification.Sink = "smtp" }, ErrInvalidSink},
		{"idempotency", func(c *Config) { c.Engine.IdempotencyTTL = 0 }, ErrInvalidIdempotency},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tc.want)
		})
	}
}
