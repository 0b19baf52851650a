package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// Module provides the application Config.
var Module = fx.Module("config",
	fx.Provide(Load),
)

// Config holds application configuration.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Stream        StreamConfig        `mapstructure:"stream"`
	Engine        EngineConfig        `mapstructure:"engine"`
	Outbox        OutboxConfig        `mapstructure:"outbox"`
	Leaderboard   LeaderboardConfig   `mapstructure:"leaderboard"`
	Notification  NotificationConfig  `mapstructure:"notification"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	NodeID      int64  `mapstructure:"node_id"`
}

type DatabaseConfig struct {
	Type            string `mapstructure:"type"`
	Host            string `mapstructure:"host"`
	Port            string `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxIdleConn     int    `mapstructure:"max_idle_conn"`
	MaxOpenConn     int    `mapstructure:"max_open_conn"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StreamConfig describes the event log and consumer group.
type StreamConfig struct {
	Name            string        `mapstructure:"name"`
	Group           string        `mapstructure:"group"`
	DeadLetter      string        `mapstructure:"dead_letter"`
	BatchSize       int64         `mapstructure:"batch_size"`
	BlockTimeout    time.Duration `mapstructure:"block_timeout"`
	MaxDeliveries   int64         `mapstructure:"max_deliveries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	ReclaimInterval time.Duration `mapstructure:"reclaim_interval"`
	ReclaimMinIdle  time.Duration `mapstructure:"reclaim_min_idle"`
	MaxLen          int64         `mapstructure:"max_len"`
}

// EngineConfig tunes the reward pipeline.
type EngineConfig struct {
	IdempotencyTTL     time.Duration `mapstructure:"idempotency_ttl"`
	Cooldown           time.Duration `mapstructure:"cooldown"`
	RuleCacheTTL       time.Duration `mapstructure:"rule_cache_ttl"`
	NotifyPointsEarned bool          `mapstructure:"notify_points_earned"`
	ProcessedRetention time.Duration `mapstructure:"processed_retention"`
}

type OutboxConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BaseBackoff  time.Duration `mapstructure:"base_backoff"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff"`
	ClaimTimeout time.Duration `mapstructure:"claim_timeout"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
}

type LeaderboardConfig struct {
	Retention time.Duration `mapstructure:"retention"`
}

type NotificationConfig struct {
	Sink   string `mapstructure:"sink"`
	Stream string `mapstructure:"stream"`
	MaxLen int64  `mapstructure:"max_len"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type ObservabilityConfig struct {
	LogLevel             string        `mapstructure:"log_level"`
	LogFormat            string        `mapstructure:"log_format"`
	OtelEnabled          bool          `mapstructure:"otel_enabled"`
	OtelExporterEndpoint string        `mapstructure:"otel_exporter_endpoint"`
	OtelExporterProtocol string        `mapstructure:"otel_exporter_protocol"`
	OtelSamplingRatio    float64       `mapstructure:"otel_sampling_ratio"`
	OtelMetricsEnabled   bool          `mapstructure:"otel_metrics_enabled"`
	OtelMetricsInterval  time.Duration `mapstructure:"otel_metrics_interval"`
}

const (
	SinkStream = "stream"
	SinkLog    = "log"
)

var (
	ErrInvalidBatchSize     = errors.New("invalid_stream_batch_size")
	ErrInvalidBlockTimeout  = errors.New("invalid_stream_block_timeout")
	ErrInvalidMaxDeliveries = errors.New("invalid_stream_max_deliveries")
	ErrInvalidStream        = errors.New("invalid_stream_name")
	ErrInvalidSink          = errors.New("invalid_notification_sink")
	ErrInvalidIdempotency   = errors.New("invalid_idempotency_ttl")
)

// Load reads configuration from .env, an optional gamification.yml and environment variables.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("gamification")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/gamification")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	cfg.normalize()
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "gamification-worker")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.node_id", 1)

	v.SetDefault("database.type", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "gamification")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conn", 5)
	v.SetDefault("database.max_open_conn", 20)
	v.SetDefault("database.conn_max_lifetime", 1800)
	v.SetDefault("database.conn_max_idle_time", 300)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("stream.name", "gamification:events")
	v.SetDefault("stream.group", "gamification-engine")
	v.SetDefault("stream.dead_letter", "")
	v.SetDefault("stream.batch_size", 10)
	v.SetDefault("stream.block_timeout", "5s")
	v.SetDefault("stream.max_deliveries", 5)
	v.SetDefault("stream.retry_backoff", "2s")
	v.SetDefault("stream.reclaim_interval", "30s")
	v.SetDefault("stream.reclaim_min_idle", "1m")
	v.SetDefault("stream.max_len", 100000)

	v.SetDefault("engine.idempotency_ttl", "24h")
	v.SetDefault("engine.cooldown", "5s")
	v.SetDefault("engine.rule_cache_ttl", "30s")
	v.SetDefault("engine.notify_points_earned", false)
	v.SetDefault("engine.processed_retention", "720h")

	v.SetDefault("outbox.interval", "10s")
	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.max_attempts", 8)
	v.SetDefault("outbox.base_backoff", "2s")
	v.SetDefault("outbox.max_backoff", "10m")
	v.SetDefault("outbox.claim_timeout", "1m")
	v.SetDefault("outbox.lock_ttl", "30s")

	v.SetDefault("leaderboard.retention", "192h")

	v.SetDefault("notification.sink", SinkStream)
	v.SetDefault("notification.stream", "gamification:notifications")
	v.SetDefault("notification.max_len", 100000)

	v.SetDefault("http.addr", ":8080")

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")
	v.SetDefault("observability.otel_enabled", false)
	v.SetDefault("observability.otel_exporter_endpoint", "localhost:4317")
	v.SetDefault("observability.otel_exporter_protocol", "grpc")
	v.SetDefault("observability.otel_sampling_ratio", 0.1)
	v.SetDefault("observability.otel_metrics_enabled", false)
	v.SetDefault("observability.otel_metrics_interval", "10s")
}

func (c *Config) normalize() {
	c.Stream.Name = strings.TrimSpace(c.Stream.Name)
	c.Stream.Group = strings.TrimSpace(c.Stream.Group)
	if strings.TrimSpace(c.Stream.DeadLetter) == "" {
		c.Stream.DeadLetter = c.Stream.Name + ":dead"
	}
	c.Notification.Sink = strings.ToLower(strings.TrimSpace(c.Notification.Sink))
	c.Observability.LogLevel = strings.ToLower(strings.TrimSpace(c.Observability.LogLevel))
	c.Observability.OtelExporterProtocol = strings.ToLower(strings.TrimSpace(c.Observability.OtelExporterProtocol))
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Stream.Name == "" || c.Stream.Group == "" {
		return ErrInvalidStream
	}
	if c.Stream.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.Stream.BlockTimeout <= 0 {
		return ErrInvalidBlockTimeout
	}
	if c.Stream.MaxDeliveries <= 0 {
		return ErrInvalidMaxDeliveries
	}
	if c.Engine.IdempotencyTTL <= 0 {
		return ErrInvalidIdempotency
	}
	switch c.Notification.Sink {
	case SinkStream, SinkLog:
	default:
		return ErrInvalidSink
	}
	return nil
}

// IsProduction reports whether the app runs in a production environment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.App.Environment), "production")
}
