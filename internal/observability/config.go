package observability

import (
	"strings"
	"time"

	"github.com/verma04/thrico-backend-services-sub003/internal/config"
)

// Config holds the observability settings derived from the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	OtelMetricsEnabled  bool
	OtelMetricsInterval time.Duration
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.App.Name)
	if serviceName == "" {
		serviceName = "gamification-worker"
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.Observability.LogLevel))
	if logLevel == "" {
		logLevel = "info"
	}
	logFormat := strings.ToLower(strings.TrimSpace(cfg.Observability.LogFormat))
	if logFormat == "" {
		logFormat = "json"
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.App.Environment),
		Version:              strings.TrimSpace(cfg.App.Version),
		LogLevel:             logLevel,
		LogFormat:            logFormat,
		OtelEnabled:          cfg.Observability.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.Observability.OtelExporterEndpoint),
		OtelExporterProtocol: strings.ToLower(strings.TrimSpace(cfg.Observability.OtelExporterProtocol)),
		OtelSamplingRatio:    cfg.Observability.OtelSamplingRatio,
		OtelMetricsEnabled:   cfg.Observability.OtelMetricsEnabled,
		OtelMetricsInterval:  cfg.Observability.OtelMetricsInterval,
	}
}

func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	return isDevEnv(c.Environment)
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
