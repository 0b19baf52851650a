package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/verma04/thrico-backend-services-sub003/internal/observability/logger"
	"github.com/verma04/thrico-backend-services-sub003/internal/observability/metrics"
	"github.com/verma04/thrico-backend-services-sub003/internal/observability/tracing"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		provideLoggerConfig,
		logger.New,
		provideTracingConfig,
		tracing.NewProvider,
		provideMetricsConfig,
		provideOTLPConfig,
		metrics.NewMeterProvider,
		provideRegistry,
		provideEngineMetrics,
	),
	fx.Invoke(ensureTracingProvider),
)

func ensureTracingProvider(_ *sdktrace.TracerProvider) {}

func provideLoggerConfig(cfg Config) logger.Config {
	return logger.Config{
		ServiceName:         cfg.ServiceName,
		Environment:         cfg.Environment,
		Version:             cfg.Version,
		Level:               cfg.LogLevel,
		Format:              cfg.LogFormat,
		IncludeCaller:       true,
		IncludeStackOnError: cfg.Debug(),
	}
}

func provideTracingConfig(cfg Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.OtelEnabled,
		ServiceName:      cfg.ServiceName,
		ServiceVersion:   cfg.Version,
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		SamplingRatio:    cfg.OtelSamplingRatio,
	}
}

func provideMetricsConfig(cfg Config) metrics.Config {
	return metrics.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	}
}

func provideOTLPConfig(cfg Config) metrics.OTLPConfig {
	return metrics.OTLPConfig{
		Enabled:          cfg.OtelMetricsEnabled,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		Interval:         cfg.OtelMetricsInterval,
	}
}

// provideEngineMetrics registers the Prometheus collectors and mirrors them
// onto the OTLP meter.
func provideEngineMetrics(reg prometheus.Registerer, cfg metrics.Config, provider metric.MeterProvider) (*metrics.EngineMetrics, error) {
	inst, err := metrics.NewInstruments(provider, cfg.ServiceName)
	if err != nil {
		return nil, err
	}
	return metrics.NewWithRegisterer(reg, cfg).WithInstruments(inst), nil
}

// provideRegistry exposes the process registry to both collectors and the
// /metrics handler.
func provideRegistry() (prometheus.Registerer, prometheus.Gatherer) {
	return prometheus.DefaultRegisterer, prometheus.DefaultGatherer
}
