package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// OTLPConfig configures the push meter provider.
type OTLPConfig struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	Interval         time.Duration
}

// NewMeterProvider installs the global meter provider. Disabled configs get a
// noop provider and nothing is pushed.
func NewMeterProvider(lc fx.Lifecycle, cfg OTLPConfig, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newMetricExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("otlp metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}
	return provider, nil
}

func newMetricExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	endpoint = strings.TrimSpace(endpoint)
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// Instruments mirrors the reward counters onto an OpenTelemetry meter.
type Instruments struct {
	events        metric.Int64Counter
	pointsAwarded metric.Int64Counter
	badgesEarned  metric.Int64Counter
	rankUps       metric.Int64Counter
}

func NewInstruments(provider metric.MeterProvider, serviceName string) (*Instruments, error) {
	name := strings.TrimSpace(serviceName)
	if name == "" {
		name = "gamification-worker"
	}
	meter := provider.Meter(name)

	events, err := meter.Int64Counter("gamification.events", metric.WithDescription("Stream entries handled by outcome."))
	if err != nil {
		return nil, err
	}
	pointsAwarded, err := meter.Int64Counter("gamification.points.awarded", metric.WithDescription("Points awarded by module."))
	if err != nil {
		return nil, err
	}
	badgesEarned, err := meter.Int64Counter("gamification.badges.earned", metric.WithDescription("Badges completed by type."))
	if err != nil {
		return nil, err
	}
	rankUps, err := meter.Int64Counter("gamification.rank_ups", metric.WithDescription("Rank promotions."))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		events:        events,
		pointsAwarded: pointsAwarded,
		badgesEarned:  badgesEarned,
		rankUps:       rankUps,
	}, nil
}

// WithInstruments mirrors subsequent recordings onto inst.
func (m *EngineMetrics) WithInstruments(inst *Instruments) *EngineMetrics {
	if m != nil {
		m.otel = inst
	}
	return m
}

func (i *Instruments) recordEvent(outcome string) {
	if i == nil {
		return
	}
	i.events.Add(context.Background(), 1, metric.WithAttributes(FilterAttributes(attribute.String("outcome", outcome))...))
}

func (i *Instruments) recordPoints(module string, points int64) {
	if i == nil {
		return
	}
	i.pointsAwarded.Add(context.Background(), points, metric.WithAttributes(FilterAttributes(attribute.String("module", module))...))
}

func (i *Instruments) recordBadge(badgeType string) {
	if i == nil {
		return
	}
	i.badgesEarned.Add(context.Background(), 1, metric.WithAttributes(FilterAttributes(attribute.String("type", badgeType))...))
}

func (i *Instruments) recordRankUp() {
	if i == nil {
		return
	}
	i.rankUps.Add(context.Background(), 1)
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"outcome": {},
	"module":  {},
	"type":    {},
	"band":    {},
	"kind":    {},
	"result":  {},
}

// FilterAttributes keeps only low-cardinality keys. Tenant and user ids never
// become labels.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
