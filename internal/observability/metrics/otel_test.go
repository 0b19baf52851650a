package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestInstrumentsMirrorEngineMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	inst, err := NewInstruments(provider, "worker")
	require.NoError(t, err)
	m := NewWithRegisterer(prometheus.NewRegistry(), Config{}).WithInstruments(inst)

	m.ObserveEvent(OutcomeProcessed, time.Millisecond)
	m.AddPointsAwarded("FEED", 10)
	m.AddPointsAwarded("FEED", 5)
	m.IncBadgeEarned("POINTS")
	m.IncRankUp()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, md := range scope.Metrics {
			data, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok, md.Name)
			for _, dp := range data.DataPoints {
				sums[md.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), sums["gamification.events"])
	assert.Equal(t, int64(15), sums["gamification.points.awarded"])
	assert.Equal(t, int64(1), sums["gamification.badges.earned"])
	assert.Equal(t, int64(1), sums["gamification.rank_ups"])
}

func TestNewMeterProviderDisabledIsNoop(t *testing.T) {
	provider, err := NewMeterProvider(nil, OTLPConfig{}, zap.NewNop())
	require.NoError(t, err)

	inst, err := NewInstruments(provider, "")
	require.NoError(t, err)
	assert.NotPanics(t, func() { inst.recordEvent(OutcomeNoop) })
}

func TestMetricExporterRejectsUnknownProtocol(t *testing.T) {
	_, err := newMetricExporter("udp", "")
	assert.Error(t, err)
}

func TestFilterAttributesDropsIdentifiers(t *testing.T) {
	got := FilterAttributes(
		attribute.String("module", "FEED"),
		attribute.String("entity_id", "tenant"),
		attribute.String("user_id", "user"),
	)
	require.Len(t, got, 1)
	assert.Equal(t, attribute.Key("module"), got[0].Key)
}
