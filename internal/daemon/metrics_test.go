package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// TestDaemonMetrics_RecordPass verifies metric names and attributes
func TestDaemonMetrics_RecordPass(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := NewDaemonMetrics(provider.Meter("sweeper.daemon"))
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordPass(ctx, "success", 2*time.Second)
	metrics.RecordPass(ctx, "failed", time.Second)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := map[string]metricdata.Metrics{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		byName[m.Name] = m
	}
	require.Contains(t, byName, "sweeper.daemon.batches")
	require.Contains(t, byName, "sweeper.daemon.batch.duration")

	sum, ok := byName["sweeper.daemon.batches"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 2)
	for _, dp := range sum.DataPoints {
		status, found := dp.Attributes.Value(attribute.Key("status"))
		require.True(t, found)
		assert.Contains(t, []string{"success", "failed"}, status.AsString())
		assert.Equal(t, int64(1), dp.Value)
	}
}

func TestDaemonMetrics_NilSafe(t *testing.T) {
	var metrics *DaemonMetrics
	assert.NotPanics(t, func() {
		metrics.RecordPass(context.Background(), "success", time.Second)
	})
}
