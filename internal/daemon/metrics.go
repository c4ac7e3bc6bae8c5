package daemon

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DaemonMetrics holds scheduler metrics using OTEL semantic conventions
type DaemonMetrics struct {
	passes       metric.Int64Counter
	passDuration metric.Float64Histogram
}

// NewDaemonMetrics creates daemon metrics. A nil meter uses the global provider.
func NewDaemonMetrics(meter metric.Meter) (*DaemonMetrics, error) {
	if meter == nil {
		meter = otel.Meter("sweeper.daemon")
	}

	passes, err := meter.Int64Counter(
		"sweeper.daemon.batches",
		metric.WithDescription("Number of scheduled batches"),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		return nil, err
	}

	passDuration, err := meter.Float64Histogram(
		"sweeper.daemon.batch.duration",
		metric.WithDescription("Duration of scheduled batches"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &DaemonMetrics{
		passes:       passes,
		passDuration: passDuration,
	}, nil
}

// RecordPass records one scheduled batch with its status
func (m *DaemonMetrics) RecordPass(ctx context.Context, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.passes.Add(ctx, 1, attrs)
	m.passDuration.Record(ctx, d.Seconds(), attrs)
}
