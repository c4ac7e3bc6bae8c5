package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments recorded during scan passes.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	evaluations  metric.Int64Counter
	deletions    metric.Int64Counter
	errors       metric.Int64Counter
	alerts       metric.Int64Counter
	excluded     metric.Int64Counter
	passDuration metric.Float64Histogram
}

// NewMetrics creates the sweep instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.evaluations, err = meter.Int64Counter(
		"sweeper.resources.evaluated",
		metric.WithDescription("Resources evaluated by the lifecycle engine"),
		metric.WithUnit("{resource}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create evaluations: %w", err)
	}

	m.deletions, err = meter.Int64Counter(
		"sweeper.resources.deleted",
		metric.WithDescription("Resources deleted"),
		metric.WithUnit("{resource}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create deletions: %w", err)
	}

	m.errors, err = meter.Int64Counter(
		"sweeper.errors",
		metric.WithDescription("Per-resource and per-pass errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors: %w", err)
	}

	m.alerts, err = meter.Int64Counter(
		"sweeper.alerts",
		metric.WithDescription("Alerts raised for resources nearing deletion"),
		metric.WithUnit("{alert}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create alerts: %w", err)
	}

	m.excluded, err = meter.Int64Counter(
		"sweeper.resources.excluded",
		metric.WithDescription("Resources excluded by scope policies"),
		metric.WithUnit("{resource}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create excluded: %w", err)
	}

	m.passDuration, err = meter.Float64Histogram(
		"sweeper.pass.duration",
		metric.WithDescription("Duration of one policy scan pass"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pass duration: %w", err)
	}

	return m, nil
}

func passAttrs(policy, region string, extra ...attribute.KeyValue) metric.MeasurementOption {
	attrs := append([]attribute.KeyValue{
		attribute.String("policy", policy),
		attribute.String("cloud.region", region),
	}, extra...)
	return metric.WithAttributes(attrs...)
}

// RecordEvaluation counts one evaluated resource by decision state.
func (m *Metrics) RecordEvaluation(ctx context.Context, policy, region, state string) {
	if m == nil {
		return
	}
	m.evaluations.Add(ctx, 1, passAttrs(policy, region, attribute.String("state", state)))
}

// RecordDeletion counts one deleted resource.
func (m *Metrics) RecordDeletion(ctx context.Context, policy, region string) {
	if m == nil {
		return
	}
	m.deletions.Add(ctx, 1, passAttrs(policy, region))
}

// RecordError counts one error of the given kind.
func (m *Metrics) RecordError(ctx context.Context, policy, region, kind string) {
	if m == nil {
		return
	}
	m.errors.Add(ctx, 1, passAttrs(policy, region, attribute.String("kind", kind)))
}

// RecordAlert counts one alert of the given kind.
func (m *Metrics) RecordAlert(ctx context.Context, policy, region, kind string) {
	if m == nil {
		return
	}
	m.alerts.Add(ctx, 1, passAttrs(policy, region, attribute.String("kind", kind)))
}

// RecordExcluded counts one resource excluded by the scope filter.
func (m *Metrics) RecordExcluded(ctx context.Context, policy, region string) {
	if m == nil {
		return
	}
	m.excluded.Add(ctx, 1, passAttrs(policy, region))
}

// RecordPass records the duration and outcome of a scan pass.
func (m *Metrics) RecordPass(ctx context.Context, policy, region, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.passDuration.Record(ctx, d.Seconds(), passAttrs(policy, region, attribute.String("status", status)))
}
