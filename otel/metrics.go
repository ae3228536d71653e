package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petal-labs/stemflow"
)

// RegistryMetrics records counters and histograms for registry and
// id-generation activity.
type RegistryMetrics struct {
	registrations metric.Int64Counter
	snapshots     metric.Int64Counter
	warnings      metric.Int64Counter
	idDuration    metric.Float64Histogram
}

// NewRegistryMetrics creates the instruments on the given meter.
func NewRegistryMetrics(meter metric.Meter) (*RegistryMetrics, error) {
	registrations, err := meter.Int64Counter("stemflow.registry.registrations",
		metric.WithDescription("Number of flow registrations"),
	)
	if err != nil {
		return nil, err
	}

	snapshots, err := meter.Int64Counter("stemflow.registry.snapshots",
		metric.WithDescription("Number of registry snapshots serialized"),
	)
	if err != nil {
		return nil, err
	}

	warnings, err := meter.Int64Counter("stemflow.registry.warnings",
		metric.WithDescription("Number of registry warnings by kind"),
	)
	if err != nil {
		return nil, err
	}

	idDuration, err := meter.Float64Histogram("stemflow.ids.duration",
		metric.WithDescription("Duration of task id generation in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &RegistryMetrics{
		registrations: registrations,
		snapshots:     snapshots,
		warnings:      warnings,
		idDuration:    idDuration,
	}, nil
}

// WarningHandler adapts the metrics into a registry warning observer:
// each warning increments the warnings counter, attributed by kind.
func (m *RegistryMetrics) WarningHandler() stemflow.WarningHandler {
	return func(w stemflow.Warning) {
		m.warnings.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("kind", w.Kind.String())),
		)
	}
}

// RecordRegistration counts one flow registration.
func (m *RegistryMetrics) RecordRegistration(ctx context.Context, project, flow string) {
	m.registrations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("project", project),
		attribute.String("flow", flow),
	))
}

// RecordSnapshot counts one serialized snapshot.
func (m *RegistryMetrics) RecordSnapshot(ctx context.Context, bytes int) {
	m.snapshots.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("bytes", bytes),
	))
}

// RecordIDGeneration records the duration of one engine run.
func (m *RegistryMetrics) RecordIDGeneration(ctx context.Context, project, flow string, elapsed time.Duration) {
	m.idDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("project", project),
		attribute.String("flow", flow),
	))
}
