// Package otel provides OpenTelemetry instrumentation for stemflow id
// generation and registry activity.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/stemflow"
	"github.com/petal-labs/stemflow/registry"
)

// GenerateTaskIDs runs the identifier engine under a span. The span
// records the flow identity and graph size, and carries error status
// when the graph is invalid.
func GenerateTaskIDs(ctx context.Context, tracer trace.Tracer, f *stemflow.Flow) (map[*stemflow.Task]stemflow.ID, error) {
	_, span := tracer.Start(ctx, "stemflow.generate_task_ids",
		trace.WithAttributes(
			attribute.String("stemflow.project", f.Project),
			attribute.String("stemflow.flow", f.Name),
			attribute.Int("stemflow.tasks", f.Len()),
			attribute.Int("stemflow.edges", len(f.Edges())),
		),
	)
	defer span.End()

	ids, err := stemflow.GenerateTaskIDs(f)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return ids, nil
}

// SerializeRegistry serializes a registry under a span, recording the
// snapshot size.
func SerializeRegistry(ctx context.Context, tracer trace.Tracer, r *registry.Registry) ([]byte, error) {
	_, span := tracer.Start(ctx, "stemflow.registry.serialize")
	defer span.End()

	data, err := r.Serialize()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("stemflow.snapshot_bytes", len(data)))
	span.SetStatus(codes.Ok, "")
	return data, nil
}
