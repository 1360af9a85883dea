package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SweepSpan represents a full fleet sweep span
type SweepSpan struct {
	ctx  context.Context
	span trace.Span
}

// StartSweep starts a new fleet sweep span
func StartSweep(
	ctx context.Context,
	tracer trace.Tracer,
	region string,
	trigger string,
) (context.Context, *SweepSpan) {
	ctx, span := tracer.Start(ctx, "sweep",
		trace.WithAttributes(
			attribute.String("region", region),
			attribute.String("trigger", trigger),
		),
	)

	return ctx, &SweepSpan{ctx: ctx, span: span}
}

// End ends the sweep span
func (s *SweepSpan) End() {
	s.span.End()
}

// SetDiscoveredCount sets the discovered load balancer count attribute
func (s *SweepSpan) SetDiscoveredCount(count int64) {
	s.span.SetAttributes(attribute.Int64("resources.discovered", count))
}

// SetOutcome sets per-resource outcome counts
func (s *SweepSpan) SetOutcome(audited, skipped, failed int64) {
	s.span.SetAttributes(
		attribute.Int64("resources.audited", audited),
		attribute.Int64("resources.skipped", skipped),
		attribute.Int64("resources.failed", failed),
	)
}

// SetIssueCounts sets issue counts by severity
func (s *SweepSpan) SetIssueCounts(critical, high, medium, low int64) {
	s.span.SetAttributes(
		attribute.Int64("issues.critical", critical),
		attribute.Int64("issues.high", high),
		attribute.Int64("issues.medium", medium),
		attribute.Int64("issues.low", low),
	)
}

// SetFleetScore sets the mean fleet health score attribute
func (s *SweepSpan) SetFleetScore(mean float64) {
	s.span.SetAttributes(attribute.Float64("fleet.score.mean", mean))
}

// StartDiscover starts a discovery phase span
func StartDiscover(
	ctx context.Context,
	tracer trace.Tracer,
	region string,
) (context.Context, trace.Span) {
	return tracer.Start(ctx, "discover",
		trace.WithAttributes(
			attribute.String("region", region),
		),
	)
}

// EndDiscover ends the discovery span with counts
func EndDiscover(span trace.Span, discovered, excluded int64, durationSeconds float64) {
	span.SetAttributes(
		attribute.Int64("resources.discovered", discovered),
		attribute.Int64("resources.excluded", excluded),
		attribute.Float64("duration.seconds", durationSeconds),
	)
	span.End()
}

// StartResourceAudit starts a span for a single load balancer audit
func StartResourceAudit(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	kind string,
) (context.Context, trace.Span) {
	return tracer.Start(ctx, "audit_resource",
		trace.WithAttributes(
			attribute.String("lb.name", name),
			attribute.String("lb.kind", kind),
		),
	)
}

// EndResourceAudit ends the resource span with findings
func EndResourceAudit(span trace.Span, issues int64, score float64) {
	span.SetAttributes(
		attribute.Int64("issues.found", issues),
		attribute.Float64("health.score", score),
	)
	span.End()
}

// StartPersist starts a persistence phase span
func StartPersist(ctx context.Context, tracer trace.Tracer) (context.Context, trace.Span) {
	return tracer.Start(ctx, "persist")
}

// EndPersist ends the persist span with run details
func EndPersist(span trace.Span, runID string, results int64) {
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.Int64("results.stored", results),
	)
	span.End()
}

// StartEmit starts an emit phase span
func StartEmit(ctx context.Context, tracer trace.Tracer) (context.Context, trace.Span) {
	return tracer.Start(ctx, "emit")
}

// EndEmit ends the emit span with emitter counts
func EndEmit(span trace.Span, emitters, failed int64) {
	span.SetAttributes(
		attribute.Int64("emitters.total", emitters),
		attribute.Int64("emitters.failed", failed),
	)
	span.End()
}

// RecordError records an error in a span
func RecordError(span trace.Span, errorMessage string, errorType string) {
	span.SetAttributes(
		attribute.String("error.message", errorMessage),
		attribute.String("error.type", errorType),
		attribute.Bool("error.occurred", true),
	)
}
