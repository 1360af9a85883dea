package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RecordIssueDetectedEvent emits a structured log event for a detected audit issue
func RecordIssueDetectedEvent(
	span trace.Span,
	checkName string,
	resourceID string,
	kind string,
	environment string,
	severity string,
	category string,
	message string,
) {
	if span == nil {
		return
	}

	span.AddEvent("audit.issue.detected", trace.WithAttributes(
		attribute.String("event.type", "audit.issue.detected"),
		attribute.String("check.name", checkName),
		attribute.String("resource.id", resourceID),
		attribute.String("lb.kind", kind),
		attribute.String("environment", environment),
		attribute.String("severity", severity),
		attribute.String("category", category),
		attribute.String("message", message),
	))
}

// RecordWaiverAppliedEvent emits a structured log event for a policy waiver
func RecordWaiverAppliedEvent(
	span trace.Span,
	checkName string,
	resourceID string,
	environment string,
	waivedBy string,
	message string,
) {
	if span == nil {
		return
	}

	span.AddEvent("audit.waiver.applied", trace.WithAttributes(
		attribute.String("event.type", "audit.waiver.applied"),
		attribute.String("check.name", checkName),
		attribute.String("resource.id", resourceID),
		attribute.String("environment", environment),
		attribute.String("waived.by", waivedBy),
		attribute.String("message", message),
	))
}

// RecordResourceAuditedEvent emits a structured log event for a completed resource audit
func RecordResourceAuditedEvent(
	span trace.Span,
	resourceID string,
	kind string,
	environment string,
	score float64,
	issueCount int64,
	errorMsg string,
	message string,
) {
	if span == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("event.type", "audit.resource.completed"),
		attribute.String("resource.id", resourceID),
		attribute.String("lb.kind", kind),
		attribute.String("environment", environment),
		attribute.Float64("health.score", score),
		attribute.Int64("issues.found", issueCount),
		attribute.String("message", message),
	}

	if errorMsg != "" {
		attrs = append(attrs, attribute.String("error", errorMsg))
	}

	span.AddEvent("audit.resource.completed", trace.WithAttributes(attrs...))
}

// RecordResourceExcludedEvent emits a structured log event for an excluded resource
func RecordResourceExcludedEvent(
	span trace.Span,
	resourceID string,
	kind string,
	reason string,
	message string,
) {
	if span == nil {
		return
	}

	span.AddEvent("audit.resource.excluded", trace.WithAttributes(
		attribute.String("event.type", "audit.resource.excluded"),
		attribute.String("resource.id", resourceID),
		attribute.String("lb.kind", kind),
		attribute.String("reason", reason),
		attribute.String("message", message),
	))
}

// RecordSweepCompletedEvent emits a structured log event for sweep completion
func RecordSweepCompletedEvent(
	span trace.Span,
	trigger string,
	region string,
	discovered int64,
	audited int64,
	skipped int64,
	failed int64,
	durationSeconds float64,
	message string,
) {
	if span == nil {
		return
	}

	span.AddEvent("audit.sweep.completed", trace.WithAttributes(
		attribute.String("event.type", "audit.sweep.completed"),
		attribute.String("trigger", trigger),
		attribute.String("region", region),
		attribute.Int64("resources.discovered", discovered),
		attribute.Int64("resources.audited", audited),
		attribute.Int64("resources.skipped", skipped),
		attribute.Int64("resources.failed", failed),
		attribute.Float64("duration.seconds", durationSeconds),
		attribute.String("message", message),
	))
}
