package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AuditMetrics holds the dimensioned fleet audit metrics
type AuditMetrics struct {
	// Counters
	IssuesDetected  metric.Int64Counter
	ChecksExecuted  metric.Int64Counter
	WaiversApplied  metric.Int64Counter
	ResourcesFailed metric.Int64Counter

	// Gauges
	ResourcesCurrent  metric.Int64Gauge
	ResourcesCritical metric.Int64Gauge
	CostMonthly       metric.Float64Gauge

	// Histograms
	SweepDuration    metric.Float64Histogram
	ResourceDuration metric.Float64Histogram
}

// InitAuditMetrics initializes all fleet audit metrics
func InitAuditMetrics(meter metric.Meter) (*AuditMetrics, error) {
	m := &AuditMetrics{}

	if err := m.initCounters(meter); err != nil {
		return nil, err
	}

	if err := m.initGauges(meter); err != nil {
		return nil, err
	}

	if err := m.initHistograms(meter); err != nil {
		return nil, err
	}

	return m, nil
}

// initCounters initializes counter metrics
func (m *AuditMetrics) initCounters(meter metric.Meter) error {
	var err error

	m.IssuesDetected, err = meter.Int64Counter(
		"vaaka.issues.detected.total",
		metric.WithDescription("Total number of audit issues detected"),
		metric.WithUnit("issues"),
	)
	if err != nil {
		return err
	}

	m.ChecksExecuted, err = meter.Int64Counter(
		"vaaka.checks.executed.total",
		metric.WithDescription("Total number of check executions"),
		metric.WithUnit("checks"),
	)
	if err != nil {
		return err
	}

	m.WaiversApplied, err = meter.Int64Counter(
		"vaaka.waivers.applied.total",
		metric.WithDescription("Total number of issues waived by policy"),
		metric.WithUnit("waivers"),
	)
	if err != nil {
		return err
	}

	m.ResourcesFailed, err = meter.Int64Counter(
		"vaaka.resources.failed.total",
		metric.WithDescription("Total number of load balancers whose audit failed"),
		metric.WithUnit("resources"),
	)
	if err != nil {
		return err
	}

	return nil
}

// initGauges initializes gauge metrics
func (m *AuditMetrics) initGauges(meter metric.Meter) error {
	var err error

	m.ResourcesCurrent, err = meter.Int64Gauge(
		"vaaka.resources.current",
		metric.WithDescription("Current number of load balancers in the audited fleet"),
		metric.WithUnit("resources"),
	)
	if err != nil {
		return err
	}

	m.ResourcesCritical, err = meter.Int64Gauge(
		"vaaka.resources.critical",
		metric.WithDescription("Current number of load balancers with unwaived critical issues"),
		metric.WithUnit("resources"),
	)
	if err != nil {
		return err
	}

	m.CostMonthly, err = meter.Float64Gauge(
		"vaaka.cost.monthly.usd",
		metric.WithDescription("Estimated monthly spend for the audited fleet"),
		metric.WithUnit("USD"),
	)
	if err != nil {
		return err
	}

	return nil
}

// initHistograms initializes histogram metrics
func (m *AuditMetrics) initHistograms(meter metric.Meter) error {
	var err error

	m.SweepDuration, err = meter.Float64Histogram(
		"vaaka.sweep.duration.ms",
		metric.WithDescription("Time taken to complete a full fleet sweep"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	m.ResourceDuration, err = meter.Float64Histogram(
		"vaaka.resource.audit.duration.ms",
		metric.WithDescription("Time taken to audit a single load balancer"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	return nil
}

// RecordIssueDetected records a detected audit issue
func (m *AuditMetrics) RecordIssueDetected(
	ctx context.Context,
	checkName string,
	severity string,
	category string,
	kind string,
	region string,
	count int64,
) {
	m.IssuesDetected.Add(ctx, count,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("check", checkName),
			attribute.String("severity", severity),
			attribute.String("category", category),
			attribute.String("kind", kind),
			attribute.String("region", region),
		)),
	)
}

// RecordCheckExecuted records a check execution and its outcome
func (m *AuditMetrics) RecordCheckExecuted(
	ctx context.Context,
	checkName string,
	outcome string,
	count int64,
) {
	m.ChecksExecuted.Add(ctx, count,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("check", checkName),
			attribute.String("outcome", outcome),
		)),
	)
}

// RecordWaiverApplied records an issue waived by policy
func (m *AuditMetrics) RecordWaiverApplied(
	ctx context.Context,
	checkName string,
	environment string,
	count int64,
) {
	m.WaiversApplied.Add(ctx, count,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("check", checkName),
			attribute.String("environment", environment),
		)),
	)
}

// RecordResourceFailed records a load balancer whose audit failed
func (m *AuditMetrics) RecordResourceFailed(
	ctx context.Context,
	kind string,
	region string,
	count int64,
) {
	m.ResourcesFailed.Add(ctx, count,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("kind", kind),
			attribute.String("region", region),
		)),
	)
}

// RecordCurrentResources records the current fleet size
func (m *AuditMetrics) RecordCurrentResources(
	ctx context.Context,
	kind string,
	scheme string,
	region string,
	count int64,
) {
	m.ResourcesCurrent.Record(ctx, count,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("kind", kind),
			attribute.String("scheme", scheme),
			attribute.String("region", region),
		)),
	)
}

// RecordCriticalResources records how many load balancers carry critical issues
func (m *AuditMetrics) RecordCriticalResources(
	ctx context.Context,
	region string,
	count int64,
) {
	m.ResourcesCritical.Record(ctx, count,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("region", region),
		)),
	)
}

// RecordMonthlyCost records the estimated monthly spend
func (m *AuditMetrics) RecordMonthlyCost(
	ctx context.Context,
	kind string,
	region string,
	usd float64,
) {
	m.CostMonthly.Record(ctx, usd,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("kind", kind),
			attribute.String("region", region),
		)),
	)
}

// RecordSweepDuration records a full sweep duration
func (m *AuditMetrics) RecordSweepDuration(
	ctx context.Context,
	trigger string,
	region string,
	durationMs float64,
) {
	m.SweepDuration.Record(ctx, durationMs,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("trigger", trigger),
			attribute.String("region", region),
		)),
	)
}

// RecordResourceDuration records a single resource audit duration
func (m *AuditMetrics) RecordResourceDuration(
	ctx context.Context,
	kind string,
	region string,
	durationMs float64,
) {
	m.ResourceDuration.Record(ctx, durationMs,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("kind", kind),
			attribute.String("region", region),
		)),
	)
}
