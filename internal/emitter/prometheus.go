package emitter

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/vaaka/types"
)

// PrometheusEmitter emits run metrics in Prometheus format via OTEL.
type PrometheusEmitter struct {
	meter metric.Meter

	// Metrics
	healthScore       metric.Float64ObservableGauge
	auditDuration     metric.Float64Histogram
	issuesTotal       metric.Int64Counter
	auditErrorsTotal  metric.Int64Counter
	issueChangesTotal metric.Int64Counter

	// State for observable gauge
	mu      sync.RWMutex
	results []types.AuditResult

	// Change tracking
	issueTracker *IssueTracker
}

// NewPrometheusEmitter creates a Prometheus emitter.
func NewPrometheusEmitter() (*PrometheusEmitter, error) {
	meter := otel.Meter("vaaka")

	e := &PrometheusEmitter{
		meter:        meter,
		results:      make([]types.AuditResult, 0),
		issueTracker: NewIssueTracker(),
	}

	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return e, nil
}

func (e *PrometheusEmitter) initMetrics() error {
	var err error

	// Health score gauge - current score per load balancer
	e.healthScore, err = e.meter.Float64ObservableGauge(
		"vaaka_lb_health_score",
		metric.WithDescription("Current health score per load balancer"),
		metric.WithFloat64Callback(e.observeScores),
	)
	if err != nil {
		return fmt.Errorf("create health_score gauge: %w", err)
	}

	// Audit duration histogram
	e.auditDuration, err = e.meter.Float64Histogram(
		"vaaka_audit_duration_seconds",
		metric.WithDescription("Time taken to audit the fleet"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create audit_duration histogram: %w", err)
	}

	// Issues counter
	e.issuesTotal, err = e.meter.Int64Counter(
		"vaaka_issues_total",
		metric.WithDescription("Total issues found, by severity and category"),
	)
	if err != nil {
		return fmt.Errorf("create issues counter: %w", err)
	}

	// Audit errors counter
	e.auditErrorsTotal, err = e.meter.Int64Counter(
		"vaaka_audit_errors_total",
		metric.WithDescription("Total load balancers whose audit failed"),
	)
	if err != nil {
		return fmt.Errorf("create audit_errors counter: %w", err)
	}

	// Issue changes counter
	e.issueChangesTotal, err = e.meter.Int64Counter(
		"vaaka_issue_changes_total",
		metric.WithDescription("Issues appearing or resolving between runs"),
	)
	if err != nil {
		return fmt.Errorf("create issue_changes counter: %w", err)
	}

	return nil
}

// Emit records the audit run as metrics.
func (e *PrometheusEmitter) Emit(ctx context.Context, run *types.RunResult) error {
	attrs := []attribute.KeyValue{
		attribute.String("region", run.Summary.Region),
	}

	e.auditDuration.Record(ctx, run.Summary.Duration().Seconds(), metric.WithAttributes(attrs...))

	failures := 0
	for _, result := range run.Results {
		if result.Failed() {
			failures++
		}
	}
	if failures > 0 {
		e.auditErrorsTotal.Add(ctx, int64(failures), metric.WithAttributes(attrs...))
	}

	e.countIssues(ctx, run)

	// Compute and emit issue changes against the previous run
	e.emitChanges(ctx, run)

	// Update results for observable gauge
	e.mu.Lock()
	e.results = run.Results
	e.mu.Unlock()

	// Update change tracker baseline
	e.issueTracker.Update(run.Results)

	log.Info().
		Str("run_id", run.Summary.RunID).
		Str("region", run.Summary.Region).
		Int("audited", run.Summary.Audited).
		Int("failed", run.Summary.Failed).
		Dur("duration", run.Summary.Duration()).
		Msg("run metrics emitted")

	return nil
}

// countIssues records every active issue by severity and category.
func (e *PrometheusEmitter) countIssues(ctx context.Context, run *types.RunResult) {
	for _, result := range run.Results {
		if result.Failed() {
			continue
		}
		for _, iss := range result.Issues {
			if iss.Waived {
				continue
			}
			attrs := []attribute.KeyValue{
				attribute.String("severity", string(iss.Severity)),
				attribute.String("category", string(iss.Category)),
				attribute.String("kind", string(result.Kind)),
			}
			e.issuesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
	}
}

// emitChanges computes the issue delta and emits metrics/logs for it.
func (e *PrometheusEmitter) emitChanges(ctx context.Context, run *types.RunResult) {
	changes := e.issueTracker.ComputeChanges(run.Results)
	if changes == nil {
		// First run - baseline established
		return
	}

	for _, change := range changes {
		attrs := []attribute.KeyValue{
			attribute.String("change_type", string(change.Type)),
			attribute.String("issue_type", change.IssueType),
			attribute.String("severity", string(change.Severity)),
		}
		e.issueChangesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

		log.Info().
			Str("lb", change.LBName).
			Str("arn", change.LBARN).
			Str("issue", change.IssueType).
			Str("severity", string(change.Severity)).
			Str("change", string(change.Type)).
			Msg("issue changed")
	}
}

// observeScores is the callback for the health score gauge.
func (e *PrometheusEmitter) observeScores(_ context.Context, o metric.Float64Observer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, r := range e.results {
		if r.Failed() {
			continue
		}
		attrs := []attribute.KeyValue{
			attribute.String("name", r.Name),
			attribute.String("arn", r.ARN),
			attribute.String("kind", string(r.Kind)),
		}
		o.Observe(r.HealthScore, metric.WithAttributes(attrs...))
	}

	return nil
}

// Close is a no-op for Prometheus emitter.
func (e *PrometheusEmitter) Close() error {
	return nil
}
