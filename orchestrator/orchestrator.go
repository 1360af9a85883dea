// Package orchestrator drives one full audit pass: discover the fleet,
// audit every load balancer, aggregate, persist and emit.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yairfalse/vaaka/checks"
	"github.com/yairfalse/vaaka/cost"
	"github.com/yairfalse/vaaka/discovery"
	"github.com/yairfalse/vaaka/internal/emitter"
	"github.com/yairfalse/vaaka/journal"
	"github.com/yairfalse/vaaka/metrics"
	"github.com/yairfalse/vaaka/policy"
	"github.com/yairfalse/vaaka/score"
	"github.com/yairfalse/vaaka/storage"
	"github.com/yairfalse/vaaka/telemetry"
	"github.com/yairfalse/vaaka/types"
)

const defaultWorkers = 4

// acmPrefix guards the certificate detail call: only ACM-managed
// certificates carry expiry metadata we can read.
const acmPrefix = "arn:aws:acm:"

// Orchestrator coordinates discover → audit → aggregate → persist → emit.
type Orchestrator struct {
	discoverer *discovery.Discoverer
	fetcher    TopologyFetcher
	registry   *checks.Registry
	aggregator metrics.Aggregator
	estimators *cost.Registry
	waivers    *policy.Engine
	store      *storage.Store
	jrnl       *journal.Journal
	emitters   []emitter.Emitter
	metrics    *telemetry.AuditMetrics
	logger     *telemetry.Logger

	region     string
	trigger    string
	workers    int
	windowDays int
}

// New validates deps and builds an orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Discoverer == nil {
		return nil, fmt.Errorf("discoverer required")
	}
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("topology fetcher required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("check registry required")
	}
	if deps.Estimators == nil {
		return nil, fmt.Errorf("cost estimators required")
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.NewLogger("orchestrator")
	}
	if deps.Workers <= 0 {
		deps.Workers = defaultWorkers
	}
	if deps.Trigger == "" {
		deps.Trigger = "manual"
	}

	return &Orchestrator{
		discoverer: deps.Discoverer,
		fetcher:    deps.Fetcher,
		registry:   deps.Registry,
		aggregator: deps.Aggregator,
		estimators: deps.Estimators,
		waivers:    deps.Waivers,
		store:      deps.Store,
		jrnl:       deps.Journal,
		emitters:   deps.Emitters,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		region:     deps.Region,
		trigger:    deps.Trigger,
		workers:    deps.Workers,
		windowDays: deps.WindowDays,
	}, nil
}

// Run executes one audit pass over the fleet. A discovery failure is
// fatal; everything after that point is isolated per resource and the
// run always completes.
func (o *Orchestrator) Run(ctx context.Context) (*types.RunResult, error) {
	started := time.Now()
	runID := fmt.Sprintf("run-%s", started.UTC().Format("20060102-150405"))

	ctx, sweep := telemetry.StartSweep(ctx, telemetry.Tracer, o.region, o.trigger)
	defer sweep.End()

	o.logger.WithContext(ctx).Info().
		Str("run_id", runID).
		Str("region", o.region).
		Msg("starting audit run")

	fleet, skipped, err := o.discover(ctx)
	if err != nil {
		return nil, err
	}
	discovered := len(fleet) + skipped
	sweep.SetDiscoveredCount(int64(discovered))
	o.recordFleetSize(ctx, fleet)

	o.journalAppend(ctx, journal.KindRunStarted, runID, runStartedPayload{
		RunID:      runID,
		Region:     o.region,
		Discovered: discovered,
		Skipped:    skipped,
	})

	results := o.auditFleet(ctx, fleet)

	run := assembleRun(runID, o.region, started, discovered, skipped, results)
	sweep.SetOutcome(int64(run.Summary.Audited), int64(run.Summary.Skipped), int64(run.Summary.Failed))
	sweep.SetIssueCounts(severityCounts(run.Summary.IssuesBySeverity))
	sweep.SetFleetScore(run.Summary.MeanScore)

	o.persist(ctx, run)
	o.emit(ctx, run)
	o.journalAppend(ctx, journal.KindRunCompleted, runID, run.Summary)
	o.recordRunMetrics(ctx, run)

	o.logger.LogRunComplete(ctx, run.Summary.Audited, run.Summary.Failed,
		run.TotalIssues(), run.Summary.MeanScore, run.Summary.Duration())

	telemetry.RecordSweepCompletedEvent(trace.SpanFromContext(ctx), o.trigger, o.region,
		int64(discovered), int64(run.Summary.Audited), int64(run.Summary.Skipped),
		int64(run.Summary.Failed), run.Summary.Duration().Seconds(), "audit run completed")

	return run, nil
}

func (o *Orchestrator) discover(ctx context.Context) ([]types.LoadBalancer, int, error) {
	start := time.Now()
	ctx, span := telemetry.StartDiscover(ctx, telemetry.Tracer, o.region)

	fleet, skipped, err := o.discoverer.Discover(ctx)
	if err != nil {
		telemetry.RecordError(span, err.Error(), "discovery")
		telemetry.EndDiscover(span, 0, 0, time.Since(start).Seconds())
		return nil, 0, err
	}

	telemetry.EndDiscover(span, int64(len(fleet)+skipped), int64(skipped), time.Since(start).Seconds())
	return fleet, skipped, nil
}

// auditFleet fans the fleet out over a bounded worker pool. Results
// land at the position of their load balancer, so no ordering is lost
// to scheduling.
func (o *Orchestrator) auditFleet(ctx context.Context, fleet []types.LoadBalancer) []types.AuditResult {
	results := make([]types.AuditResult, len(fleet))

	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, lb := range fleet {
		g.Go(func() error {
			results[i] = o.audit(ctx, lb)
			return nil
		})
	}
	_ = g.Wait() // per-resource failures live in the results

	return results
}

// audit runs the full check battery against one load balancer.
func (o *Orchestrator) audit(ctx context.Context, lb types.LoadBalancer) types.AuditResult {
	start := time.Now()
	ctx, span := telemetry.StartResourceAudit(ctx, telemetry.Tracer, lb.Name, string(lb.Kind))

	result := types.AuditResult{
		Name:      lb.Name,
		ARN:       lb.ARN,
		Kind:      lb.Kind,
		AuditedAt: start,
	}

	topo, err := o.fetcher.FetchTopology(ctx, lb)
	if err != nil {
		return o.failResource(ctx, span, result, fmt.Errorf("failed to fetch topology: %w", err))
	}

	certs := o.prefetchCertificates(ctx, topo.Listeners)

	tc := &checks.Context{
		LB:           lb,
		Listeners:    topo.Listeners,
		TargetGroups: topo.TargetGroups,
		TargetHealth: topo.TargetHealth,
		TGAttributes: topo.TGAttributes,
		LBAttributes: topo.Attributes,
		Certificates: certs,
	}

	issues := o.registry.RunAll(ctx, tc)
	if o.waivers != nil {
		issues = o.waivers.Apply(ctx, lb, issues)
	}

	result.Issues = issues
	result.HealthScore = score.Score(issues)
	result.Certificates = certs
	result.Metrics = o.usageSnapshot(ctx, lb)
	result.EstimatedMonthlyCost = o.estimate(ctx, lb)
	result.SortIssues()

	o.journalAppend(ctx, journal.KindResourceAudited, lb.ARN, result)
	o.recordIssueMetrics(ctx, lb, issues)
	if o.metrics != nil {
		o.metrics.RecordResourceDuration(ctx, string(lb.Kind), o.region, float64(time.Since(start).Milliseconds()))
	}

	for _, iss := range issues {
		if iss.Waived {
			continue
		}
		telemetry.RecordIssueDetectedEvent(span, iss.Type, lb.ARN, string(lb.Kind),
			lb.Tags.Environment, string(iss.Severity), string(iss.Category), iss.Description)
	}
	telemetry.RecordResourceAuditedEvent(span, lb.ARN, string(lb.Kind), lb.Tags.Environment,
		result.HealthScore, int64(len(issues)), "", "resource audit completed")

	telemetry.EndResourceAudit(span, int64(len(issues)), result.HealthScore)
	return result
}

// failResource records one load balancer whose audit could not finish.
// The run carries on without it.
func (o *Orchestrator) failResource(ctx context.Context, span trace.Span, result types.AuditResult, err error) types.AuditResult {
	result.Err = err.Error()

	o.logger.LogResourceFailed(ctx, result.Name, err)
	if o.jrnl != nil {
		if jerr := o.jrnl.AppendError(journal.KindResourceFailed, result.ARN, result, err); jerr != nil {
			o.logger.WithContext(ctx).Warn().Err(jerr).Msg("journal append failed")
		}
	}
	if o.metrics != nil {
		o.metrics.RecordResourceFailed(ctx, string(result.Kind), o.region, 1)
	}

	telemetry.RecordError(span, err.Error(), "resource_audit")
	telemetry.RecordResourceAuditedEvent(span, result.ARN, string(result.Kind), "",
		0, 0, err.Error(), "resource audit failed")
	telemetry.EndResourceAudit(span, 0, 0)
	return result
}

// prefetchCertificates resolves every ACM certificate referenced by
// the listeners once, so the expiry check needs no network calls.
// Lookup failures drop the certificate from the snapshot; the expiry
// check treats a missing entry as unknown, not expired.
func (o *Orchestrator) prefetchCertificates(ctx context.Context, listeners []types.Listener) map[string]types.CertStatus {
	var certs map[string]types.CertStatus
	for _, l := range listeners {
		for _, arn := range l.Certificates {
			if !strings.HasPrefix(arn, acmPrefix) {
				continue
			}
			if _, done := certs[arn]; done {
				continue
			}

			status, err := o.fetcher.CertificateDetail(ctx, arn)
			if err != nil {
				o.logger.WithContext(ctx).Warn().
					Err(err).
					Str("certificate", arn).
					Msg("certificate lookup failed")
				continue
			}

			if certs == nil {
				certs = make(map[string]types.CertStatus)
			}
			certs[arn] = status
		}
	}
	return certs
}

// usageSnapshot captures the traffic numbers the checks reasoned
// about, so reports can show the evidence next to the findings.
func (o *Orchestrator) usageSnapshot(ctx context.Context, lb types.LoadBalancer) map[string]float64 {
	if o.aggregator == nil {
		return nil
	}

	snap := make(map[string]float64)
	traffic := metrics.RequestMetric(lb.Kind)
	snap[traffic] = o.aggregator.Metric(ctx, lb, traffic, metrics.StatSum, o.windowDays)
	snap[metrics.MetricUnhealthyHosts] = o.aggregator.Metric(ctx, lb, metrics.MetricUnhealthyHosts, metrics.StatAverage, o.windowDays)
	if lb.IsApplication() {
		snap[metrics.MetricTarget5XX] = o.aggregator.Metric(ctx, lb, metrics.MetricTarget5XX, metrics.StatSum, o.windowDays)
	}
	return snap
}

func (o *Orchestrator) estimate(ctx context.Context, lb types.LoadBalancer) float64 {
	est, err := o.estimators.EstimateMonthly(ctx, lb)
	if err != nil {
		o.logger.WithContext(ctx).Warn().
			Err(err).
			Str("lb", lb.Name).
			Msg("cost estimate failed")
		return 0
	}
	return est.MonthlyUSD
}

// assembleRun folds per-resource results into the run summary. Failed
// audits count toward Failed and Errors but never into the mean score
// or the severity tallies.
func assembleRun(runID, region string, started time.Time, discovered, skipped int, results []types.AuditResult) *types.RunResult {
	summary := types.RunSummary{
		RunID:      runID,
		Region:     region,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Discovered: discovered,
		Skipped:    skipped,
	}

	var scoreSum float64
	bySeverity := make(map[string]int)

	for _, r := range results {
		if r.Failed() {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %s", r.Name, r.Err))
			continue
		}

		summary.Audited++
		scoreSum += r.HealthScore
		summary.TotalMonthlyCost += r.EstimatedMonthlyCost

		for _, iss := range r.Issues {
			if iss.Waived {
				continue
			}
			bySeverity[string(iss.Severity)]++
		}
	}

	if summary.Audited > 0 {
		summary.MeanScore = scoreSum / float64(summary.Audited)
	}
	if len(bySeverity) > 0 {
		summary.IssuesBySeverity = bySeverity
	}

	run := &types.RunResult{Summary: summary, Results: results}
	run.SortResults()
	return run
}

func (o *Orchestrator) persist(ctx context.Context, run *types.RunResult) {
	if o.store == nil {
		return
	}

	ctx, span := telemetry.StartPersist(ctx, telemetry.Tracer)

	seq, err := o.store.RecordRun(ctx, run.Summary, run.Results)
	if err != nil {
		run.Summary.Errors = append(run.Summary.Errors, fmt.Sprintf("persist failed: %v", err))
		telemetry.RecordError(span, err.Error(), "persist")
		telemetry.EndPersist(span, run.Summary.RunID, 0)
		return
	}

	o.logger.WithContext(ctx).Debug().
		Uint64("seq", seq).
		Int("results", len(run.Results)).
		Msg("run persisted")
	telemetry.EndPersist(span, run.Summary.RunID, int64(len(run.Results)))
}

// emit hands the finished run to every sink. One failing sink never
// blocks the others.
func (o *Orchestrator) emit(ctx context.Context, run *types.RunResult) {
	if len(o.emitters) == 0 {
		return
	}

	ctx, span := telemetry.StartEmit(ctx, telemetry.Tracer)

	failed := 0
	for _, e := range o.emitters {
		if err := e.Emit(ctx, run); err != nil {
			failed++
			run.Summary.Errors = append(run.Summary.Errors, fmt.Sprintf("emit failed: %v", err))
			o.logger.WithContext(ctx).Warn().Err(err).Msg("emitter failed")
		}
	}

	telemetry.EndEmit(span, int64(len(o.emitters)), int64(failed))
}

func (o *Orchestrator) journalAppend(ctx context.Context, kind journal.Kind, id string, payload interface{}) {
	if o.jrnl == nil {
		return
	}
	if err := o.jrnl.Append(kind, id, payload); err != nil {
		o.logger.WithContext(ctx).Warn().
			Err(err).
			Str("kind", string(kind)).
			Msg("journal append failed")
	}
}

func (o *Orchestrator) recordFleetSize(ctx context.Context, fleet []types.LoadBalancer) {
	if o.metrics == nil {
		return
	}

	type key struct{ kind, scheme string }
	counts := make(map[key]int64)
	for _, lb := range fleet {
		counts[key{string(lb.Kind), string(lb.Scheme)}]++
	}
	for k, n := range counts {
		o.metrics.RecordCurrentResources(ctx, k.kind, k.scheme, o.region, n)
	}
}

func (o *Orchestrator) recordIssueMetrics(ctx context.Context, lb types.LoadBalancer, issues []types.Issue) {
	if o.metrics == nil {
		return
	}

	for _, iss := range issues {
		if iss.Waived {
			o.metrics.RecordWaiverApplied(ctx, iss.Type, lb.Tags.Environment, 1)
			continue
		}
		o.metrics.RecordIssueDetected(ctx, iss.Type, string(iss.Severity), string(iss.Category), string(lb.Kind), o.region, 1)
	}
}

// recordRunMetrics updates the fleet-level instruments once per run.
func (o *Orchestrator) recordRunMetrics(ctx context.Context, run *types.RunResult) {
	if o.metrics != nil {
		var critical int64
		costByKind := make(map[string]float64)
		for _, r := range run.Results {
			if r.Failed() {
				continue
			}
			if r.CriticalCount() > 0 {
				critical++
			}
			costByKind[string(r.Kind)] += r.EstimatedMonthlyCost
		}

		o.metrics.RecordCriticalResources(ctx, o.region, critical)
		for kind, usd := range costByKind {
			o.metrics.RecordMonthlyCost(ctx, kind, o.region, usd)
		}
		o.metrics.RecordSweepDuration(ctx, o.trigger, o.region, float64(run.Summary.Duration().Milliseconds()))
	}

	// Top-line instruments exist only after InitOTEL.
	if telemetry.LBsAudited == nil {
		return
	}

	region := attribute.String("region", o.region)
	telemetry.LBsAudited.Add(ctx, int64(run.Summary.Audited), metric.WithAttributes(region))
	for sev, n := range run.Summary.IssuesBySeverity {
		telemetry.IssuesFound.Add(ctx, int64(n),
			metric.WithAttributes(region, attribute.String("severity", sev)))
	}
	telemetry.AuditDuration.Record(ctx, run.Summary.Duration().Seconds(), metric.WithAttributes(region))
	telemetry.FleetScore.Record(ctx, run.Summary.MeanScore, metric.WithAttributes(region))
}

func severityCounts(bySeverity map[string]int) (critical, high, medium, low int64) {
	return int64(bySeverity[string(types.SeverityCritical)]),
		int64(bySeverity[string(types.SeverityHigh)]),
		int64(bySeverity[string(types.SeverityMedium)]),
		int64(bySeverity[string(types.SeverityLow)])
}
