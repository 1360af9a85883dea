// Package checks implements the audit checks that inspect one load
// balancer at a time. Each check is independent: it reads the shared
// Context, may call AWS for detail lookups, and reports zero or more
// issues. A failing check never fails the audit of the resource.
package checks

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/yairfalse/vaaka/metrics"
	"github.com/yairfalse/vaaka/providers/aws"
	"github.com/yairfalse/vaaka/telemetry"
	"github.com/yairfalse/vaaka/types"
)

const (
	// defaultWindowDays is the CloudWatch lookback when none is configured.
	defaultWindowDays = 7

	// parallelCheckLimit caps concurrent checks per resource so a
	// single audit cannot burst the AWS API.
	parallelCheckLimit = 4
)

// Check inspects one load balancer and reports the issues it finds.
// Run must be safe for concurrent use with other checks sharing the
// same Context.
type Check interface {
	Name() string
	Run(ctx context.Context, tc *Context) ([]types.Issue, error)
}

// Context is the read-only snapshot of one load balancer that all
// checks share. The orchestrator assembles it once per resource.
type Context struct {
	LB           types.LoadBalancer
	Listeners    []types.Listener
	TargetGroups []types.TargetGroup

	// TargetHealth and TGAttributes are keyed by target group ARN.
	TargetHealth map[string]types.TargetHealthSummary
	TGAttributes map[string]map[string]string

	LBAttributes map[string]string

	// Certificates maps ACM certificate ARN to expiry status,
	// prefetched so the expiry check needs no network calls.
	Certificates map[string]types.CertStatus
}

// Fetcher is the slice of the AWS provider that checks call for
// lookups too expensive to prefetch for every resource.
type Fetcher interface {
	ListenerRules(ctx context.Context, listenerARN string) ([]aws.Rule, error)
	WebACLForResource(ctx context.Context, resourceARN string) (string, error)
	SecurityGroupRules(ctx context.Context, groupIDs []string) ([]aws.SGRule, error)
	InstanceTypes(ctx context.Context, instanceIDs []string) (map[string]string, error)
}

// Deps carries everything the full check set needs.
type Deps struct {
	Fetcher    Fetcher
	Aggregator metrics.Aggregator
	Logger     *telemetry.Logger
	Metrics    *telemetry.AuditMetrics

	// WindowDays is the metric lookback. Zero means defaultWindowDays.
	WindowDays int

	// Parallel runs the checks of one resource concurrently.
	Parallel bool
}

// Registry holds the full check set in a fixed order. Results are
// deterministic either way: parallel runs collect per slot and
// flatten in registration order.
type Registry struct {
	checks   []Check
	names    map[string]struct{}
	parallel bool
	logger   *telemetry.Logger
	metrics  *telemetry.AuditMetrics
}

// NewRegistry builds the registry with every audit check registered.
func NewRegistry(deps Deps) *Registry {
	window := deps.WindowDays
	if window <= 0 {
		window = defaultWindowDays
	}

	r := &Registry{
		names:    make(map[string]struct{}),
		parallel: deps.Parallel,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
	}

	r.register(&tlsPolicyCheck{})
	r.register(&httpsRedirectCheck{fetcher: deps.Fetcher, logger: deps.Logger})
	r.register(&wafAttachmentCheck{fetcher: deps.Fetcher})
	r.register(&certificateExpiryCheck{})
	r.register(&deletionProtectionCheck{})
	r.register(&securityGroupsCheck{fetcher: deps.Fetcher})
	r.register(&targetHealthCheck{aggregator: deps.Aggregator, windowDays: window})
	r.register(&errorRateCheck{aggregator: deps.Aggregator, windowDays: window})
	r.register(&healthCheckTuningCheck{})
	r.register(&azSpreadCheck{})
	r.register(&crossZoneCheck{})
	r.register(&stickinessCheck{})
	r.register(&idleCheck{aggregator: deps.Aggregator, windowDays: window})
	r.register(&unusedTargetGroupsCheck{})
	r.register(&accessLogsCheck{})
	r.register(&monitoringAlarmsCheck{aggregator: deps.Aggregator})
	r.register(&maintenanceRulesCheck{fetcher: deps.Fetcher, logger: deps.Logger})
	r.register(&targetTypeCheck{fetcher: deps.Fetcher})

	return r
}

func (r *Registry) register(c Check) {
	if _, dup := r.names[c.Name()]; dup {
		panic(fmt.Sprintf("duplicate check name: %s", c.Name()))
	}
	r.names[c.Name()] = struct{}{}
	r.checks = append(r.checks, c)
}

// Len returns the number of registered checks.
func (r *Registry) Len() int {
	return len(r.checks)
}

// Names returns the check names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.checks))
	for _, c := range r.checks {
		names = append(names, c.Name())
	}
	return names
}

// RunAll executes every check against one resource and returns the
// combined issues. Check errors are logged and swallowed: one broken
// check must not hide the findings of the other seventeen.
func (r *Registry) RunAll(ctx context.Context, tc *Context) []types.Issue {
	if r.parallel {
		return r.runParallel(ctx, tc)
	}

	var issues []types.Issue
	for _, check := range r.checks {
		found, err := check.Run(ctx, tc)
		if err != nil {
			r.recordFailure(ctx, check.Name(), tc.LB.Name, err)
			continue
		}
		r.recordSuccess(ctx, check.Name())
		issues = append(issues, found...)
	}
	return issues
}

func (r *Registry) runParallel(ctx context.Context, tc *Context) []types.Issue {
	results := make([][]types.Issue, len(r.checks))

	var g errgroup.Group
	g.SetLimit(parallelCheckLimit)
	for i, check := range r.checks {
		g.Go(func() error {
			found, err := check.Run(ctx, tc)
			if err != nil {
				r.recordFailure(ctx, check.Name(), tc.LB.Name, err)
				return nil
			}
			r.recordSuccess(ctx, check.Name())
			results[i] = found
			return nil
		})
	}
	_ = g.Wait() // check errors are logged, never returned

	var issues []types.Issue
	for _, found := range results {
		issues = append(issues, found...)
	}
	return issues
}

func (r *Registry) recordSuccess(ctx context.Context, name string) {
	if r.metrics != nil {
		r.metrics.RecordCheckExecuted(ctx, name, "ok", 1)
	}
}

func (r *Registry) recordFailure(ctx context.Context, name, lbName string, err error) {
	r.logger.LogCheckError(ctx, name, lbName, err)
	if r.metrics != nil {
		r.metrics.RecordCheckExecuted(ctx, name, "error", 1)
	}
	if telemetry.ChecksFailed != nil {
		telemetry.ChecksFailed.Add(ctx, 1,
			metric.WithAttributes(attribute.String("check", name)))
	}
}
