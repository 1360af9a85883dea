package checks

import (
	"context"
	"fmt"

	"github.com/yairfalse/vaaka/metrics"
	"github.com/yairfalse/vaaka/types"
)

const (
	// unhealthyRatioThreshold is the unhealthy-target fraction above
	// which a load balancer carrying traffic gets flagged.
	unhealthyRatioThreshold = 0.20

	// errorRateThreshold is the 5XX-per-request fraction above which
	// an application load balancer gets flagged.
	errorRateThreshold = 0.01

	healthCheckIntervalMax = 30
	healthCheckTimeoutMax  = 10
)

// targetHealthCheck flags load balancers serving traffic while a
// fifth or more of their targets are unhealthy.
type targetHealthCheck struct {
	aggregator metrics.Aggregator
	windowDays int
}

func (c *targetHealthCheck) Name() string { return "target_health" }

func (c *targetHealthCheck) Run(ctx context.Context, tc *Context) ([]types.Issue, error) {
	var total, unhealthy int
	for _, tg := range tc.TargetGroups {
		health := tc.TargetHealth[tg.ARN]
		total += health.Total
		unhealthy += health.Unhealthy
	}
	if total == 0 {
		return nil, nil
	}

	ratio := float64(unhealthy) / float64(total)
	if ratio < unhealthyRatioThreshold {
		return nil, nil
	}

	// Idle fleets are the idle check's problem, not a health one.
	traffic := c.aggregator.Metric(ctx, tc.LB, metrics.RequestMetric(tc.LB.Kind), metrics.StatSum, c.windowDays)
	if traffic == 0 {
		return nil, nil
	}

	return []types.Issue{{
		Severity:    types.SeverityHigh,
		Category:    types.CategoryPerformance,
		Type:        "unhealthy_targets",
		Description: fmt.Sprintf("%d of %d targets unhealthy while serving traffic", unhealthy, total),
		ResourceID:  tc.LB.ARN,
		Details: map[string]any{
			"total_targets":     total,
			"unhealthy_targets": unhealthy,
			"unhealthy_ratio":   ratio,
		},
	}}, nil
}

// errorRateCheck flags application load balancers whose backend 5XX
// rate exceeds one percent of requests over the window.
type errorRateCheck struct {
	aggregator metrics.Aggregator
	windowDays int
}

func (c *errorRateCheck) Name() string { return "error_rate" }

func (c *errorRateCheck) Run(ctx context.Context, tc *Context) ([]types.Issue, error) {
	if !tc.LB.IsApplication() {
		return nil, nil
	}

	requests := c.aggregator.Metric(ctx, tc.LB, metrics.MetricRequestCount, metrics.StatSum, c.windowDays)
	if requests == 0 {
		return nil, nil
	}

	errors5xx := c.aggregator.Metric(ctx, tc.LB, metrics.MetricTarget5XX, metrics.StatSum, c.windowDays)
	rate := errors5xx / requests
	if rate <= errorRateThreshold {
		return nil, nil
	}

	return []types.Issue{{
		Severity:    types.SeverityHigh,
		Category:    types.CategoryPerformance,
		Type:        "high_5xx_rate",
		Description: fmt.Sprintf("5XX rate %.2f%% over the last %d days", rate*100, c.windowDays),
		ResourceID:  tc.LB.ARN,
		Details: map[string]any{
			"request_count": requests,
			"error_count":   errors5xx,
			"error_rate":    rate,
		},
	}}, nil
}

// healthCheckTuningCheck flags slow health-check settings. Each
// violated parameter yields its own issue so remediation can be
// tracked per setting.
type healthCheckTuningCheck struct{}

func (c *healthCheckTuningCheck) Name() string { return "health_check_tuning" }

func (c *healthCheckTuningCheck) Run(_ context.Context, tc *Context) ([]types.Issue, error) {
	var issues []types.Issue
	for _, tg := range tc.TargetGroups {
		if tg.HealthCheckIntervalSeconds > healthCheckIntervalMax {
			issues = append(issues, tuningIssue(tc.LB.ARN, tg, "interval",
				int(tg.HealthCheckIntervalSeconds), healthCheckIntervalMax))
		}
		if tg.HealthCheckTimeoutSeconds > healthCheckTimeoutMax {
			issues = append(issues, tuningIssue(tc.LB.ARN, tg, "timeout",
				int(tg.HealthCheckTimeoutSeconds), healthCheckTimeoutMax))
		}
	}
	return issues, nil
}

func tuningIssue(lbARN string, tg types.TargetGroup, parameter string, value, limit int) types.Issue {
	return types.Issue{
		Severity:    types.SeverityMedium,
		Category:    types.CategoryPerformance,
		Type:        "inefficient_health_checks",
		Description: fmt.Sprintf("target group %s health check %s %ds exceeds %ds", tg.Name, parameter, value, limit),
		ResourceID:  lbARN,
		Details: map[string]any{
			"target_group_arn": tg.ARN,
			"parameter":        parameter,
			"value":            value,
			"limit":            limit,
		},
	}
}

// azSpreadCheck flags load balancers confined to a single
// availability zone.
type azSpreadCheck struct{}

func (c *azSpreadCheck) Name() string { return "az_spread" }

func (c *azSpreadCheck) Run(_ context.Context, tc *Context) ([]types.Issue, error) {
	if len(tc.LB.AvailabilityZones) != 1 {
		return nil, nil
	}

	return []types.Issue{{
		Severity:    types.SeverityHigh,
		Category:    types.CategoryPerformance,
		Type:        "single_az_risk",
		Description: fmt.Sprintf("deployed in a single availability zone (%s)", tc.LB.AvailabilityZones[0]),
		ResourceID:  tc.LB.ARN,
		Details: map[string]any{
			"availability_zone": tc.LB.AvailabilityZones[0],
		},
	}}, nil
}

// attrCrossZone is the network load balancer attribute controlling
// cross-zone distribution.
const attrCrossZone = "load_balancing.cross_zone.enabled"

// crossZoneCheck flags network load balancers with cross-zone
// balancing explicitly disabled.
type crossZoneCheck struct{}

func (c *crossZoneCheck) Name() string { return "cross_zone" }

func (c *crossZoneCheck) Run(_ context.Context, tc *Context) ([]types.Issue, error) {
	if !tc.LB.IsNetwork() {
		return nil, nil
	}
	if tc.LBAttributes[attrCrossZone] != "false" {
		return nil, nil
	}

	return []types.Issue{{
		Severity:    types.SeverityMedium,
		Category:    types.CategoryPerformance,
		Type:        "nlb_skew",
		Description: "cross-zone load balancing is disabled, traffic may skew toward one zone",
		ResourceID:  tc.LB.ARN,
	}}, nil
}

// attrStickiness is the target group attribute for session stickiness.
const attrStickiness = "stickiness.enabled"

// stickinessCheck flags stateful-looking target groups on application
// load balancers that have stickiness disabled.
type stickinessCheck struct{}

func (c *stickinessCheck) Name() string { return "stickiness" }

func (c *stickinessCheck) Run(_ context.Context, tc *Context) ([]types.Issue, error) {
	if !tc.LB.IsApplication() {
		return nil, nil
	}

	var issues []types.Issue
	for _, tg := range tc.TargetGroups {
		if !looksStateful(tg.Name) {
			continue
		}
		if tc.TGAttributes[tg.ARN][attrStickiness] == "true" {
			continue
		}
		issues = append(issues, types.Issue{
			Severity:    types.SeverityMedium,
			Category:    types.CategoryPerformance,
			Type:        "stateful_session_issues",
			Description: fmt.Sprintf("target group %s looks stateful but stickiness is disabled", tg.Name),
			ResourceID:  tc.LB.ARN,
			Details: map[string]any{
				"target_group_arn": tg.ARN,
				"target_group":     tg.Name,
			},
		})
	}
	return issues, nil
}
