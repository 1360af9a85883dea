package checks

import (
	"context"
	"fmt"
	"sort"

	"github.com/yairfalse/vaaka/metrics"
	"github.com/yairfalse/vaaka/telemetry"
	"github.com/yairfalse/vaaka/types"
)

// idleCheck flags load balancers that saw no traffic at all over the
// metrics window. They cost base price for nothing.
type idleCheck struct {
	aggregator metrics.Aggregator
	windowDays int
}

func (c *idleCheck) Name() string { return "idle" }

func (c *idleCheck) Run(ctx context.Context, tc *Context) ([]types.Issue, error) {
	metricName := metrics.RequestMetric(tc.LB.Kind)
	traffic := c.aggregator.Metric(ctx, tc.LB, metricName, metrics.StatSum, c.windowDays)
	if traffic > 0 {
		return nil, nil
	}

	return []types.Issue{{
		Severity:    types.SeverityLow,
		Category:    types.CategoryCost,
		Type:        "idle_assets",
		Description: fmt.Sprintf("no traffic over the last %d days", c.windowDays),
		ResourceID:  tc.LB.ARN,
		Details: map[string]any{
			"metric":      metricName,
			"window_days": c.windowDays,
		},
	}}, nil
}

// unusedTargetGroupsCheck flags target groups with nothing behind
// them: zero registered targets, or none of them healthy.
type unusedTargetGroupsCheck struct{}

func (c *unusedTargetGroupsCheck) Name() string { return "unused_target_groups" }

func (c *unusedTargetGroupsCheck) Run(_ context.Context, tc *Context) ([]types.Issue, error) {
	var issues []types.Issue
	for _, tg := range tc.TargetGroups {
		health := tc.TargetHealth[tg.ARN]

		var description string
		switch {
		case health.Total == 0:
			description = fmt.Sprintf("target group %s has no registered targets", tg.Name)
		case health.AllUnhealthy():
			description = fmt.Sprintf("target group %s has no healthy targets", tg.Name)
		default:
			continue
		}

		issues = append(issues, types.Issue{
			Severity:    types.SeverityLow,
			Category:    types.CategoryCost,
			Type:        "unused_target_groups",
			Description: description,
			ResourceID:  tc.LB.ARN,
			Details: map[string]any{
				"target_group_arn":   tg.ARN,
				"registered_targets": health.Total,
				"healthy_targets":    health.Healthy,
			},
		})
	}
	return issues, nil
}

// maintenanceRulesCheck flags forgotten maintenance pages: listener
// rules still serving a fixed response that reads like one. Listeners
// whose rules cannot be fetched are skipped.
type maintenanceRulesCheck struct {
	fetcher Fetcher
	logger  *telemetry.Logger
}

func (c *maintenanceRulesCheck) Name() string { return "maintenance_rules" }

func (c *maintenanceRulesCheck) Run(ctx context.Context, tc *Context) ([]types.Issue, error) {
	if !tc.LB.IsApplication() {
		return nil, nil
	}

	var issues []types.Issue
	for _, l := range tc.Listeners {
		rules, err := c.fetcher.ListenerRules(ctx, l.ARN)
		if err != nil {
			c.logger.WithContext(ctx).Warn().
				Err(err).
				Str("listener_arn", l.ARN).
				Msg("listener rules unavailable, skipping maintenance check")
			continue
		}

		for _, r := range rules {
			if r.FixedResponseBody == "" || !maintenanceBody(r.FixedResponseBody) {
				continue
			}
			issues = append(issues, types.Issue{
				Severity:    types.SeverityLow,
				Category:    types.CategoryCost,
				Type:        "maintenance_rules",
				Description: fmt.Sprintf("listener :%d still serves a fixed maintenance response", l.Port),
				ResourceID:  tc.LB.ARN,
				Details: map[string]any{
					"listener_arn":  l.ARN,
					"rule_priority": r.Priority,
					"response_code": r.FixedResponseCode,
				},
			})
		}
	}
	return issues, nil
}

// targetTypeCheck flags function-style workloads running on small
// burstable instances, where a serverless backend would likely cost
// less than the instance fleet.
type targetTypeCheck struct {
	fetcher Fetcher
}

func (c *targetTypeCheck) Name() string { return "target_type" }

func (c *targetTypeCheck) Run(ctx context.Context, tc *Context) ([]types.Issue, error) {
	var issues []types.Issue
	for _, tg := range tc.TargetGroups {
		if tg.TargetType != "instance" || !looksServerless(tg.Name) {
			continue
		}

		instanceIDs := tc.TargetHealth[tg.ARN].InstanceIDs
		if len(instanceIDs) == 0 {
			continue
		}

		instanceTypes, err := c.fetcher.InstanceTypes(ctx, instanceIDs)
		if err != nil {
			return nil, fmt.Errorf("instance type lookup failed: %w", err)
		}
		if len(instanceTypes) == 0 || !allBurstableSmall(instanceTypes) {
			continue
		}

		issues = append(issues, types.Issue{
			Severity:    types.SeverityLow,
			Category:    types.CategoryCost,
			Type:        "inefficient_target_type",
			Description: fmt.Sprintf("target group %s looks function-style but runs %d small burstable instances", tg.Name, len(instanceIDs)),
			ResourceID:  tc.LB.ARN,
			Details: map[string]any{
				"target_group_arn": tg.ARN,
				"target_group":     tg.Name,
				"instance_count":   len(instanceIDs),
				"instance_types":   uniqueSorted(instanceTypes),
			},
		})
	}
	return issues, nil
}

func allBurstableSmall(instanceTypes map[string]string) bool {
	for _, t := range instanceTypes {
		if !isBurstableSmall(t) {
			return false
		}
	}
	return true
}

func uniqueSorted(instanceTypes map[string]string) []string {
	set := make(map[string]bool, len(instanceTypes))
	for _, t := range instanceTypes {
		set[t] = true
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
