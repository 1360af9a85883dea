package checks

import (
	"context"
	"fmt"
	"strings"

	"github.com/yairfalse/vaaka/metrics"
	"github.com/yairfalse/vaaka/types"
)

// attrAccessLogs is the load balancer attribute for S3 access
// logging. Disabled is the AWS default, so absence counts as off.
const attrAccessLogs = "access_logs.s3.enabled"

// accessLogsCheck flags load balancers that keep no access logs.
type accessLogsCheck struct{}

func (c *accessLogsCheck) Name() string { return "access_logs" }

func (c *accessLogsCheck) Run(_ context.Context, tc *Context) ([]types.Issue, error) {
	if tc.LBAttributes[attrAccessLogs] == "true" {
		return nil, nil
	}

	return []types.Issue{{
		Severity:    types.SeverityMedium,
		Category:    types.CategoryObservability,
		Type:        "missing_observability",
		Description: "access logging to S3 is disabled",
		ResourceID:  tc.LB.ARN,
	}}, nil
}

// monitoringAlarmsCheck flags load balancers missing the baseline
// alarm set. Application load balancers need backend 5XX and
// unhealthy-host alarms; network load balancers have no 5XX metric,
// so only the unhealthy-host alarm is required.
type monitoringAlarmsCheck struct {
	aggregator metrics.Aggregator
}

func (c *monitoringAlarmsCheck) Name() string { return "monitoring_alarms" }

func (c *monitoringAlarmsCheck) Run(ctx context.Context, tc *Context) ([]types.Issue, error) {
	alarms, err := c.aggregator.Alarms(ctx)
	if err != nil {
		return nil, fmt.Errorf("alarm lookup failed: %w", err)
	}

	var missing []string
	for _, metricName := range requiredAlarmMetrics(tc.LB.Kind) {
		if !anyAlarmCovers(alarms, tc.LB, metricName) {
			missing = append(missing, metricName)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	return []types.Issue{{
		Severity:    types.SeverityMedium,
		Category:    types.CategoryObservability,
		Type:        "no_monitoring_alarms",
		Description: fmt.Sprintf("no alarms cover: %s", strings.Join(missing, ", ")),
		ResourceID:  tc.LB.ARN,
		Details: map[string]any{
			"missing_alarms": missing,
		},
	}}, nil
}

func requiredAlarmMetrics(kind types.LBKind) []string {
	if kind == types.KindNetwork {
		return []string{metrics.MetricUnhealthyHosts}
	}
	return []string{metrics.MetricTarget5XX, metrics.MetricUnhealthyHosts}
}

func anyAlarmCovers(alarms []metrics.Alarm, lb types.LoadBalancer, metricName string) bool {
	for _, a := range alarms {
		if a.Covers(lb, metricName) {
			return true
		}
	}
	return false
}
