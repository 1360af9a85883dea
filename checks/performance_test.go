package checks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/vaaka/metrics"
	"github.com/yairfalse/vaaka/types"
)

func withTargetGroup(tc *Context, name string, health types.TargetHealthSummary) types.TargetGroup {
	tg := types.TargetGroup{
		ARN:        "arn:aws:elasticloadbalancing:us-east-1:123456789012:targetgroup/" + name + "/a1b2",
		Name:       name,
		TargetType: "instance",
	}
	tc.TargetGroups = append(tc.TargetGroups, tg)
	tc.TargetHealth[tg.ARN] = health
	return tg
}

func staticMetric(value float64) *mockAggregator {
	return &mockAggregator{
		MetricFunc: func(types.LoadBalancer, string, metrics.Statistic) float64 { return value },
	}
}

func TestTargetHealthCheck(t *testing.T) {
	t.Run("unhealthy fleet under load flagged", func(t *testing.T) {
		tc := newContext(newALB("web-prod"))
		withTargetGroup(tc, "web-servers", types.TargetHealthSummary{Total: 5, Healthy: 3, Unhealthy: 2})

		check := &targetHealthCheck{aggregator: staticMetric(10000), windowDays: 7}
		issues, err := check.Run(context.Background(), tc)

		require.NoError(t, err)
		require.Len(t, issues, 1)
		assert.Equal(t, "unhealthy_targets", issues[0].Type)
		assert.Equal(t, types.SeverityHigh, issues[0].Severity)
		assert.Equal(t, 2, issues[0].Details["unhealthy_targets"])
		assert.InDelta(t, 0.4, issues[0].Details["unhealthy_ratio"], 0.001)
	})

	t.Run("ratio at threshold flagged", func(t *testing.T) {
		tc := newContext(newALB("web-prod"))
		withTargetGroup(tc, "web-servers", types.TargetHealthSummary{Total: 5, Healthy: 4, Unhealthy: 1})

		check := &targetHealthCheck{aggregator: staticMetric(500), windowDays: 7}
		issues, err := check.Run(context.Background(), tc)

		require.NoError(t, err)
		assert.Len(t, issues, 1)
	})

	t.Run("idle fleet not flagged", func(t *testing.T) {
		tc := newContext(newALB("web-prod"))
		withTargetGroup(tc, "web-servers", types.TargetHealthSummary{Total: 5, Healthy: 0, Unhealthy: 5})

		check := &targetHealthCheck{aggregator: staticMetric(0), windowDays: 7}
		issues, err := check.Run(context.Background(), tc)

		require.NoError(t, err)
		assert.Empty(t, issues)
	})

	t.Run("mostly healthy fleet passes", func(t *testing.T) {
		tc := newContext(newALB("web-prod"))
		withTargetGroup(tc, "web-servers", types.TargetHealthSummary{Total: 10, Healthy: 9, Unhealthy: 1})

		check := &targetHealthCheck{aggregator: staticMetric(10000), windowDays: 7}
		issues, err := check.Run(context.Background(), tc)

		require.NoError(t, err)
		assert.Empty(t, issues)
	})

	t.Run("health aggregates across target groups", func(t *testing.T) {
		tc := newContext(newALB("web-prod"))
		withTargetGroup(tc, "web-servers", types.TargetHealthSummary{Total: 6, Healthy: 6})
		withTargetGroup(tc, "api-servers", types.TargetHealthSummary{Total: 4, Healthy: 2, Unhealthy: 2})

		check := &targetHealthCheck{aggregator: staticMetric(10000), windowDays: 7}
		issues, err := check.Run(context.Background(), tc)

		// 2 of 10 is exactly the threshold.
		require.NoError(t, err)
		assert.Len(t, issues, 1)
	})

	t.Run("no targets no finding", func(t *testing.T) {
		tc := newContext(newALB("web-prod"))

		check := &targetHealthCheck{aggregator: staticMetric(10000), windowDays: 7}
		issues, err := check.Run(context.Background(), tc)

		require.NoError(t, err)
		assert.Empty(t, issues)
	})

	t.Run("network lb uses flow metric", func(t *testing.T) {
		var asked string
		agg := &mockAggregator{
			MetricFunc: func(_ types.LoadBalancer, metricName string, _ metrics.Statistic) float64 {
				asked = metricName
				return 700
			},
		}
		tc := newContext(newNLB("tcp-prod"))
		withTargetGroup(tc, "tcp-servers", types.TargetHealthSummary{Total: 2, Healthy: 1, Unhealthy: 1})

		check := &targetHealthCheck{aggregator: agg, windowDays: 7}
		issues, err := check.Run(context.Background(), tc)

		require.NoError(t, err)
		assert.Len(t, issues, 1)
		assert.Equal(t, metrics.MetricActiveFlowCount, asked)
	})
}

func TestErrorRateCheck(t *testing.T) {
	metricValues := func(requests, errors5xx float64) *mockAggregator {
		return &mockAggregator{
			MetricFunc: func(_ types.LoadBalancer, metricName string, _ metrics.Statistic) float64 {
				if metricName == metrics.MetricTarget5XX {
					return errors5xx
				}
				return requests
			},
		}
	}

	t.Run("five percent error rate flagged", func(t *testing.T) {
		check := &errorRateCheck{aggregator: metricValues(10000, 500), windowDays: 7}
		issues, err := check.Run(context.Background(), newContext(newALB("web-prod")))

		require.NoError(t, err)
		require.Len(t, issues, 1)
		assert.Equal(t, "high_5xx_rate", issues[0].Type)
		assert.InDelta(t, 0.05, issues[0].Details["error_rate"], 0.0001)
	})

	t.Run("rate exactly at threshold passes", func(t *testing.T) {
		check := &errorRateCheck{aggregator: metricValues(10000, 100), windowDays: 7}
		issues, err := check.Run(context.Background(), newContext(newALB("web-prod")))

		require.NoError(t, err)
		assert.Empty(t, issues)
	})

	t.Run("healthy error rate passes", func(t *testing.T) {
		check := &errorRateCheck{aggregator: metricValues(50000, 30), windowDays: 7}
		issues, err := check.Run(context.Background(), newContext(newALB("web-prod")))

		require.NoError(t, err)
		assert.Empty(t, issues)
	})

	t.Run("no traffic skipped", func(t *testing.T) {
		check := &errorRateCheck{aggregator: metricValues(0, 0), windowDays: 7}
		issues, err := check.Run(context.Background(), newContext(newALB("web-prod")))

		require.NoError(t, err)
		assert.Empty(t, issues)
	})

	t.Run("network lb skipped", func(t *testing.T) {
		check := &errorRateCheck{aggregator: metricValues(10000, 500), windowDays: 7}
		issues, err := check.Run(context.Background(), newContext(newNLB("tcp-prod")))

		require.NoError(t, err)
		assert.Empty(t, issues)
	})
}

func TestHealthCheckTuningCheck(t *testing.T) {
	check := &healthCheckTuningCheck{}

	t.Run("slow interval and timeout give two findings", func(t *testing.T) {
		tc := newContext(newALB("web-prod"))
		tc.TargetGroups = []types.TargetGroup{{
			ARN:                        "arn:tg/web-servers",
			Name:                       "web-servers",
			HealthCheckIntervalSeconds: 60,
			HealthCheckTimeoutSeconds:  20,
		}}

		issues, err := check.Run(context.Background(), tc)

		require.NoError(t, err)
		require.Len(t, issues, 2)
		assert.Equal(t, "interval", issues[0].Details["parameter"])
		assert.Equal(t, "timeout", issues[1].Details["parameter"])
		for _, issue := range issues {
			assert.Equal(t, "inefficient_health_checks", issue.Type)
		}
	})

	t.Run("limits are inclusive", func(t *testing.T) {
		tc := newContext(newALB("web-prod"))
		tc.TargetGroups = []types.TargetGroup{{
			ARN:                        "arn:tg/web-servers",
			Name:                       "web-servers",
			HealthCheckIntervalSeconds: 30,
			HealthCheckTimeoutSeconds:  10,
		}}

		issues, err := check.Run(context.Background(), tc)

		require.NoError(t, err)
		assert.Empty(t, issues)
	})

	t.Run("single violated parameter", func(t *testing.T) {
		tc := newContext(newALB("web-prod"))
		tc.TargetGroups = []types.TargetGroup{{
			ARN:                        "arn:tg/web-servers",
			Name:                       "web-servers",
			HealthCheckIntervalSeconds: 35,
			HealthCheckTimeoutSeconds:  5,
		}}

		issues, err := check.Run(context.Background(), tc)

		require.NoError(t, err)
		require.Len(t, issues, 1)
		assert.Equal(t, "interval", issues[0].Details["parameter"])
		assert.Equal(t, 35, issues[0].Details["value"])
	})
}

func TestAZSpreadCheck(t *testing.T) {
	check := &azSpreadCheck{}

	t.Run("single zone flagged", func(t *testing.T) {
		lb := newALB("web-prod")
		lb.AvailabilityZones = []string{"us-east-1a"}

		issues, err := check.Run(context.Background(), newContext(lb))

		require.NoError(t, err)
		require.Len(t, issues, 1)
		assert.Equal(t, "single_az_risk", issues[0].Type)
		assert.Equal(t, "us-east-1a", issues[0].Details["availability_zone"])
	})

	t.Run("two zones pass", func(t *testing.T) {
		issues, err := check.Run(context.Background(), newContext(newALB("web-prod")))

		require.NoError(t, err)
		assert.Empty(t, issues)
	})

	t.Run("no zones reported passes", func(t *testing.T) {
		lb := newALB("web-prod")
		lb.AvailabilityZones = nil

		issues, err := check.Run(context.Background(), newContext(lb))

		require.NoError(t, err)
		assert.Empty(t, issues)
	})
}

func TestCrossZoneCheck(t *testing.T) {
	check := &crossZoneCheck{}

	tests := []struct {
		name      string
		lb        types.LoadBalancer
		attrValue string
		wantIssue bool
	}{
		{"nlb with cross-zone off", newNLB("tcp-prod"), "false", true},
		{"nlb with cross-zone on", newNLB("tcp-prod"), "true", false},
		{"nlb without attribute", newNLB("tcp-prod"), "", false},
		{"alb ignored", newALB("web-prod"), "false", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newContext(tt.lb)
			if tt.attrValue != "" {
				tc.LBAttributes[attrCrossZone] = tt.attrValue
			}

			issues, err := check.Run(context.Background(), tc)

			require.NoError(t, err)
			if tt.wantIssue {
				require.Len(t, issues, 1)
				assert.Equal(t, "nlb_skew", issues[0].Type)
			} else {
				assert.Empty(t, issues)
			}
		})
	}
}

func TestStickinessCheck(t *testing.T) {
	check := &stickinessCheck{}

	t.Run("stateful name without stickiness flagged", func(t *testing.T) {
		tc := newContext(newALB("web-prod"))
		tg := withTargetGroup(tc, "session-workers", types.TargetHealthSummary{Total: 2, Healthy: 2})
		tc.TGAttributes[tg.ARN] = map[string]string{attrStickiness: "false"}

		issues, err := check.Run(context.Background(), tc)

		require.NoError(t, err)
		require.Len(t, issues, 1)
		assert.Equal(t, "stateful_session_issues", issues[0].Type)
		assert.Equal(t, "session-workers", issues[0].Details["target_group"])
	})

	t.Run("stateful name with stickiness passes", func(t *testing.T) {
		tc := newContext(newALB("web-prod"))
		tg := withTargetGroup(tc, "cart-backend", types.TargetHealthSummary{Total: 2, Healthy: 2})
		tc.TGAttributes[tg.ARN] = map[string]string{attrStickiness: "true"}

		issues, err := check.Run(context.Background(), tc)

		require.NoError(t, err)
		assert.Empty(t, issues)
	})

	t.Run("stateless name ignored", func(t *testing.T) {
		tc := newContext(newALB("web-prod"))
		withTargetGroup(tc, "web-servers", types.TargetHealthSummary{Total: 2, Healthy: 2})

		issues, err := check.Run(context.Background(), tc)

		require.NoError(t, err)
		assert.Empty(t, issues)
	})

	t.Run("network lb skipped", func(t *testing.T) {
		tc := newContext(newNLB("tcp-prod"))
		withTargetGroup(tc, "session-workers", types.TargetHealthSummary{Total: 2, Healthy: 2})

		issues, err := check.Run(context.Background(), tc)

		require.NoError(t, err)
		assert.Empty(t, issues)
	})
}
