package cost

import (
	"context"
	"fmt"

	"github.com/yairfalse/vaaka/metrics"
	"github.com/yairfalse/vaaka/types"
)

// List-price constants (us-east-1, on-demand).
const (
	hoursPerMonth = 730.0
	daysPerMonth  = 30.0

	// Base covers the hourly charge plus the capacity-unit allowance
	// every running load balancer accrues.
	albBaseMonthly = 22.50
	nlbBaseMonthly = 22.50

	lcuHourlyRate  = 0.008 // USD per LCU-hour
	requestsPerLCU = 25.0  // requests/second covered by one LCU

	// minimalLCUs is the idle-capacity floor: an ALB reserves at least
	// one capacity unit even with zero traffic.
	minimalLCUs = 1.0
)

// NLBEstimator prices network load balancers with a flat monthly base.
// NLCU usage is negligible next to the hourly charge at audit
// granularity, so it is folded into the base.
type NLBEstimator struct{}

// NewNLBEstimator creates the Layer 4 estimator.
func NewNLBEstimator() *NLBEstimator {
	return &NLBEstimator{}
}

// EstimateMonthly returns the flat Layer 4 projection.
func (e *NLBEstimator) EstimateMonthly(_ context.Context, _ types.LoadBalancer) (Estimate, error) {
	return Estimate{
		MonthlyUSD:    nlbBaseMonthly,
		BaseUSD:       nlbBaseMonthly,
		UsageUSD:      0,
		Currency:      "USD",
		BillingDetail: fmt.Sprintf("flat base %.2f USD/month (hourly charge over %.0fh, NLCU allowance folded in)", nlbBaseMonthly, hoursPerMonth),
	}, nil
}

// ALBEstimator prices application load balancers: base plus an LCU
// increment derived from observed request volume.
type ALBEstimator struct {
	agg        metrics.Aggregator
	windowDays int
}

// NewALBEstimator creates the Layer 7 estimator. Request volume comes
// from the aggregator over the given window.
func NewALBEstimator(agg metrics.Aggregator, windowDays int) *ALBEstimator {
	return &ALBEstimator{agg: agg, windowDays: windowDays}
}

// EstimateMonthly projects base + LCU usage from the request rate over
// the metric window, scaled to a month. Zero traffic still pays the
// minimal capacity floor.
func (e *ALBEstimator) EstimateMonthly(ctx context.Context, lb types.LoadBalancer) (Estimate, error) {
	windowRequests := e.agg.Metric(ctx, lb, metrics.MetricRequestCount, metrics.StatSum, e.windowDays)

	monthlyRequests := windowRequests * daysPerMonth / float64(e.windowDays)
	rps := monthlyRequests / (hoursPerMonth * 3600)

	lcus := rps / requestsPerLCU
	if lcus < minimalLCUs {
		lcus = minimalLCUs
	}
	usage := lcus * lcuHourlyRate * hoursPerMonth

	return Estimate{
		MonthlyUSD: albBaseMonthly + usage,
		BaseUSD:    albBaseMonthly,
		UsageUSD:   usage,
		Currency:   "USD",
		BillingDetail: fmt.Sprintf("base %.2f + %.2f LCU x %.3f USD/LCU-h x %.0fh (%.0f requests over %dd window)",
			albBaseMonthly, lcus, lcuHourlyRate, hoursPerMonth, windowRequests, e.windowDays),
	}, nil
}
