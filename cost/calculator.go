// Package cost estimates monthly spend per load balancer kind.
// Estimates are list-price projections, not Cost Explorer numbers.
package cost

import (
	"context"
	"fmt"
	"sync"

	"github.com/yairfalse/vaaka/metrics"
	"github.com/yairfalse/vaaka/types"
)

// Estimate is one load balancer's monthly cost projection.
type Estimate struct {
	MonthlyUSD    float64 `json:"monthly_usd"`
	BaseUSD       float64 `json:"base_usd"`
	UsageUSD      float64 `json:"usage_usd"`
	Currency      string  `json:"currency"`
	BillingDetail string  `json:"billing_detail"`
}

// Estimator prices one load balancer kind.
type Estimator interface {
	EstimateMonthly(ctx context.Context, lb types.LoadBalancer) (Estimate, error)
}

// Registry dispatches to the estimator registered for a kind.
type Registry struct {
	mu         sync.RWMutex
	estimators map[types.LBKind]Estimator
}

// NewRegistry creates an empty estimator registry.
func NewRegistry() *Registry {
	return &Registry{
		estimators: make(map[types.LBKind]Estimator),
	}
}

// NewDefaultRegistry wires the AWS estimators for both kinds.
func NewDefaultRegistry(agg metrics.Aggregator, windowDays int) *Registry {
	r := NewRegistry()
	r.Register(types.KindApplication, NewALBEstimator(agg, windowDays))
	r.Register(types.KindNetwork, NewNLBEstimator())
	return r
}

// Register installs an estimator for a kind, replacing any previous one.
func (r *Registry) Register(kind types.LBKind, est Estimator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.estimators[kind] = est
}

// EstimateMonthly prices one load balancer via its kind's estimator.
func (r *Registry) EstimateMonthly(ctx context.Context, lb types.LoadBalancer) (Estimate, error) {
	r.mu.RLock()
	est, exists := r.estimators[lb.Kind]
	r.mu.RUnlock()

	if !exists {
		return Estimate{}, fmt.Errorf("no cost estimator for kind: %s", lb.Kind)
	}

	return est.EstimateMonthly(ctx, lb)
}
