package orchestrator

import (
	"context"

	"github.com/yairfalse/vaaka/checks"
	"github.com/yairfalse/vaaka/cost"
	"github.com/yairfalse/vaaka/discovery"
	"github.com/yairfalse/vaaka/internal/emitter"
	"github.com/yairfalse/vaaka/journal"
	"github.com/yairfalse/vaaka/metrics"
	"github.com/yairfalse/vaaka/policy"
	"github.com/yairfalse/vaaka/providers/aws"
	"github.com/yairfalse/vaaka/storage"
	"github.com/yairfalse/vaaka/telemetry"
	"github.com/yairfalse/vaaka/types"
)

// TopologyFetcher is the provider slice the orchestrator drives for
// each load balancer.
type TopologyFetcher interface {
	FetchTopology(ctx context.Context, lb types.LoadBalancer) (*aws.Topology, error)
	CertificateDetail(ctx context.Context, certARN string) (types.CertStatus, error)
}

// Deps wires the orchestrator's collaborators. Discoverer, Fetcher,
// Registry and Estimators are required; everything else is optional
// and degrades to a no-op when absent.
type Deps struct {
	Discoverer *discovery.Discoverer
	Fetcher    TopologyFetcher
	Registry   *checks.Registry
	Aggregator metrics.Aggregator
	Estimators *cost.Registry
	Waivers    *policy.Engine
	Store      *storage.Store
	Journal    *journal.Journal
	Emitters   []emitter.Emitter
	Metrics    *telemetry.AuditMetrics
	Logger     *telemetry.Logger

	Region string

	// Trigger labels what started the run in spans and metrics,
	// "manual" for one-shot CLI runs, "scheduled" for daemon sweeps.
	Trigger string

	// Workers bounds how many load balancers are audited at once.
	// Zero means defaultWorkers.
	Workers int

	// WindowDays is the metric lookback for the usage snapshot.
	WindowDays int
}

// runStartedPayload opens a run in the journal.
type runStartedPayload struct {
	RunID      string `json:"run_id"`
	Region     string `json:"region"`
	Discovered int    `json:"discovered"`
	Skipped    int    `json:"skipped"`
}
