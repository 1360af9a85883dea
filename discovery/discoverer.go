package discovery

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/vaaka/telemetry"
	"github.com/yairfalse/vaaka/types"
)

// Source lists load balancers and their tags. FetchTags degrades
// failures to empty tags rather than erroring; only listing can fail.
type Source interface {
	ListLoadBalancers(ctx context.Context) ([]types.LoadBalancer, error)
	FetchTags(ctx context.Context, arns []string) map[string]types.Tags
}

// Discoverer assembles the auditable fleet from a source.
type Discoverer struct {
	source Source
	policy Policy
	logger *telemetry.Logger
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(source Source, policy Policy, logger *telemetry.Logger) *Discoverer {
	return &Discoverer{
		source: source,
		policy: policy,
		logger: logger,
	}
}

// Discover lists the fleet, attaches tags and applies the exclusion policy.
// The returned slice preserves provider listing order; the int is how many
// load balancers the policy excluded. A listing failure is fatal - there is
// nothing to audit without it.
func (d *Discoverer) Discover(ctx context.Context) ([]types.LoadBalancer, int, error) {
	lbs, err := d.source.ListLoadBalancers(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list load balancers: %w", err)
	}

	arns := make([]string, 0, len(lbs))
	for _, lb := range lbs {
		arns = append(arns, lb.ARN)
	}

	tags := d.source.FetchTags(ctx, arns)

	included := make([]types.LoadBalancer, 0, len(lbs))
	skipped := 0

	for _, lb := range lbs {
		lb.Tags = tags[lb.ARN]

		if excluded, reason := d.policy.Excluded(lb); excluded {
			skipped++
			d.logger.LogResourceSkipped(ctx, lb.Name, reason)
			telemetry.RecordResourceExcludedEvent(trace.SpanFromContext(ctx),
				lb.ARN, string(lb.Kind), reason, "excluded from audit")
			continue
		}

		included = append(included, lb)
	}

	d.logger.WithContext(ctx).Info().
		Int("discovered", len(lbs)).
		Int("included", len(included)).
		Int("skipped", skipped).
		Msg("fleet discovery completed")

	return included, skipped, nil
}
