// Package discovery lists the load balancer fleet and selects which
// resources enter an audit run.
package discovery

import (
	"strings"
	"time"

	"github.com/yairfalse/vaaka/types"
)

// Exclusion reasons reported for skipped load balancers.
const (
	ReasonExcludedByTag = "excluded_by_tag"
	ReasonTestPrefix    = "test_prefix"
	ReasonTooYoung      = "too_young"
)

// defaultMinAge is how old a load balancer must be before findings mean
// anything. Fresh resources have no metric history to judge.
const defaultMinAge = 14 * 24 * time.Hour

// testPrefixes name load balancers that exist for experiments, not traffic.
var testPrefixes = []string{"test-", "dev-"}

// Policy decides which discovered load balancers get audited.
type Policy struct {
	IncludeTestPrefixes bool
	IncludeYoung        bool
	MinAge              time.Duration
}

// NewPolicy creates a Policy with the default minimum age.
func NewPolicy(includeTestPrefixes, includeYoung bool) Policy {
	return Policy{
		IncludeTestPrefixes: includeTestPrefixes,
		IncludeYoung:        includeYoung,
		MinAge:              defaultMinAge,
	}
}

// Excluded reports whether lb should be skipped and why.
// The owner opt-out tag wins over every override.
func (p Policy) Excluded(lb types.LoadBalancer) (bool, string) {
	if lb.Tags.ExcludeFromAudit {
		return true, ReasonExcludedByTag
	}

	if !p.IncludeTestPrefixes && hasTestPrefix(lb.Name) {
		return true, ReasonTestPrefix
	}

	if !p.IncludeYoung && p.tooYoung(lb) {
		return true, ReasonTooYoung
	}

	return false, ""
}

func (p Policy) tooYoung(lb types.LoadBalancer) bool {
	// Unknown creation time never counts as young.
	if lb.CreatedAt.IsZero() {
		return false
	}

	minAge := p.MinAge
	if minAge <= 0 {
		minAge = defaultMinAge
	}
	return lb.Age() < minAge
}

func hasTestPrefix(name string) bool {
	for _, prefix := range testPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
