package emitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/vaaka/types"
)

func activeIssue(issueType string, severity types.Severity) types.Issue {
	return types.Issue{
		Type:     issueType,
		Severity: severity,
		Category: types.CategorySecurity,
	}
}

func TestIssueTracker_FirstRun(t *testing.T) {
	tracker := NewIssueTracker()
	results := []types.AuditResult{
		auditedLB("web-prod", 70, activeIssue("missing_waf", types.SeverityHigh)),
	}

	// First run should return nil (no changes on baseline)
	changes := tracker.ComputeChanges(results)
	assert.Nil(t, changes, "first run should return nil")

	tracker.Update(results)
}

func TestIssueTracker_NoChanges(t *testing.T) {
	tracker := NewIssueTracker()
	results := []types.AuditResult{
		auditedLB("web-prod", 70, activeIssue("missing_waf", types.SeverityHigh)),
	}

	tracker.ComputeChanges(results)
	tracker.Update(results)

	changes := tracker.ComputeChanges(results)
	require.NotNil(t, changes)
	assert.Empty(t, changes, "identical runs should produce no changes")
}

func TestIssueTracker_NewIssue(t *testing.T) {
	tracker := NewIssueTracker()

	initial := []types.AuditResult{auditedLB("web-prod", 100)}
	tracker.ComputeChanges(initial)
	tracker.Update(initial)

	updated := []types.AuditResult{
		auditedLB("web-prod", 80, activeIssue("weak_tls_policy", types.SeverityCritical)),
	}
	changes := tracker.ComputeChanges(updated)

	require.Len(t, changes, 1)
	assert.Equal(t, ChangeNew, changes[0].Type)
	assert.Equal(t, "web-prod", changes[0].LBName)
	assert.Equal(t, "weak_tls_policy", changes[0].IssueType)
	assert.Equal(t, types.SeverityCritical, changes[0].Severity)
}

func TestIssueTracker_ResolvedIssue(t *testing.T) {
	tracker := NewIssueTracker()

	initial := []types.AuditResult{
		auditedLB("web-prod", 80, activeIssue("no_https_redirect", types.SeverityHigh)),
	}
	tracker.ComputeChanges(initial)
	tracker.Update(initial)

	updated := []types.AuditResult{auditedLB("web-prod", 100)}
	changes := tracker.ComputeChanges(updated)

	require.Len(t, changes, 1)
	assert.Equal(t, ChangeResolved, changes[0].Type)
	assert.Equal(t, "no_https_redirect", changes[0].IssueType)
	assert.Equal(t, types.SeverityHigh, changes[0].Severity)
}

func TestIssueTracker_WaivingResolves(t *testing.T) {
	tracker := NewIssueTracker()

	initial := []types.AuditResult{
		auditedLB("web-staging", 80, activeIssue("missing_waf", types.SeverityHigh)),
	}
	tracker.ComputeChanges(initial)
	tracker.Update(initial)

	// Same issue, now waived by policy: no longer active.
	waived := activeIssue("missing_waf", types.SeverityHigh)
	waived.Waived = true
	waived.WaivedBy = "staging-waf"
	updated := []types.AuditResult{auditedLB("web-staging", 80, waived)}

	changes := tracker.ComputeChanges(updated)

	require.Len(t, changes, 1)
	assert.Equal(t, ChangeResolved, changes[0].Type)
	assert.Equal(t, "missing_waf", changes[0].IssueType)
}

func TestIssueTracker_FailedAuditKeepsBaseline(t *testing.T) {
	tracker := NewIssueTracker()

	initial := []types.AuditResult{
		auditedLB("web-prod", 80, activeIssue("missing_waf", types.SeverityHigh)),
	}
	tracker.ComputeChanges(initial)
	tracker.Update(initial)

	// Audit failed: says nothing about the issue either way.
	failed := auditedLB("web-prod", 0)
	failed.Err = "throttled"
	failedRun := []types.AuditResult{failed}

	changes := tracker.ComputeChanges(failedRun)
	require.NotNil(t, changes)
	assert.Empty(t, changes, "failed audit should emit no changes")
	tracker.Update(failedRun)

	// A later clean run resolves against the carried-forward baseline.
	clean := []types.AuditResult{auditedLB("web-prod", 100)}
	changes = tracker.ComputeChanges(clean)

	require.Len(t, changes, 1)
	assert.Equal(t, ChangeResolved, changes[0].Type)
	assert.Equal(t, "missing_waf", changes[0].IssueType)
}

func TestIssueTracker_LBDisappears(t *testing.T) {
	tracker := NewIssueTracker()

	initial := []types.AuditResult{
		auditedLB("web-prod", 90),
		auditedLB("old-service", 60, activeIssue("idle_assets", types.SeverityLow)),
	}
	tracker.ComputeChanges(initial)
	tracker.Update(initial)

	// old-service was deleted; its issues go with it.
	updated := []types.AuditResult{auditedLB("web-prod", 90)}
	changes := tracker.ComputeChanges(updated)

	require.Len(t, changes, 1)
	assert.Equal(t, ChangeResolved, changes[0].Type)
	assert.Equal(t, "old-service", changes[0].LBName)
	assert.Equal(t, "idle_assets", changes[0].IssueType)
}

func TestIssueTracker_NewLB(t *testing.T) {
	tracker := NewIssueTracker()

	initial := []types.AuditResult{auditedLB("web-prod", 90)}
	tracker.ComputeChanges(initial)
	tracker.Update(initial)

	updated := []types.AuditResult{
		auditedLB("web-prod", 90),
		auditedLB("api-prod", 70,
			activeIssue("no_https_redirect", types.SeverityHigh),
			activeIssue("missing_observability", types.SeverityMedium)),
	}
	changes := tracker.ComputeChanges(updated)

	require.Len(t, changes, 2)
	for _, change := range changes {
		assert.Equal(t, ChangeNew, change.Type)
		assert.Equal(t, "api-prod", change.LBName)
	}
}

func TestIssueTracker_MixedChanges(t *testing.T) {
	tracker := NewIssueTracker()

	initial := []types.AuditResult{
		auditedLB("web-prod", 80,
			activeIssue("missing_waf", types.SeverityHigh),
			activeIssue("idle_assets", types.SeverityLow)),
	}
	tracker.ComputeChanges(initial)
	tracker.Update(initial)

	updated := []types.AuditResult{
		auditedLB("web-prod", 75,
			activeIssue("missing_waf", types.SeverityHigh),          // unchanged
			activeIssue("weak_tls_policy", types.SeverityCritical)), // new
		// idle_assets resolved
	}
	changes := tracker.ComputeChanges(updated)

	require.Len(t, changes, 2)

	counts := make(map[ChangeType]int)
	for _, c := range changes {
		counts[c.Type]++
	}
	assert.Equal(t, 1, counts[ChangeNew])
	assert.Equal(t, 1, counts[ChangeResolved])
}
