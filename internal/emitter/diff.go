package emitter

import (
	"sync"

	"github.com/yairfalse/vaaka/types"
)

// ChangeType classifies an issue change between two runs.
type ChangeType string

const (
	ChangeNew      ChangeType = "new"
	ChangeResolved ChangeType = "resolved"
)

// IssueChange is one issue appearing on or disappearing from a load
// balancer between consecutive runs.
type IssueChange struct {
	Type      ChangeType
	LBName    string
	LBARN     string
	IssueType string
	Severity  types.Severity
}

// lbIssues is the active issue set of one load balancer.
type lbIssues struct {
	Name   string
	Issues map[string]types.Severity
}

// IssueTracker tracks per-LB issue sets between runs and detects
// changes. Waived issues never count as active.
type IssueTracker struct {
	mu          sync.RWMutex
	previous    map[string]lbIssues
	initialized bool
}

// NewIssueTracker creates a new issue tracker.
func NewIssueTracker() *IssueTracker {
	return &IssueTracker{
		previous: make(map[string]lbIssues),
	}
}

// ComputeChanges compares the run's results against the previous
// baseline. Returns nil on the first run (baseline establishment).
// Returns empty slice if nothing changed.
func (d *IssueTracker) ComputeChanges(results []types.AuditResult) []IssueChange {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized {
		return nil
	}

	current, failed := indexIssues(results)
	changes := make([]IssueChange, 0)
	changes = append(changes, d.findResolved(current, failed)...)
	changes = append(changes, d.findNew(current)...)

	return changes
}

// indexIssues maps each audited ARN to its active issue set. Failed
// audits carry no issue information and are reported separately.
func indexIssues(results []types.AuditResult) (map[string]lbIssues, map[string]bool) {
	current := make(map[string]lbIssues)
	failed := make(map[string]bool)
	for _, r := range results {
		if r.Failed() {
			failed[r.ARN] = true
			continue
		}
		current[r.ARN] = lbIssues{Name: r.Name, Issues: activeIssues(r)}
	}
	return current, failed
}

func activeIssues(result types.AuditResult) map[string]types.Severity {
	issues := make(map[string]types.Severity)
	for _, iss := range result.Issues {
		if iss.Waived {
			continue
		}
		issues[iss.Type] = iss.Severity
	}
	return issues
}

// findResolved reports issue types present in the baseline but absent
// now. A failed audit says nothing about its load balancer, so its
// baseline stays untouched; a load balancer missing from the run
// entirely has no issues anymore.
func (d *IssueTracker) findResolved(current map[string]lbIssues, failed map[string]bool) []IssueChange {
	var changes []IssueChange
	for arn, prev := range d.previous {
		if failed[arn] {
			continue
		}
		curr, exists := current[arn]
		for issueType, severity := range prev.Issues {
			if exists {
				if _, still := curr.Issues[issueType]; still {
					continue
				}
			}
			changes = append(changes, IssueChange{
				Type:      ChangeResolved,
				LBName:    prev.Name,
				LBARN:     arn,
				IssueType: issueType,
				Severity:  severity,
			})
		}
	}
	return changes
}

// findNew reports issue types absent from the baseline.
func (d *IssueTracker) findNew(current map[string]lbIssues) []IssueChange {
	var changes []IssueChange
	for arn, curr := range current {
		prev, existed := d.previous[arn]
		for issueType, severity := range curr.Issues {
			if existed {
				if _, had := prev.Issues[issueType]; had {
					continue
				}
			}
			changes = append(changes, IssueChange{
				Type:      ChangeNew,
				LBName:    curr.Name,
				LBARN:     arn,
				IssueType: issueType,
				Severity:  severity,
			})
		}
	}
	return changes
}

// Update stores the run's results as the new baseline. Failed audits
// keep their previous baseline entry so a throttled run does not
// fake a wall of resolved issues.
func (d *IssueTracker) Update(results []types.AuditResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := make(map[string]lbIssues)
	for _, r := range results {
		if r.Failed() {
			if prev, ok := d.previous[r.ARN]; ok {
				next[r.ARN] = prev
			}
			continue
		}
		next[r.ARN] = lbIssues{Name: r.Name, Issues: activeIssues(r)}
	}

	d.previous = next
	d.initialized = true
}
