package types

import (
	"sort"
	"time"
)

// CertStatus captures expiry information for one examined certificate.
type CertStatus struct {
	Domain          string `json:"domain"`
	DaysUntilExpiry int    `json:"days_until_expiry"`
}

// AuditResult is the full audit outcome for one load balancer.
type AuditResult struct {
	Name        string  `json:"name"`
	ARN         string  `json:"arn"`
	Kind        LBKind  `json:"kind"`
	HealthScore float64 `json:"health_score"`
	Issues      []Issue `json:"issues"`

	// Metrics is the usage snapshot the checks saw, keyed by metric name.
	Metrics map[string]float64 `json:"metrics,omitempty"`

	// Certificates maps certificate ARN to its expiry status.
	Certificates map[string]CertStatus `json:"certificates,omitempty"`

	EstimatedMonthlyCost float64   `json:"estimated_monthly_cost"`
	AuditedAt            time.Time `json:"audited_at"`

	// Err is set when the audit of this resource failed partway.
	// Failed results carry no score.
	Err string `json:"error,omitempty"`
}

// Failed reports whether the audit of this resource errored out.
func (r AuditResult) Failed() bool {
	return r.Err != ""
}

// CriticalCount returns the number of unwaived critical issues.
func (r AuditResult) CriticalCount() int {
	n := 0
	for _, iss := range r.Issues {
		if iss.IsCritical() {
			n++
		}
	}
	return n
}

// SortIssues orders issues by severity rank descending, then by type,
// for a stable report layout.
func (r *AuditResult) SortIssues() {
	sort.SliceStable(r.Issues, func(i, j int) bool {
		if r.Issues[i].Severity.Rank() != r.Issues[j].Severity.Rank() {
			return r.Issues[i].Severity.Rank() > r.Issues[j].Severity.Rank()
		}
		return r.Issues[i].Type < r.Issues[j].Type
	})
}

// RunSummary aggregates one audit pass over the whole fleet.
type RunSummary struct {
	RunID            string         `json:"run_id"`
	Region           string         `json:"region"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at"`
	Discovered       int            `json:"discovered"`
	Skipped          int            `json:"skipped"`
	Audited          int            `json:"audited"`
	Failed           int            `json:"failed"`
	IssuesBySeverity map[string]int `json:"issues_by_severity,omitempty"`
	MeanScore        float64        `json:"mean_score"`
	TotalMonthlyCost float64        `json:"total_monthly_cost"`
	Errors           []string       `json:"errors,omitempty"`
}

// Duration returns how long the run took.
func (s RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// RunResult bundles a run summary with its per-resource results,
// sorted by ARN for deterministic output.
type RunResult struct {
	Summary RunSummary    `json:"summary"`
	Results []AuditResult `json:"results"`
}

// SortResults orders results by ARN.
func (r *RunResult) SortResults() {
	sort.Slice(r.Results, func(i, j int) bool {
		return r.Results[i].ARN < r.Results[j].ARN
	})
}

// TotalIssues counts all issues across the run, waived included.
func (r RunResult) TotalIssues() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Issues)
	}
	return n
}

// CriticalCount counts unwaived critical issues across the run.
func (r RunResult) CriticalCount() int {
	n := 0
	for _, res := range r.Results {
		n += res.CriticalCount()
	}
	return n
}
