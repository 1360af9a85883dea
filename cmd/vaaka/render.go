package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/yairfalse/vaaka/types"
)

var severityOrder = []types.Severity{
	types.SeverityCritical,
	types.SeverityHigh,
	types.SeverityMedium,
	types.SeverityLow,
}

// renderRun writes one audit run in the requested format. A non-nil
// drift map adds a score drift column keyed by ARN.
func renderRun(w io.Writer, run *types.RunResult, format string, drift map[string]float64) error {
	switch format {
	case "json":
		return renderJSON(w, run)
	case "csv":
		return renderCSV(w, run, drift)
	default:
		return renderTable(w, run, drift)
	}
}

func renderJSON(w io.Writer, run *types.RunResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}

// renderTable prints the run summary, the fleet table and per-LB
// issue details.
func renderTable(w io.Writer, run *types.RunResult, drift map[string]float64) error {
	s := run.Summary

	_, _ = fmt.Fprintf(w, "Fleet audit %s (%s)\n", s.RunID, s.Region)
	_, _ = fmt.Fprintf(w, "   Discovered: %d   Audited: %d   Failed: %d   Skipped: %d\n",
		s.Discovered, s.Audited, s.Failed, s.Skipped)
	_, _ = fmt.Fprintf(w, "   Mean score: %.1f   Est. monthly cost: $%.2f\n", s.MeanScore, s.TotalMonthlyCost)
	if line := severityLine(s.IssuesBySeverity); line != "" {
		_, _ = fmt.Fprintf(w, "   Issues: %s\n", line)
	}
	_, _ = fmt.Fprintf(w, "\n")

	if len(run.Results) == 0 {
		_, _ = fmt.Fprintln(w, "No load balancers audited.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if drift != nil {
		_, _ = fmt.Fprintln(tw, "NAME\tKIND\tSCORE\tDRIFT\tISSUES\tCRIT\tCOST/MO")
	} else {
		_, _ = fmt.Fprintln(tw, "NAME\tKIND\tSCORE\tISSUES\tCRIT\tCOST/MO")
	}

	for _, r := range run.Results {
		name := truncate(r.Name, 32)
		if r.Failed() {
			if drift != nil {
				_, _ = fmt.Fprintf(tw, "%s\t%s\tfailed\t-\t-\t-\t-\n", name, r.Kind)
			} else {
				_, _ = fmt.Fprintf(tw, "%s\t%s\tfailed\t-\t-\t-\n", name, r.Kind)
			}
			continue
		}

		if drift != nil {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\t%d\t%d\t$%.2f\n",
				name, r.Kind, r.HealthScore, driftCell(drift, r.ARN),
				activeIssueCount(r), r.CriticalCount(), r.EstimatedMonthlyCost)
		} else {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%.1f\t%d\t%d\t$%.2f\n",
				name, r.Kind, r.HealthScore,
				activeIssueCount(r), r.CriticalCount(), r.EstimatedMonthlyCost)
		}
	}
	_ = tw.Flush()

	renderIssueDetails(w, run.Results)
	renderFailures(w, run.Results)

	return nil
}

// renderIssueDetails lists every finding under its load balancer,
// severity first, waived findings annotated.
func renderIssueDetails(w io.Writer, results []types.AuditResult) {
	for _, r := range results {
		if r.Failed() || len(r.Issues) == 0 {
			continue
		}

		_, _ = fmt.Fprintf(w, "\n%s (%s, score %.1f)\n", r.Name, r.Kind, r.HealthScore)

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, iss := range r.Issues {
			desc := iss.Description
			if iss.Waived {
				desc = fmt.Sprintf("%s [waived: %s]", desc, iss.WaivedBy)
			}
			_, _ = fmt.Fprintf(tw, "   %s\t%s\t%s\n", iss.Severity, iss.Type, desc)
		}
		_ = tw.Flush()
	}
}

func renderFailures(w io.Writer, results []types.AuditResult) {
	for _, r := range results {
		if !r.Failed() {
			continue
		}
		_, _ = fmt.Fprintf(w, "\n%s (%s): audit failed: %s\n", r.Name, r.Kind, r.Err)
	}
}

func renderCSV(w io.Writer, run *types.RunResult, drift map[string]float64) error {
	cw := csv.NewWriter(w)

	header := []string{"name", "arn", "kind", "score", "issues", "critical", "monthly_cost_usd"}
	if drift != nil {
		header = append(header, "score_drift")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range run.Results {
		var row []string
		if r.Failed() {
			row = []string{r.Name, r.ARN, string(r.Kind), "", "", "", ""}
		} else {
			row = []string{
				r.Name,
				r.ARN,
				string(r.Kind),
				strconv.FormatFloat(r.HealthScore, 'f', 1, 64),
				strconv.Itoa(activeIssueCount(r)),
				strconv.Itoa(r.CriticalCount()),
				strconv.FormatFloat(r.EstimatedMonthlyCost, 'f', 2, 64),
			}
		}
		if drift != nil {
			row = append(row, driftCSVCell(drift, r))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// severityLine formats issue counts highest severity first, skipping
// empty buckets.
func severityLine(bySeverity map[string]int) string {
	parts := make([]string, 0, len(severityOrder))
	for _, sev := range severityOrder {
		if n := bySeverity[string(sev)]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	return strings.Join(parts, ", ")
}

func activeIssueCount(r types.AuditResult) int {
	n := 0
	for _, iss := range r.Issues {
		if !iss.Waived {
			n++
		}
	}
	return n
}

func driftCell(drift map[string]float64, arn string) string {
	d, ok := drift[arn]
	if !ok {
		return "new"
	}
	return fmt.Sprintf("%+.1f", d)
}

func driftCSVCell(drift map[string]float64, r types.AuditResult) string {
	if r.Failed() {
		return ""
	}
	d, ok := drift[r.ARN]
	if !ok {
		return ""
	}
	return strconv.FormatFloat(d, 'f', 1, 64)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
