// Package score turns an issue list into a 0-100 health score.
package score

import "github.com/yairfalse/vaaka/types"

// Severity weights. A single critical finding costs a fifth of the
// scale; low findings nudge rather than punish.
const (
	criticalWeight = 20.0
	highWeight     = 10.0
	mediumWeight   = 5.0
	lowWeight      = 2.0
)

// Deduction returns the score penalty for one issue of this severity.
// Exported so reports can explain a score.
func Deduction(sev types.Severity) float64 {
	switch sev {
	case types.SeverityCritical:
		return criticalWeight
	case types.SeverityHigh:
		return highWeight
	case types.SeverityMedium:
		return mediumWeight
	case types.SeverityLow:
		return lowWeight
	default:
		return 0
	}
}

// Score computes the health score for a set of findings. Waived issues
// are skipped. The result is clamped to [0, 100].
func Score(issues []types.Issue) float64 {
	s := 100.0
	for _, iss := range issues {
		if iss.Waived {
			continue
		}
		s -= Deduction(iss.Severity)
	}

	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
