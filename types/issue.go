package types

import "strings"

// Severity grades how urgently an issue needs attention.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Rank orders severities for sorting, highest first.
// Unknown severities rank below LOW.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ParseSeverity normalizes a user-supplied severity string.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CRITICAL":
		return SeverityCritical, true
	case "HIGH":
		return SeverityHigh, true
	case "MEDIUM":
		return SeverityMedium, true
	case "LOW":
		return SeverityLow, true
	default:
		return "", false
	}
}

// Category groups issues by the concern they affect.
type Category string

const (
	CategorySecurity      Category = "SECURITY"
	CategoryPerformance   Category = "PERFORMANCE"
	CategoryCost          Category = "COST"
	CategoryObservability Category = "OBSERVABILITY"
)

// Issue is one finding raised by a check against one resource.
type Issue struct {
	Severity    Severity       `json:"severity"`
	Category    Category       `json:"category"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	ResourceID  string         `json:"resource_id"`
	Details     map[string]any `json:"details,omitempty"`

	// Waived marks findings suppressed by a waiver policy. Waived
	// issues stay in reports but do not affect health scores.
	Waived   bool   `json:"waived,omitempty"`
	WaivedBy string `json:"waived_by,omitempty"`
}

// IsCritical reports whether the issue is critical and not waived.
func (i Issue) IsCritical() bool {
	return i.Severity == SeverityCritical && !i.Waived
}
