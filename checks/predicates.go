package checks

import "strings"

// Name heuristics used by the stickiness, maintenance-rule and
// target-type checks. Package-level variables so a deployment can
// swap them for tag-based detection without touching check logic.
var (
	// looksStateful guesses from a target group name whether the
	// workload keeps per-client session state.
	looksStateful = func(tgName string) bool {
		return containsAny(tgName, "session", "stateful", "sticky", "cart")
	}

	// maintenanceBody reports whether a fixed-response body reads
	// like a maintenance page.
	maintenanceBody = func(body string) bool {
		return containsAny(body, "maintenance", "downtime", "be right back")
	}

	// looksServerless guesses from a target group name whether the
	// workload fits a function-style runtime.
	looksServerless = func(tgName string) bool {
		return containsAny(tgName, "api", "handler", "lambda")
	}

	// isBurstableSmall reports whether an EC2 instance type is a
	// small burstable class (t2.micro, t3.small, t4g.nano, ...).
	isBurstableSmall = func(instanceType string) bool {
		if !strings.HasPrefix(instanceType, "t") {
			return false
		}
		return strings.HasSuffix(instanceType, ".nano") ||
			strings.HasSuffix(instanceType, ".micro") ||
			strings.HasSuffix(instanceType, ".small")
	}
)

func containsAny(s string, keywords ...string) bool {
	lower := strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
