package checks

import (
	"context"
	"fmt"
	"strings"

	"github.com/yairfalse/vaaka/telemetry"
	"github.com/yairfalse/vaaka/types"
)

// certExpiryHorizonDays is how close to expiry a certificate may get
// before the audit flags it.
const certExpiryHorizonDays = 30

// deprecatedTLSMarkers identify security policies that still accept
// TLS 1.0/1.1 handshakes.
var deprecatedTLSMarkers = []string{"2015-05", "2016-08", "TLS-1-0", "TLS-1-1"}

// tlsPolicyCheck flags HTTPS listeners negotiating deprecated TLS
// security policies.
type tlsPolicyCheck struct{}

func (c *tlsPolicyCheck) Name() string { return "tls_policy" }

func (c *tlsPolicyCheck) Run(_ context.Context, tc *Context) ([]types.Issue, error) {
	var issues []types.Issue
	for _, l := range tc.Listeners {
		if !l.IsHTTPS() || !isDeprecatedTLSPolicy(l.SSLPolicy) {
			continue
		}
		issues = append(issues, types.Issue{
			Severity:    types.SeverityCritical,
			Category:    types.CategorySecurity,
			Type:        "weak_tls_policy",
			Description: fmt.Sprintf("listener :%d uses deprecated TLS policy %s", l.Port, l.SSLPolicy),
			ResourceID:  tc.LB.ARN,
			Details: map[string]any{
				"listener_arn": l.ARN,
				"ssl_policy":   l.SSLPolicy,
			},
		})
	}
	return issues, nil
}

func isDeprecatedTLSPolicy(policy string) bool {
	for _, marker := range deprecatedTLSMarkers {
		if strings.Contains(policy, marker) {
			return true
		}
	}
	return false
}

// httpsRedirectCheck flags HTTP listeners that never redirect clients
// to HTTPS. When listener rules cannot be fetched the listener is
// skipped: an unknown rule set must not produce a false finding.
type httpsRedirectCheck struct {
	fetcher Fetcher
	logger  *telemetry.Logger
}

func (c *httpsRedirectCheck) Name() string { return "https_redirect" }

func (c *httpsRedirectCheck) Run(ctx context.Context, tc *Context) ([]types.Issue, error) {
	var issues []types.Issue
	for _, l := range tc.Listeners {
		if !l.IsHTTP() {
			continue
		}
		rules, err := c.fetcher.ListenerRules(ctx, l.ARN)
		if err != nil {
			c.logger.WithContext(ctx).Warn().
				Err(err).
				Str("listener_arn", l.ARN).
				Msg("listener rules unavailable, skipping redirect check")
			continue
		}

		redirects := false
		for _, r := range rules {
			if r.RedirectProtocol == "HTTPS" {
				redirects = true
				break
			}
		}
		if redirects {
			continue
		}

		issues = append(issues, types.Issue{
			Severity:    types.SeverityHigh,
			Category:    types.CategorySecurity,
			Type:        "no_https_redirect",
			Description: fmt.Sprintf("HTTP listener :%d does not redirect to HTTPS", l.Port),
			ResourceID:  tc.LB.ARN,
			Details: map[string]any{
				"listener_arn": l.ARN,
				"port":         l.Port,
			},
		})
	}
	return issues, nil
}

// wafAttachmentCheck flags internet-facing application load balancers
// with no WAF web ACL associated.
type wafAttachmentCheck struct {
	fetcher Fetcher
}

func (c *wafAttachmentCheck) Name() string { return "waf_attachment" }

func (c *wafAttachmentCheck) Run(ctx context.Context, tc *Context) ([]types.Issue, error) {
	if !tc.LB.IsApplication() || !tc.LB.IsInternetFacing() {
		return nil, nil
	}

	aclARN, err := c.fetcher.WebACLForResource(ctx, tc.LB.ARN)
	if err != nil {
		return nil, fmt.Errorf("web acl lookup failed: %w", err)
	}
	if aclARN != "" {
		return nil, nil
	}

	return []types.Issue{{
		Severity:    types.SeverityHigh,
		Category:    types.CategorySecurity,
		Type:        "missing_waf",
		Description: "internet-facing application load balancer has no WAF web ACL",
		ResourceID:  tc.LB.ARN,
	}}, nil
}

// certificateExpiryCheck flags ACM certificates on HTTPS listeners
// that expire within the horizon. Certificate statuses arrive
// prefetched in the Context; an ARN missing from the map was either
// not ACM-issued or could not be described, and is skipped.
type certificateExpiryCheck struct{}

func (c *certificateExpiryCheck) Name() string { return "certificate_expiry" }

func (c *certificateExpiryCheck) Run(_ context.Context, tc *Context) ([]types.Issue, error) {
	var issues []types.Issue
	seen := make(map[string]bool)

	for _, l := range tc.Listeners {
		if !l.IsHTTPS() {
			continue
		}
		for _, certARN := range l.Certificates {
			if seen[certARN] {
				continue
			}
			seen[certARN] = true

			status, ok := tc.Certificates[certARN]
			if !ok || status.DaysUntilExpiry > certExpiryHorizonDays {
				continue
			}
			issues = append(issues, types.Issue{
				Severity:    types.SeverityCritical,
				Category:    types.CategorySecurity,
				Type:        "ssl_expiration_risk",
				Description: fmt.Sprintf("certificate for %s expires in %d days", status.Domain, status.DaysUntilExpiry),
				ResourceID:  tc.LB.ARN,
				Details: map[string]any{
					"certificate_arn":   certARN,
					"domain":            status.Domain,
					"days_until_expiry": status.DaysUntilExpiry,
				},
			})
		}
	}
	return issues, nil
}

// attrDeletionProtection is the load balancer attribute key for
// deletion protection. An absent attribute counts as disabled.
const attrDeletionProtection = "deletion_protection.enabled"

// deletionProtectionCheck flags production load balancers that can be
// deleted with a single API call.
type deletionProtectionCheck struct{}

func (c *deletionProtectionCheck) Name() string { return "deletion_protection" }

func (c *deletionProtectionCheck) Run(_ context.Context, tc *Context) ([]types.Issue, error) {
	if !tc.LB.IsProduction() {
		return nil, nil
	}
	if tc.LBAttributes[attrDeletionProtection] == "true" {
		return nil, nil
	}

	return []types.Issue{{
		Severity:    types.SeverityHigh,
		Category:    types.CategorySecurity,
		Type:        "no_deletion_protection",
		Description: "production load balancer has deletion protection disabled",
		ResourceID:  tc.LB.ARN,
	}}, nil
}

// securityGroupsCheck flags application load balancer security groups
// that admit the whole internet on anything but the web ports.
type securityGroupsCheck struct {
	fetcher Fetcher
}

func (c *securityGroupsCheck) Name() string { return "security_groups" }

func (c *securityGroupsCheck) Run(ctx context.Context, tc *Context) ([]types.Issue, error) {
	if !tc.LB.IsApplication() || len(tc.LB.SecurityGroups) == 0 {
		return nil, nil
	}

	rules, err := c.fetcher.SecurityGroupRules(ctx, tc.LB.SecurityGroups)
	if err != nil {
		return nil, fmt.Errorf("security group lookup failed: %w", err)
	}

	var issues []types.Issue
	for _, rule := range rules {
		if !rule.OpenToWorld || isWebPortOnly(rule.FromPort, rule.ToPort) {
			continue
		}
		issues = append(issues, types.Issue{
			Severity:    types.SeverityMedium,
			Category:    types.CategorySecurity,
			Type:        "overly_broad_ingress",
			Description: fmt.Sprintf("security group %s allows 0.0.0.0/0 on %s", rule.GroupID, portRange(rule.FromPort, rule.ToPort)),
			ResourceID:  tc.LB.ARN,
			Details: map[string]any{
				"group_id":  rule.GroupID,
				"protocol":  rule.Protocol,
				"from_port": rule.FromPort,
				"to_port":   rule.ToPort,
			},
		})
	}
	return issues, nil
}

// isWebPortOnly reports whether a port range covers exactly one of
// the standard web ports.
func isWebPortOnly(from, to int32) bool {
	if from != to {
		return false
	}
	return from == 80 || from == 443
}

func portRange(from, to int32) string {
	if from == to {
		return fmt.Sprintf("port %d", from)
	}
	return fmt.Sprintf("ports %d-%d", from, to)
}
