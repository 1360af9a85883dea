package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/aws-sdk-go-v2/service/wafv2"

	"github.com/yairfalse/vaaka/types"
)

// Topology is everything attached to one load balancer: listeners,
// target groups with health, and the attribute maps. Fetched once per
// resource and shared read-only by all checks.
type Topology struct {
	Listeners    []types.Listener
	TargetGroups []types.TargetGroup

	// TargetHealth and TGAttributes are keyed by target group ARN.
	TargetHealth map[string]types.TargetHealthSummary
	TGAttributes map[string]map[string]string

	// Attributes holds the load balancer attributes
	// (deletion_protection.enabled, access_logs.s3.enabled, ...).
	Attributes map[string]string
}

// FetchTopology assembles the full topology for one load balancer.
// Any error here fails the audit of this resource only.
func (c *Clients) FetchTopology(ctx context.Context, lb types.LoadBalancer) (*Topology, error) {
	topo := &Topology{
		TargetHealth: make(map[string]types.TargetHealthSummary),
		TGAttributes: make(map[string]map[string]string),
		Attributes:   make(map[string]string),
	}

	listeners, err := c.fetchListeners(ctx, lb.ARN)
	if err != nil {
		return nil, err
	}
	topo.Listeners = listeners

	groups, err := c.fetchTargetGroups(ctx, lb.ARN)
	if err != nil {
		return nil, err
	}
	topo.TargetGroups = groups

	for _, tg := range groups {
		health, err := c.fetchTargetHealth(ctx, tg)
		if err != nil {
			return nil, err
		}
		topo.TargetHealth[tg.ARN] = health

		attrs, err := c.fetchTargetGroupAttributes(ctx, tg.ARN)
		if err != nil {
			return nil, err
		}
		topo.TGAttributes[tg.ARN] = attrs
	}

	attrs, err := c.fetchLoadBalancerAttributes(ctx, lb.ARN)
	if err != nil {
		return nil, err
	}
	topo.Attributes = attrs

	return topo, nil
}

func (c *Clients) fetchListeners(ctx context.Context, lbARN string) ([]types.Listener, error) {
	paginator := elasticloadbalancingv2.NewDescribeListenersPaginator(
		c.ELB,
		&elasticloadbalancingv2.DescribeListenersInput{LoadBalancerArn: aws.String(lbARN)},
	)

	var listeners []types.Listener
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe listeners: %w", err)
		}
		for _, l := range output.Listeners {
			listeners = append(listeners, convertListener(l))
		}
	}

	return listeners, nil
}

func (c *Clients) fetchTargetGroups(ctx context.Context, lbARN string) ([]types.TargetGroup, error) {
	paginator := elasticloadbalancingv2.NewDescribeTargetGroupsPaginator(
		c.ELB,
		&elasticloadbalancingv2.DescribeTargetGroupsInput{LoadBalancerArn: aws.String(lbARN)},
	)

	var groups []types.TargetGroup
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe target groups: %w", err)
		}
		for _, tg := range output.TargetGroups {
			groups = append(groups, convertTargetGroup(tg, lbARN))
		}
	}

	return groups, nil
}

func (c *Clients) fetchTargetHealth(ctx context.Context, tg types.TargetGroup) (types.TargetHealthSummary, error) {
	output, err := c.ELB.DescribeTargetHealth(ctx, &elasticloadbalancingv2.DescribeTargetHealthInput{
		TargetGroupArn: aws.String(tg.ARN),
	})
	if err != nil {
		return types.TargetHealthSummary{}, fmt.Errorf("failed to describe target health: %w", err)
	}

	var summary types.TargetHealthSummary
	for _, desc := range output.TargetHealthDescriptions {
		summary.Total++
		state := elbv2types.TargetHealthStateEnumUnavailable
		if desc.TargetHealth != nil {
			state = desc.TargetHealth.State
		}
		switch state {
		case elbv2types.TargetHealthStateEnumHealthy:
			summary.Healthy++
		case elbv2types.TargetHealthStateEnumUnhealthy:
			summary.Unhealthy++
		}
		if tg.TargetType == "instance" && desc.Target != nil {
			summary.InstanceIDs = append(summary.InstanceIDs, aws.ToString(desc.Target.Id))
		}
	}

	return summary, nil
}

func (c *Clients) fetchLoadBalancerAttributes(ctx context.Context, lbARN string) (map[string]string, error) {
	output, err := c.ELB.DescribeLoadBalancerAttributes(ctx, &elasticloadbalancingv2.DescribeLoadBalancerAttributesInput{
		LoadBalancerArn: aws.String(lbARN),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe load balancer attributes: %w", err)
	}

	attrs := make(map[string]string, len(output.Attributes))
	for _, a := range output.Attributes {
		attrs[aws.ToString(a.Key)] = aws.ToString(a.Value)
	}
	return attrs, nil
}

func (c *Clients) fetchTargetGroupAttributes(ctx context.Context, tgARN string) (map[string]string, error) {
	output, err := c.ELB.DescribeTargetGroupAttributes(ctx, &elasticloadbalancingv2.DescribeTargetGroupAttributesInput{
		TargetGroupArn: aws.String(tgARN),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe target group attributes: %w", err)
	}

	attrs := make(map[string]string, len(output.Attributes))
	for _, a := range output.Attributes {
		attrs[aws.ToString(a.Key)] = aws.ToString(a.Value)
	}
	return attrs, nil
}

// Rule is the simplified view of one listener rule: only the actions
// the checks care about.
type Rule struct {
	Priority          string
	RedirectProtocol  string // set when the rule redirects, e.g. HTTPS
	RedirectPort      string
	FixedResponseCode string
	FixedResponseBody string
}

// ListenerRules fetches all rules for one listener.
func (c *Clients) ListenerRules(ctx context.Context, listenerARN string) ([]Rule, error) {
	var rules []Rule
	var marker *string

	// DescribeRules has no SDK paginator; walk the marker by hand.
	for {
		output, err := c.ELB.DescribeRules(ctx, &elasticloadbalancingv2.DescribeRulesInput{
			ListenerArn: aws.String(listenerARN),
			Marker:      marker,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to describe rules: %w", err)
		}

		for _, r := range output.Rules {
			rules = append(rules, convertRule(r))
		}

		if output.NextMarker == nil {
			return rules, nil
		}
		marker = output.NextMarker
	}
}

// InstanceTypes resolves EC2 instance types for the given instance IDs.
func (c *Clients) InstanceTypes(ctx context.Context, instanceIDs []string) (map[string]string, error) {
	if len(instanceIDs) == 0 {
		return map[string]string{}, nil
	}

	paginator := ec2.NewDescribeInstancesPaginator(c.EC2, &ec2.DescribeInstancesInput{
		InstanceIds: instanceIDs,
	})

	result := make(map[string]string, len(instanceIDs))
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe instances: %w", err)
		}
		for _, res := range output.Reservations {
			for _, inst := range res.Instances {
				result[aws.ToString(inst.InstanceId)] = string(inst.InstanceType)
			}
		}
	}

	return result, nil
}

// WebACLForResource returns the WAF Web ACL ARN associated with the
// resource, or empty string when none is attached.
func (c *Clients) WebACLForResource(ctx context.Context, resourceARN string) (string, error) {
	output, err := c.WAF.GetWebACLForResource(ctx, &wafv2.GetWebACLForResourceInput{
		ResourceArn: aws.String(resourceARN),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get web acl: %w", err)
	}
	if output.WebACL == nil {
		return "", nil
	}
	return aws.ToString(output.WebACL.ARN), nil
}

// CertificateDetail fetches domain and expiry for one ACM certificate.
// Callers must pass ACM ARNs only (prefix arn:aws:acm:).
func (c *Clients) CertificateDetail(ctx context.Context, certARN string) (types.CertStatus, error) {
	output, err := c.ACM.DescribeCertificate(ctx, &acm.DescribeCertificateInput{
		CertificateArn: aws.String(certARN),
	})
	if err != nil {
		return types.CertStatus{}, fmt.Errorf("failed to describe certificate: %w", err)
	}
	if output.Certificate == nil || output.Certificate.NotAfter == nil {
		return types.CertStatus{}, fmt.Errorf("certificate %s has no expiry", certARN)
	}

	days := int(time.Until(*output.Certificate.NotAfter).Hours() / 24)
	return types.CertStatus{
		Domain:          aws.ToString(output.Certificate.DomainName),
		DaysUntilExpiry: days,
	}, nil
}

// SGRule is one ingress permission, flattened for the security check.
type SGRule struct {
	GroupID  string
	Protocol string
	FromPort int32
	ToPort   int32

	// OpenToWorld is true for 0.0.0.0/0 or ::/0 source ranges.
	OpenToWorld bool
}

// SecurityGroupRules fetches ingress permissions for the given groups.
func (c *Clients) SecurityGroupRules(ctx context.Context, groupIDs []string) ([]SGRule, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}

	output, err := c.EC2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		GroupIds: groupIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe security groups: %w", err)
	}

	var rules []SGRule
	for _, group := range output.SecurityGroups {
		for _, perm := range group.IpPermissions {
			rule := SGRule{
				GroupID:  aws.ToString(group.GroupId),
				Protocol: aws.ToString(perm.IpProtocol),
				FromPort: aws.ToInt32(perm.FromPort),
				ToPort:   aws.ToInt32(perm.ToPort),
			}
			for _, r := range perm.IpRanges {
				if aws.ToString(r.CidrIp) == "0.0.0.0/0" {
					rule.OpenToWorld = true
				}
			}
			for _, r := range perm.Ipv6Ranges {
				if aws.ToString(r.CidrIpv6) == "::/0" {
					rule.OpenToWorld = true
				}
			}
			rules = append(rules, rule)
		}
	}

	return rules, nil
}

// convertListener maps an SDK listener to the domain type.
func convertListener(l elbv2types.Listener) types.Listener {
	certs := make([]string, 0, len(l.Certificates))
	for _, cert := range l.Certificates {
		certs = append(certs, aws.ToString(cert.CertificateArn))
	}

	return types.Listener{
		ARN:             aws.ToString(l.ListenerArn),
		LoadBalancerARN: aws.ToString(l.LoadBalancerArn),
		Protocol:        string(l.Protocol),
		Port:            aws.ToInt32(l.Port),
		SSLPolicy:       aws.ToString(l.SslPolicy),
		Certificates:    certs,
	}
}

// convertTargetGroup maps an SDK target group to the domain type.
func convertTargetGroup(tg elbv2types.TargetGroup, lbARN string) types.TargetGroup {
	return types.TargetGroup{
		ARN:                        aws.ToString(tg.TargetGroupArn),
		Name:                       aws.ToString(tg.TargetGroupName),
		LoadBalancerARN:            lbARN,
		TargetType:                 string(tg.TargetType),
		Protocol:                   string(tg.Protocol),
		Port:                       aws.ToInt32(tg.Port),
		HealthCheckIntervalSeconds: aws.ToInt32(tg.HealthCheckIntervalSeconds),
		HealthCheckTimeoutSeconds:  aws.ToInt32(tg.HealthCheckTimeoutSeconds),
	}
}

// convertRule extracts redirect and fixed-response actions from a rule.
func convertRule(r elbv2types.Rule) Rule {
	rule := Rule{Priority: aws.ToString(r.Priority)}

	for _, action := range r.Actions {
		switch action.Type {
		case elbv2types.ActionTypeEnumRedirect:
			if action.RedirectConfig != nil {
				rule.RedirectProtocol = aws.ToString(action.RedirectConfig.Protocol)
				rule.RedirectPort = aws.ToString(action.RedirectConfig.Port)
			}
		case elbv2types.ActionTypeEnumFixedResponse:
			if action.FixedResponseConfig != nil {
				rule.FixedResponseCode = aws.ToString(action.FixedResponseConfig.StatusCode)
				rule.FixedResponseBody = aws.ToString(action.FixedResponseConfig.MessageBody)
			}
		}
	}

	return rule
}
