package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/vaaka/types"
)

// maxTagsPerCall is the DescribeTags ARN limit per request.
const maxTagsPerCall = 20

// ListLoadBalancers returns every Layer 4 and Layer 7 load balancer in
// the region. Gateway load balancers are out of audit scope and skipped.
func (c *Clients) ListLoadBalancers(ctx context.Context) ([]types.LoadBalancer, error) {
	paginator := elasticloadbalancingv2.NewDescribeLoadBalancersPaginator(
		c.ELB,
		&elasticloadbalancingv2.DescribeLoadBalancersInput{},
	)

	var lbs []types.LoadBalancer
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe load balancers: %w", err)
		}

		for _, lb := range output.LoadBalancers {
			converted, ok := convertLoadBalancer(lb)
			if !ok {
				continue
			}
			lbs = append(lbs, converted)
		}
	}

	return lbs, nil
}

// FetchTags resolves tags for the given load balancer ARNs, batched at
// the API limit. A failed batch degrades to empty tags for its ARNs
// rather than failing the whole sweep.
func (c *Clients) FetchTags(ctx context.Context, arns []string) map[string]types.Tags {
	tags := make(map[string]types.Tags, len(arns))

	for start := 0; start < len(arns); start += maxTagsPerCall {
		end := start + maxTagsPerCall
		if end > len(arns) {
			end = len(arns)
		}
		chunk := arns[start:end]

		output, err := c.ELB.DescribeTags(ctx, &elasticloadbalancingv2.DescribeTagsInput{
			ResourceArns: chunk,
		})
		if err != nil {
			log.Warn().Err(err).Int("arns", len(chunk)).Msg("tag fetch failed, continuing without tags")
			for _, arn := range chunk {
				tags[arn] = types.Tags{}
			}
			continue
		}

		for _, desc := range output.TagDescriptions {
			tags[aws.ToString(desc.ResourceArn)] = convertTags(desc.Tags)
		}
	}

	return tags
}

// convertLoadBalancer maps an SDK load balancer to the domain type.
// The second return is false for kinds the auditor does not cover.
func convertLoadBalancer(lb elbv2types.LoadBalancer) (types.LoadBalancer, bool) {
	var kind types.LBKind
	switch lb.Type {
	case elbv2types.LoadBalancerTypeEnumApplication:
		kind = types.KindApplication
	case elbv2types.LoadBalancerTypeEnumNetwork:
		kind = types.KindNetwork
	default:
		return types.LoadBalancer{}, false
	}

	state := ""
	if lb.State != nil {
		state = string(lb.State.Code)
	}

	azs := make([]string, 0, len(lb.AvailabilityZones))
	for _, az := range lb.AvailabilityZones {
		azs = append(azs, aws.ToString(az.ZoneName))
	}

	return types.LoadBalancer{
		ARN:               aws.ToString(lb.LoadBalancerArn),
		Name:              aws.ToString(lb.LoadBalancerName),
		Kind:              kind,
		Scheme:            types.LBScheme(lb.Scheme),
		VPCID:             aws.ToString(lb.VpcId),
		DNSName:           aws.ToString(lb.DNSName),
		State:             state,
		AvailabilityZones: azs,
		SecurityGroups:    lb.SecurityGroups,
		CreatedAt:         aws.ToTime(lb.CreatedTime),
	}, true
}

// convertTags maps ELBv2 tag pairs to structured tags.
func convertTags(tags []elbv2types.Tag) types.Tags {
	m := make(map[string]string, len(tags))
	for _, tag := range tags {
		m[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return types.TagsFromMap(m)
}
