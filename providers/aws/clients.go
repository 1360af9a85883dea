// Package aws fetches load balancer inventory, topology and telemetry
// from AWS for the audit engine.
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/wafv2"
)

// Clients bundles the AWS service clients the auditor talks to.
// Fields are interfaces for testability.
type Clients struct {
	ELB        ELBV2API
	CloudWatch CloudWatchAPI
	ACM        ACMAPI
	WAF        WAFV2API
	EC2        EC2API

	Region string
}

// NewClients builds real SDK clients for the given region.
func NewClients(ctx context.Context, region string) (*Clients, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Clients{
		ELB:        elasticloadbalancingv2.NewFromConfig(awsCfg),
		CloudWatch: cloudwatch.NewFromConfig(awsCfg),
		ACM:        acm.NewFromConfig(awsCfg),
		WAF:        wafv2.NewFromConfig(awsCfg),
		EC2:        ec2.NewFromConfig(awsCfg),
		Region:     region,
	}, nil
}
