// Package metrics reads CloudWatch usage numbers for audited load
// balancers. Missing data degrades to zero so a flaky metrics backend
// never fails a sweep.
package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/vaaka/providers/aws"
	"github.com/yairfalse/vaaka/types"
)

// CloudWatch metric names the auditor reads.
const (
	MetricRequestCount    = "RequestCount"
	MetricTarget5XX       = "HTTPCode_Target_5XX_Count"
	MetricUnhealthyHosts  = "UnHealthyHostCount"
	MetricActiveFlowCount = "ActiveFlowCount"
)

const (
	namespaceL7 = "AWS/ApplicationELB"
	namespaceL4 = "AWS/NetworkELB"

	// dailyPeriod keeps datapoint counts small over week-scale windows.
	dailyPeriod = 86400
)

// Statistic selects how CloudWatch aggregates datapoints.
type Statistic string

const (
	StatSum     Statistic = "Sum"
	StatAverage Statistic = "Average"
)

// Aggregator hands checks and the cost model their usage numbers.
type Aggregator interface {
	// Metric returns the aggregated value of one metric over the last
	// windowDays days. Errors and missing data yield 0.
	Metric(ctx context.Context, lb types.LoadBalancer, metricName string, stat Statistic, windowDays int) float64

	// Alarms lists metric alarms in the load balancer namespaces.
	Alarms(ctx context.Context) ([]Alarm, error)
}

// Alarm is one CloudWatch metric alarm in a load balancer namespace.
type Alarm struct {
	Name       string
	Namespace  string
	MetricName string
	Dimensions map[string]string
}

// Covers reports whether this alarm watches the given metric on the
// given load balancer.
func (a Alarm) Covers(lb types.LoadBalancer, metricName string) bool {
	if a.MetricName != metricName {
		return false
	}
	if a.Namespace != Namespace(lb.Kind) {
		return false
	}
	return a.Dimensions["LoadBalancer"] == MetricDimension(lb.ARN)
}

// Namespace returns the CloudWatch namespace for a load balancer kind.
func Namespace(kind types.LBKind) string {
	if kind == types.KindNetwork {
		return namespaceL4
	}
	return namespaceL7
}

// RequestMetric returns the traffic metric for a kind. Layer 4 has no
// request count, so active flows stand in as the traffic proxy.
func RequestMetric(kind types.LBKind) string {
	if kind == types.KindNetwork {
		return MetricActiveFlowCount
	}
	return MetricRequestCount
}

// MetricDimension returns the LoadBalancer dimension value: the ARN
// part after the ":loadbalancer/" marker.
func MetricDimension(arn string) string {
	const marker = ":loadbalancer/"
	idx := strings.Index(arn, marker)
	if idx < 0 {
		return arn
	}
	return arn[idx+len(marker):]
}

// CloudWatchAggregator implements Aggregator on the CloudWatch API.
type CloudWatchAggregator struct {
	client aws.CloudWatchAPI
}

// NewCloudWatchAggregator creates an aggregator over the given client.
func NewCloudWatchAggregator(client aws.CloudWatchAPI) *CloudWatchAggregator {
	return &CloudWatchAggregator{client: client}
}

// Metric fetches daily datapoints and folds them per the statistic.
func (c *CloudWatchAggregator) Metric(ctx context.Context, lb types.LoadBalancer, metricName string, stat Statistic, windowDays int) float64 {
	end := time.Now()
	start := end.Add(-time.Duration(windowDays) * 24 * time.Hour)

	output, err := c.client.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  awssdk.String(Namespace(lb.Kind)),
		MetricName: awssdk.String(metricName),
		Dimensions: []cwtypes.Dimension{
			{
				Name:  awssdk.String("LoadBalancer"),
				Value: awssdk.String(MetricDimension(lb.ARN)),
			},
		},
		StartTime:  awssdk.Time(start),
		EndTime:    awssdk.Time(end),
		Period:     awssdk.Int32(dailyPeriod),
		Statistics: []cwtypes.Statistic{cwtypes.Statistic(stat)},
	})
	if err != nil {
		log.Warn().Err(err).
			Str("metric", metricName).
			Str("lb", lb.Name).
			Msg("metric fetch failed, treating as zero")
		return 0
	}

	if len(output.Datapoints) == 0 {
		log.Debug().Str("metric", metricName).Str("lb", lb.Name).Msg("no datapoints")
		return 0
	}

	switch stat {
	case StatAverage:
		var total float64
		for _, dp := range output.Datapoints {
			total += awssdk.ToFloat64(dp.Average)
		}
		return total / float64(len(output.Datapoints))
	default:
		var total float64
		for _, dp := range output.Datapoints {
			total += awssdk.ToFloat64(dp.Sum)
		}
		return total
	}
}

// Alarms pages through DescribeAlarms and keeps only alarms in the two
// load balancer namespaces.
func (c *CloudWatchAggregator) Alarms(ctx context.Context) ([]Alarm, error) {
	paginator := cloudwatch.NewDescribeAlarmsPaginator(c.client, &cloudwatch.DescribeAlarmsInput{})

	var alarms []Alarm
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe alarms: %w", err)
		}

		for _, ma := range output.MetricAlarms {
			ns := awssdk.ToString(ma.Namespace)
			if ns != namespaceL7 && ns != namespaceL4 {
				continue
			}

			dims := make(map[string]string, len(ma.Dimensions))
			for _, d := range ma.Dimensions {
				dims[awssdk.ToString(d.Name)] = awssdk.ToString(d.Value)
			}

			alarms = append(alarms, Alarm{
				Name:       awssdk.ToString(ma.AlarmName),
				Namespace:  ns,
				MetricName: awssdk.ToString(ma.MetricName),
				Dimensions: dims,
			})
		}
	}

	return alarms, nil
}
