package awsapi

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// usageMetricWindow is how far back to look for AWS/Usage datapoints.
const usageMetricWindow = time.Hour

// GetUsageMetric queries a CloudWatch AWS/Usage ResourceCount metric and
// returns the most recent Maximum datapoint. found is false when CloudWatch
// has no datapoints for the metric, which callers treat as "no data", not as
// zero usage.
func GetUsageMetric(ctx context.Context, cfg aws.Config, dimensions map[string]string) (value float64, found bool, err error) {
	client := cloudwatch.NewFromConfig(cfg)

	endTime := time.Now()
	startTime := endTime.Add(-usageMetricWindow)

	dims := make([]cwtypes.Dimension, 0, len(dimensions))
	for name, val := range dimensions {
		dims = append(dims, cwtypes.Dimension{
			Name:  aws.String(name),
			Value: aws.String(val),
		})
	}

	output, err := client.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String("AWS/Usage"),
		MetricName: aws.String("ResourceCount"),
		Dimensions: dims,
		StartTime:  &startTime,
		EndTime:    &endTime,
		Period:     aws.Int32(300),
		Statistics: []cwtypes.Statistic{cwtypes.StatisticMaximum},
	})
	if err != nil {
		return 0, false, err
	}
	if len(output.Datapoints) == 0 {
		return 0, false, nil
	}

	latest := output.Datapoints[0]
	for _, dp := range output.Datapoints[1:] {
		if dp.Timestamp != nil && latest.Timestamp != nil && dp.Timestamp.After(*latest.Timestamp) {
			latest = dp
		}
	}
	if latest.Maximum == nil {
		return 0, false, nil
	}
	return *latest.Maximum, true, nil
}
