package awsapi

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// EC2Prober answers whether an account holds EC2 instances in a region. The
// active-region discoverer uses it as its cheap per-region probe.
type EC2Prober struct{}

// HasInstances issues one bounded DescribeInstances call and reports whether
// at least one instance exists. Any error means the region is not usable for
// this account (disabled, opt-in required, bad credentials) and is returned
// for the caller to classify.
func (EC2Prober) HasInstances(ctx context.Context, cfg aws.Config) (bool, error) {
	client := ec2.NewFromConfig(cfg)
	output, err := client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		MaxResults: aws.Int32(5),
	})
	if err != nil {
		return false, err
	}
	for _, reservation := range output.Reservations {
		if len(reservation.Instances) > 0 {
			return true, nil
		}
	}
	return false, nil
}
