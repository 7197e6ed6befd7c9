package awsapi

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/CrazyCha/service-quota-monitor/internal/cache"
	"github.com/CrazyCha/service-quota-monitor/internal/logger"
)

// ELBUsageCollector counts load balancers by type and target groups.
type ELBUsageCollector struct {
	collectorBase
}

func NewELBUsageCollector(c *cache.Cache, log *logger.Logger) *ELBUsageCollector {
	return &ELBUsageCollector{collectorBase{service: "elasticloadbalancing", cache: c, log: log}}
}

func (u *ELBUsageCollector) CollectUsage(ctx context.Context, cfg aws.Config, accountID, region string) (map[string]float64, error) {
	if usage, ok := u.cached(accountID, region); ok {
		return usage, nil
	}

	usage := make(map[string]float64)
	client := elasticloadbalancingv2.NewFromConfig(cfg)

	albCount, nlbCount, err := u.loadBalancerCounts(ctx, client)
	if err != nil {
		u.log.Warn("DescribeLoadBalancers failed", "region", region, "error", err)
	} else {
		usage["L-53DA6B97"] = float64(albCount)
		usage["L-69A177A2"] = float64(nlbCount)
	}

	targetGroups, err := u.targetGroupCount(ctx, client)
	if err != nil {
		u.log.Warn("DescribeTargetGroups failed", "region", region, "error", err)
	} else {
		usage["L-B22855CB"] = float64(targetGroups)
	}

	u.store(accountID, region, usage)
	return usage, nil
}

func (u *ELBUsageCollector) loadBalancerCounts(ctx context.Context, client *elasticloadbalancingv2.Client) (alb, nlb int, err error) {
	paginator := elasticloadbalancingv2.NewDescribeLoadBalancersPaginator(client, &elasticloadbalancingv2.DescribeLoadBalancersInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, 0, err
		}
		for _, lb := range output.LoadBalancers {
			switch lb.Type {
			case elbtypes.LoadBalancerTypeEnumApplication:
				alb++
			case elbtypes.LoadBalancerTypeEnumNetwork:
				nlb++
			}
		}
	}
	return alb, nlb, nil
}

func (u *ELBUsageCollector) targetGroupCount(ctx context.Context, client *elasticloadbalancingv2.Client) (int, error) {
	count := 0
	paginator := elasticloadbalancingv2.NewDescribeTargetGroupsPaginator(client, &elasticloadbalancingv2.DescribeTargetGroupsInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		count += len(output.TargetGroups)
	}
	return count, nil
}
