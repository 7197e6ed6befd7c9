package awsapi

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"

	"github.com/CrazyCha/service-quota-monitor/internal/cache"
	"github.com/CrazyCha/service-quota-monitor/internal/logger"
)

// EKSUsageCollector counts clusters, and for per-cluster quotas reports the
// worst case: the highest nodegroup count across clusters and the highest
// node count across nodegroups.
type EKSUsageCollector struct {
	collectorBase
}

func NewEKSUsageCollector(c *cache.Cache, log *logger.Logger) *EKSUsageCollector {
	return &EKSUsageCollector{collectorBase{service: "eks", cache: c, log: log}}
}

func (u *EKSUsageCollector) CollectUsage(ctx context.Context, cfg aws.Config, accountID, region string) (map[string]float64, error) {
	if usage, ok := u.cached(accountID, region); ok {
		return usage, nil
	}

	usage := make(map[string]float64)
	client := eks.NewFromConfig(cfg)

	clusters, err := u.listClusters(ctx, client)
	if err != nil {
		u.log.Warn("ListClusters failed", "region", region, "error", err)
		return usage, err
	}
	usage["L-1194D53C"] = float64(len(clusters))

	maxNodegroups := 0
	maxNodes := 0
	for _, cluster := range clusters {
		nodegroups, err := u.listNodegroups(ctx, client, cluster)
		if err != nil {
			u.log.Warn("ListNodegroups failed", "cluster", cluster, "region", region, "error", err)
			continue
		}
		if len(nodegroups) > maxNodegroups {
			maxNodegroups = len(nodegroups)
		}
		for _, nodegroup := range nodegroups {
			size, err := u.nodegroupSize(ctx, client, cluster, nodegroup)
			if err != nil {
				u.log.Warn("DescribeNodegroup failed", "cluster", cluster, "nodegroup", nodegroup, "error", err)
				continue
			}
			if size > maxNodes {
				maxNodes = size
			}
		}
	}
	usage["L-6D54EA21"] = float64(maxNodegroups)
	usage["L-BD136A63"] = float64(maxNodes)

	u.store(accountID, region, usage)
	return usage, nil
}

func (u *EKSUsageCollector) listClusters(ctx context.Context, client *eks.Client) ([]string, error) {
	var clusters []string
	paginator := eks.NewListClustersPaginator(client, &eks.ListClustersInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, output.Clusters...)
	}
	return clusters, nil
}

func (u *EKSUsageCollector) listNodegroups(ctx context.Context, client *eks.Client, cluster string) ([]string, error) {
	var nodegroups []string
	paginator := eks.NewListNodegroupsPaginator(client, &eks.ListNodegroupsInput{
		ClusterName: aws.String(cluster),
	})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		nodegroups = append(nodegroups, output.Nodegroups...)
	}
	return nodegroups, nil
}

func (u *EKSUsageCollector) nodegroupSize(ctx context.Context, client *eks.Client, cluster, nodegroup string) (int, error) {
	output, err := client.DescribeNodegroup(ctx, &eks.DescribeNodegroupInput{
		ClusterName:   aws.String(cluster),
		NodegroupName: aws.String(nodegroup),
	})
	if err != nil {
		return 0, err
	}
	if output.Nodegroup == nil || output.Nodegroup.ScalingConfig == nil || output.Nodegroup.ScalingConfig.DesiredSize == nil {
		return 0, nil
	}
	return int(*output.Nodegroup.ScalingConfig.DesiredSize), nil
}
