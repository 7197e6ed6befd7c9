package awsapi

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"

	"github.com/CrazyCha/service-quota-monitor/internal/cache"
	"github.com/CrazyCha/service-quota-monitor/internal/logger"
)

// ElastiCacheUsageCollector counts cache nodes overall, the largest cluster,
// memcached nodes, and serverless caches.
type ElastiCacheUsageCollector struct {
	collectorBase
}

func NewElastiCacheUsageCollector(c *cache.Cache, log *logger.Logger) *ElastiCacheUsageCollector {
	return &ElastiCacheUsageCollector{collectorBase{service: "elasticache", cache: c, log: log}}
}

func (u *ElastiCacheUsageCollector) CollectUsage(ctx context.Context, cfg aws.Config, accountID, region string) (map[string]float64, error) {
	if usage, ok := u.cached(accountID, region); ok {
		return usage, nil
	}

	usage := make(map[string]float64)
	client := elasticache.NewFromConfig(cfg)

	totalNodes := 0
	maxClusterNodes := 0
	memcachedNodes := 0
	paginator := elasticache.NewDescribeCacheClustersPaginator(client, &elasticache.DescribeCacheClustersInput{})
	clustersOK := true
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			u.log.Warn("DescribeCacheClusters failed", "region", region, "error", err)
			clustersOK = false
			break
		}
		for _, cluster := range output.CacheClusters {
			nodes := 0
			if cluster.NumCacheNodes != nil {
				nodes = int(*cluster.NumCacheNodes)
			}
			totalNodes += nodes
			if nodes > maxClusterNodes {
				maxClusterNodes = nodes
			}
			if cluster.Engine != nil && strings.EqualFold(*cluster.Engine, "memcached") {
				memcachedNodes += nodes
			}
		}
	}
	if clustersOK {
		usage["L-DFE45DF3"] = float64(totalNodes)
		usage["L-AF354865"] = float64(maxClusterNodes)
		usage["L-8C334AD1"] = float64(memcachedNodes)
	}

	serverless, err := u.serverlessCount(ctx, client)
	if err != nil {
		u.log.Warn("DescribeServerlessCaches failed", "region", region, "error", err)
	} else {
		usage["L-BBCDAECC"] = float64(serverless)
	}

	u.store(accountID, region, usage)
	return usage, nil
}

func (u *ElastiCacheUsageCollector) serverlessCount(ctx context.Context, client *elasticache.Client) (int, error) {
	count := 0
	paginator := elasticache.NewDescribeServerlessCachesPaginator(client, &elasticache.DescribeServerlessCachesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		count += len(output.ServerlessCaches)
	}
	return count, nil
}
