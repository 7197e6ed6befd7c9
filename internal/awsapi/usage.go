// Per-service usage collectors. Each collector makes one pass over a
// service's resources in an (account, region) scope and returns a
// quota-code→usage map. A quota code absent from the map means the usage is
// unknown for this cycle; zero is reported explicitly.
//
// Results are memoized in the shared in-memory cache so the orchestrator's
// per-region loop can re-evaluate global services cheaply.
package awsapi

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/CrazyCha/service-quota-monitor/internal/cache"
	"github.com/CrazyCha/service-quota-monitor/internal/logger"
)

// usageCacheTTL matches the usage refresh cadence.
const usageCacheTTL = time.Hour

// UsageCollector gathers the usage values for one service in one scope.
type UsageCollector interface {
	CollectUsage(ctx context.Context, cfg aws.Config, accountID, region string) (map[string]float64, error)
}

// collectorBase carries the memoization shared by all collectors.
type collectorBase struct {
	service string
	cache   *cache.Cache
	log     *logger.Logger
}

func (b *collectorBase) cacheKey(accountID, region string) string {
	return fmt.Sprintf("%s_usage:%s:%s", b.service, accountID, region)
}

func (b *collectorBase) cached(accountID, region string) (map[string]float64, bool) {
	if v, ok := b.cache.Get(b.cacheKey(accountID, region)); ok {
		if usage, ok := v.(map[string]float64); ok {
			return usage, true
		}
	}
	return nil, false
}

func (b *collectorBase) store(accountID, region string, usage map[string]float64) {
	if len(usage) > 0 {
		b.cache.Set(b.cacheKey(accountID, region), usage, usageCacheTTL)
	}
}

// NewUsageCollectors builds the collector for every supported service code.
func NewUsageCollectors(c *cache.Cache, log *logger.Logger) map[string]UsageCollector {
	return map[string]UsageCollector{
		"ec2":                  NewEC2UsageCollector(c, log),
		"ebs":                  NewEBSUsageCollector(c, log),
		"elasticloadbalancing": NewELBUsageCollector(c, log),
		"eks":                  NewEKSUsageCollector(c, log),
		"elasticache":          NewElastiCacheUsageCollector(c, log),
		"route53":              NewRoute53UsageCollector(c, log),
		"cloudfront":           NewCloudFrontUsageCollector(c, log),
		"sagemaker":            NewSageMakerUsageCollector(c, log),
	}
}
