package awsapi

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53domains"

	"github.com/CrazyCha/service-quota-monitor/internal/cache"
	"github.com/CrazyCha/service-quota-monitor/internal/logger"
)

// Route53UsageCollector counts registered domains and hosted zones. Both
// APIs are global so callers invoke this once per account.
type Route53UsageCollector struct {
	collectorBase
}

func NewRoute53UsageCollector(c *cache.Cache, log *logger.Logger) *Route53UsageCollector {
	return &Route53UsageCollector{collectorBase{service: "route53", cache: c, log: log}}
}

func (u *Route53UsageCollector) CollectUsage(ctx context.Context, cfg aws.Config, accountID, region string) (map[string]float64, error) {
	if usage, ok := u.cached(accountID, region); ok {
		return usage, nil
	}

	usage := make(map[string]float64)

	domains, err := u.domainCount(ctx, cfg)
	if err != nil {
		u.log.Warn("ListDomains failed", "account_id", accountID, "error", err)
	} else {
		usage["L-F767CB15"] = float64(domains)
	}

	client := route53.NewFromConfig(cfg)
	output, err := client.GetHostedZoneCount(ctx, &route53.GetHostedZoneCountInput{})
	if err != nil {
		u.log.Warn("GetHostedZoneCount failed", "account_id", accountID, "error", err)
	} else if output.HostedZoneCount != nil {
		usage["L-4EA4796A"] = float64(*output.HostedZoneCount)
	}

	u.store(accountID, region, usage)
	return usage, nil
}

func (u *Route53UsageCollector) domainCount(ctx context.Context, cfg aws.Config) (int, error) {
	// route53domains only exists in us-east-1
	domainsCfg := cfg.Copy()
	domainsCfg.Region = "us-east-1"
	client := route53domains.NewFromConfig(domainsCfg)

	count := 0
	var marker *string
	for {
		output, err := client.ListDomains(ctx, &route53domains.ListDomainsInput{Marker: marker})
		if err != nil {
			return 0, err
		}
		count += len(output.Domains)
		if output.NextPageMarker == nil || aws.ToString(output.NextPageMarker) == "" {
			break
		}
		marker = output.NextPageMarker
	}
	return count, nil
}
