package awsapi

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"

	"github.com/CrazyCha/service-quota-monitor/internal/cache"
	"github.com/CrazyCha/service-quota-monitor/internal/logger"
)

// CloudFrontUsageCollector counts distributions, custom cache policies,
// custom response headers policies and origin access identities. CloudFront
// is a global service.
type CloudFrontUsageCollector struct {
	collectorBase
}

func NewCloudFrontUsageCollector(c *cache.Cache, log *logger.Logger) *CloudFrontUsageCollector {
	return &CloudFrontUsageCollector{collectorBase{service: "cloudfront", cache: c, log: log}}
}

func (u *CloudFrontUsageCollector) CollectUsage(ctx context.Context, cfg aws.Config, accountID, region string) (map[string]float64, error) {
	if usage, ok := u.cached(accountID, region); ok {
		return usage, nil
	}

	usage := make(map[string]float64)
	client := cloudfront.NewFromConfig(cfg)

	if count, err := u.distributionCount(ctx, client); err != nil {
		u.log.Warn("ListDistributions failed", "account_id", accountID, "error", err)
	} else {
		usage["L-24B04930"] = float64(count)
	}

	if count, err := u.cachePolicyCount(ctx, client); err != nil {
		u.log.Warn("ListCachePolicies failed", "account_id", accountID, "error", err)
	} else {
		usage["L-7D134442"] = float64(count)
	}

	if count, err := u.responseHeadersPolicyCount(ctx, client); err != nil {
		u.log.Warn("ListResponseHeadersPolicies failed", "account_id", accountID, "error", err)
	} else {
		usage["L-CF0D4FC5"] = float64(count)
	}

	if count, err := u.originAccessIdentityCount(ctx, client); err != nil {
		u.log.Warn("ListCloudFrontOriginAccessIdentities failed", "account_id", accountID, "error", err)
	} else {
		usage["L-08884E5C"] = float64(count)
	}

	u.store(accountID, region, usage)
	return usage, nil
}

func (u *CloudFrontUsageCollector) distributionCount(ctx context.Context, client *cloudfront.Client) (int, error) {
	count := 0
	paginator := cloudfront.NewListDistributionsPaginator(client, &cloudfront.ListDistributionsInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		if output.DistributionList != nil {
			count += len(output.DistributionList.Items)
		}
	}
	return count, nil
}

func (u *CloudFrontUsageCollector) cachePolicyCount(ctx context.Context, client *cloudfront.Client) (int, error) {
	count := 0
	var marker *string
	for {
		output, err := client.ListCachePolicies(ctx, &cloudfront.ListCachePoliciesInput{
			Type:   cftypes.CachePolicyTypeCustom,
			Marker: marker,
		})
		if err != nil {
			return 0, err
		}
		if output.CachePolicyList == nil {
			break
		}
		count += len(output.CachePolicyList.Items)
		if output.CachePolicyList.NextMarker == nil || aws.ToString(output.CachePolicyList.NextMarker) == "" {
			break
		}
		marker = output.CachePolicyList.NextMarker
	}
	return count, nil
}

func (u *CloudFrontUsageCollector) responseHeadersPolicyCount(ctx context.Context, client *cloudfront.Client) (int, error) {
	count := 0
	var marker *string
	for {
		output, err := client.ListResponseHeadersPolicies(ctx, &cloudfront.ListResponseHeadersPoliciesInput{
			Type:   cftypes.ResponseHeadersPolicyTypeCustom,
			Marker: marker,
		})
		if err != nil {
			return 0, err
		}
		if output.ResponseHeadersPolicyList == nil {
			break
		}
		count += len(output.ResponseHeadersPolicyList.Items)
		if output.ResponseHeadersPolicyList.NextMarker == nil || aws.ToString(output.ResponseHeadersPolicyList.NextMarker) == "" {
			break
		}
		marker = output.ResponseHeadersPolicyList.NextMarker
	}
	return count, nil
}

func (u *CloudFrontUsageCollector) originAccessIdentityCount(ctx context.Context, client *cloudfront.Client) (int, error) {
	count := 0
	paginator := cloudfront.NewListCloudFrontOriginAccessIdentitiesPaginator(client, &cloudfront.ListCloudFrontOriginAccessIdentitiesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		if output.CloudFrontOriginAccessIdentityList != nil {
			count += len(output.CloudFrontOriginAccessIdentityList.Items)
		}
	}
	return count, nil
}
