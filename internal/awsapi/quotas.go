package awsapi

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/servicequotas"

	"github.com/CrazyCha/service-quota-monitor/internal/model"
)

// QuotaClient wraps the Service Quotas API for one region and credential set.
type QuotaClient struct {
	client *servicequotas.Client
	region string
}

func NewQuotaClient(cfg aws.Config) *QuotaClient {
	return &QuotaClient{
		client: servicequotas.NewFromConfig(cfg),
		region: cfg.Region,
	}
}

func (c *QuotaClient) Region() string {
	return c.region
}

// GetQuota fetches one quota's current limit. A response without a quota
// payload is an error so callers can record the empty-response reason.
func (c *QuotaClient) GetQuota(ctx context.Context, serviceCode, quotaCode string) (*model.QuotaInfo, error) {
	output, err := c.client.GetServiceQuota(ctx, &servicequotas.GetServiceQuotaInput{
		ServiceCode: &serviceCode,
		QuotaCode:   &quotaCode,
	})
	if err != nil {
		return nil, err
	}
	if output.Quota == nil {
		return nil, fmt.Errorf("get quota %s/%s: empty response", serviceCode, quotaCode)
	}

	q := output.Quota
	info := &model.QuotaInfo{
		QuotaCode:   safeString(q.QuotaCode),
		QuotaName:   safeString(q.QuotaName),
		Value:       safeFloat(q.Value),
		Unit:        safeString(q.Unit),
		Adjustable:  q.Adjustable,
		GlobalQuota: q.GlobalQuota,
	}
	if info.QuotaCode == "" {
		info.QuotaCode = quotaCode
	}
	return info, nil
}

// ListQuotas pages through the full quota catalog of a service.
func (c *QuotaClient) ListQuotas(ctx context.Context, serviceCode string) ([]model.QuotaInfo, error) {
	var quotas []model.QuotaInfo
	paginator := servicequotas.NewListServiceQuotasPaginator(c.client, &servicequotas.ListServiceQuotasInput{
		ServiceCode: &serviceCode,
	})

	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, q := range output.Quotas {
			quotas = append(quotas, model.QuotaInfo{
				QuotaCode:   safeString(q.QuotaCode),
				QuotaName:   safeString(q.QuotaName),
				Value:       safeFloat(q.Value),
				Unit:        safeString(q.Unit),
				Adjustable:  q.Adjustable,
				GlobalQuota: q.GlobalQuota,
			})
		}
	}
	return quotas, nil
}
