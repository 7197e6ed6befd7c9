package awsapi

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/CrazyCha/service-quota-monitor/internal/cache"
	"github.com/CrazyCha/service-quota-monitor/internal/logger"
)

// ec2VCPUQuotas maps EC2 vCPU quota codes to their AWS/Usage dimensions.
// CloudWatch is the only authoritative usage source for these quotas; the
// instance-count fallback below can only confirm a usage of zero.
var ec2VCPUQuotas = map[string]map[string]string{
	// Running On-Demand Standard (A, C, D, H, I, M, R, T, Z) instances
	"L-1216C47A": {"Type": "Resource", "Resource": "vCPU", "Service": "EC2", "Class": "Standard/OnDemand"},
	// Running On-Demand G and VT instances
	"L-DB2E81BA": {"Type": "Resource", "Resource": "vCPU", "Service": "EC2", "Class": "G/OnDemand"},
	// Running On-Demand P instances
	"L-417A185B": {"Type": "Resource", "Resource": "vCPU", "Service": "EC2", "Class": "P/OnDemand"},
	// All Standard Spot Instance Requests
	"L-34B43A08": {"Type": "Resource", "Resource": "vCPU", "Service": "EC2", "Class": "Standard/Spot"},
	// All G and VT Spot Instance Requests
	"L-3819A6DF": {"Type": "Resource", "Resource": "vCPU", "Service": "EC2", "Class": "G/Spot"},
	// All P5 Spot Instance Requests
	"L-C4BD4855": {"Type": "Resource", "Resource": "vCPU", "Service": "EC2", "Class": "P5/Spot"},
}

// EC2UsageCollector reads vCPU usage from CloudWatch AWS/Usage and counts
// Elastic IPs and VPN connections through the EC2 API.
type EC2UsageCollector struct {
	collectorBase
}

func NewEC2UsageCollector(c *cache.Cache, log *logger.Logger) *EC2UsageCollector {
	return &EC2UsageCollector{collectorBase{service: "ec2", cache: c, log: log}}
}

func (u *EC2UsageCollector) CollectUsage(ctx context.Context, cfg aws.Config, accountID, region string) (map[string]float64, error) {
	if usage, ok := u.cached(accountID, region); ok {
		return usage, nil
	}

	usage := make(map[string]float64)
	client := ec2.NewFromConfig(cfg)

	var missing []string
	for quotaCode, dims := range ec2VCPUQuotas {
		value, found, err := GetUsageMetric(ctx, cfg, dims)
		if err != nil {
			u.log.Warn("CloudWatch usage query failed", "quota_code", quotaCode, "region", region, "error", err)
			continue
		}
		if found {
			usage[quotaCode] = value
		} else {
			missing = append(missing, quotaCode)
		}
	}

	// CloudWatch reports nothing for classes with no running instances. One
	// instance count settles all missing classes: zero instances means zero
	// usage; otherwise the class split is unknown and stays unreported.
	if len(missing) > 0 {
		count, err := u.countRunningInstances(ctx, client)
		if err != nil {
			u.log.Warn("EC2 instance-count fallback failed", "region", region, "error", err)
		} else if count == 0 {
			for _, quotaCode := range missing {
				usage[quotaCode] = 0
			}
		}
	}

	// L-0263D0A3: EC2-VPC Elastic IPs
	if addrs, err := client.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{}); err != nil {
		u.log.Warn("DescribeAddresses failed", "region", region, "error", err)
	} else {
		usage["L-0263D0A3"] = float64(len(addrs.Addresses))
	}

	// L-3E6EC3A3: VPN connections per region
	if vpns, err := client.DescribeVpnConnections(ctx, &ec2.DescribeVpnConnectionsInput{}); err != nil {
		u.log.Warn("DescribeVpnConnections failed", "region", region, "error", err)
	} else {
		usage["L-3E6EC3A3"] = float64(len(vpns.VpnConnections))
	}

	u.store(accountID, region, usage)
	return usage, nil
}

func (u *EC2UsageCollector) countRunningInstances(ctx context.Context, client *ec2.Client) (int, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{
				Name:   aws.String("instance-state-name"),
				Values: []string{"running"},
			},
		},
	}

	count := 0
	paginator := ec2.NewDescribeInstancesPaginator(client, input)
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		for _, reservation := range output.Reservations {
			count += len(reservation.Instances)
		}
	}
	return count, nil
}
