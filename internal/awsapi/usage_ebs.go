package awsapi

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/CrazyCha/service-quota-monitor/internal/cache"
	"github.com/CrazyCha/service-quota-monitor/internal/logger"
)

// ebsStorageQuotas maps per-volume-type storage quota codes to volume types.
// The quota unit is TiB; volume sizes come back in GiB.
var ebsStorageQuotas = map[string]string{
	"L-7A658B76": "gp3",
	"L-D18FCD1D": "gp2",
	"L-FD252861": "io1",
	"L-09BD8365": "io2",
	"L-82ACEF56": "st1",
	"L-17AF77E8": "sc1",
}

// EBSUsageCollector sums volume storage per type, provisioned IOPS for
// io1/io2, and the snapshot count.
type EBSUsageCollector struct {
	collectorBase
}

func NewEBSUsageCollector(c *cache.Cache, log *logger.Logger) *EBSUsageCollector {
	return &EBSUsageCollector{collectorBase{service: "ebs", cache: c, log: log}}
}

func (u *EBSUsageCollector) CollectUsage(ctx context.Context, cfg aws.Config, accountID, region string) (map[string]float64, error) {
	if usage, ok := u.cached(accountID, region); ok {
		return usage, nil
	}

	usage := make(map[string]float64)
	client := ec2.NewFromConfig(cfg)

	for quotaCode, volumeType := range ebsStorageQuotas {
		sizeGiB, iops, err := u.volumeTotals(ctx, client, volumeType)
		if err != nil {
			u.log.Warn("DescribeVolumes failed", "volume_type", volumeType, "region", region, "error", err)
			continue
		}
		usage[quotaCode] = float64(sizeGiB) / 1024.0

		switch volumeType {
		case "io1":
			usage["L-B3A130E6"] = float64(iops)
		case "io2":
			usage["L-8D977E7E"] = float64(iops)
		}
	}

	// L-309BACF6: Snapshots per Region
	if count, err := u.snapshotCount(ctx, client); err != nil {
		u.log.Warn("DescribeSnapshots failed", "region", region, "error", err)
	} else {
		usage["L-309BACF6"] = float64(count)
	}

	u.store(accountID, region, usage)
	return usage, nil
}

func (u *EBSUsageCollector) volumeTotals(ctx context.Context, client *ec2.Client, volumeType string) (sizeGiB, iops int64, err error) {
	input := &ec2.DescribeVolumesInput{
		Filters: []ec2types.Filter{
			{
				Name:   aws.String("volume-type"),
				Values: []string{volumeType},
			},
		},
	}

	paginator := ec2.NewDescribeVolumesPaginator(client, input)
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, 0, err
		}
		for _, volume := range output.Volumes {
			if volume.Size != nil {
				sizeGiB += int64(*volume.Size)
			}
			if volume.Iops != nil {
				iops += int64(*volume.Iops)
			}
		}
	}
	return sizeGiB, iops, nil
}

func (u *EBSUsageCollector) snapshotCount(ctx context.Context, client *ec2.Client) (int, error) {
	count := 0
	paginator := ec2.NewDescribeSnapshotsPaginator(client, &ec2.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
	})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		count += len(output.Snapshots)
	}
	return count, nil
}
