package awsapi

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	smtypes "github.com/aws/aws-sdk-go-v2/service/sagemaker/types"

	"github.com/CrazyCha/service-quota-monitor/internal/cache"
	"github.com/CrazyCha/service-quota-monitor/internal/logger"
)

// SageMaker usage keys. Quota codes for sagemaker come from dynamic
// discovery, so counts are stored under stable category keys and routed to
// quotas by name, see RouteSageMakerUsage.
const (
	SageMakerNotebooksKey    = "sagemaker:notebook-instances"
	SageMakerTrainingJobsKey = "sagemaker:training-jobs"
	SageMakerEndpointsKey    = "sagemaker:endpoints"
)

const (
	defaultListMaxPages = 100
	defaultListTimeout  = 30 * time.Second
)

// RouteSageMakerUsage maps a quota name to the usage category key that
// should back it, or ok=false when no collected count applies.
func RouteSageMakerUsage(quotaName string) (string, bool) {
	name := strings.ToLower(quotaName)
	switch {
	case strings.Contains(name, "notebook instance") && strings.Contains(name, "usage"):
		return SageMakerNotebooksKey, true
	case strings.Contains(name, "training job") && strings.Contains(name, "usage"):
		return SageMakerTrainingJobsKey, true
	case strings.Contains(name, "endpoint") && strings.Contains(name, "usage"):
		return SageMakerEndpointsKey, true
	}
	return "", false
}

// SageMakerUsageCollector counts notebook instances in service, training
// jobs in progress and endpoints in service. Listings are capped at
// MaxPages pages and ListTimeout wall time; when a cap is hit the partial
// count is reported rather than discarded.
type SageMakerUsageCollector struct {
	collectorBase
	MaxPages    int
	ListTimeout time.Duration
}

func NewSageMakerUsageCollector(c *cache.Cache, log *logger.Logger) *SageMakerUsageCollector {
	return &SageMakerUsageCollector{
		collectorBase: collectorBase{service: "sagemaker", cache: c, log: log},
		MaxPages:      defaultListMaxPages,
		ListTimeout:   defaultListTimeout,
	}
}

func (u *SageMakerUsageCollector) CollectUsage(ctx context.Context, cfg aws.Config, accountID, region string) (map[string]float64, error) {
	if usage, ok := u.cached(accountID, region); ok {
		return usage, nil
	}

	usage := make(map[string]float64)
	client := sagemaker.NewFromConfig(cfg)

	if count, err := u.notebookCount(ctx, client); err != nil {
		u.log.Warn("ListNotebookInstances failed", "region", region, "error", err)
	} else {
		usage[SageMakerNotebooksKey] = float64(count)
	}

	if count, err := u.trainingJobCount(ctx, client); err != nil {
		u.log.Warn("ListTrainingJobs failed", "region", region, "error", err)
	} else {
		usage[SageMakerTrainingJobsKey] = float64(count)
	}

	if count, err := u.endpointCount(ctx, client); err != nil {
		u.log.Warn("ListEndpoints failed", "region", region, "error", err)
	} else {
		usage[SageMakerEndpointsKey] = float64(count)
	}

	u.store(accountID, region, usage)
	return usage, nil
}

func (u *SageMakerUsageCollector) notebookCount(ctx context.Context, client *sagemaker.Client) (int, error) {
	count := 0
	paginator := sagemaker.NewListNotebookInstancesPaginator(client, &sagemaker.ListNotebookInstancesInput{
		StatusEquals: smtypes.NotebookInstanceStatusInService,
	})
	err := u.pagedCount(ctx, "notebook instances", &count, func(ctx context.Context) (int, bool, error) {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, false, err
		}
		return len(output.NotebookInstances), paginator.HasMorePages(), nil
	})
	return count, err
}

func (u *SageMakerUsageCollector) trainingJobCount(ctx context.Context, client *sagemaker.Client) (int, error) {
	count := 0
	paginator := sagemaker.NewListTrainingJobsPaginator(client, &sagemaker.ListTrainingJobsInput{
		StatusEquals: smtypes.TrainingJobStatusInProgress,
	})
	err := u.pagedCount(ctx, "training jobs", &count, func(ctx context.Context) (int, bool, error) {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, false, err
		}
		return len(output.TrainingJobSummaries), paginator.HasMorePages(), nil
	})
	return count, err
}

func (u *SageMakerUsageCollector) endpointCount(ctx context.Context, client *sagemaker.Client) (int, error) {
	count := 0
	paginator := sagemaker.NewListEndpointsPaginator(client, &sagemaker.ListEndpointsInput{
		StatusEquals: smtypes.EndpointStatusInService,
	})
	err := u.pagedCount(ctx, "endpoints", &count, func(ctx context.Context) (int, bool, error) {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, false, err
		}
		return len(output.Endpoints), paginator.HasMorePages(), nil
	})
	return count, err
}

// pagedCount drives a page fetcher until it is exhausted, erred, or one of
// the caps fires. Counts gathered before a cap fires are kept.
func (u *SageMakerUsageCollector) pagedCount(ctx context.Context, what string, count *int, next func(context.Context) (int, bool, error)) error {
	deadline := time.Now().Add(u.ListTimeout)
	for page := 0; page < u.MaxPages; page++ {
		if time.Now().After(deadline) {
			u.log.Warn("listing timed out, reporting partial count", "what", what, "count", *count)
			return nil
		}
		n, more, err := next(ctx)
		if err != nil {
			return err
		}
		*count += n
		if !more {
			return nil
		}
	}
	u.log.Warn("listing hit page cap, reporting partial count", "what", what, "count", *count)
	return nil
}
