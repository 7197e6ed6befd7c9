package provider

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/CrazyCha/service-quota-monitor/internal/cache"
	"github.com/CrazyCha/service-quota-monitor/internal/config"
	"github.com/CrazyCha/service-quota-monitor/internal/logger"
	"github.com/CrazyCha/service-quota-monitor/internal/retry"
)

// Prober answers whether a region shows signs of use for an account.
type Prober interface {
	HasInstances(ctx context.Context, cfg aws.Config) (bool, error)
}

// RegionProvider yields the regions worth collecting for an account.
type RegionProvider interface {
	ActiveRegions(ctx context.Context, account config.Account, forceRefresh bool) ([]string, error)
}

// RegionDiscoverer probes each candidate region for running instances and
// keeps the answer in a file cache. A region whose probe fails, including
// auth failures for regions the account never opted into, counts as not
// used rather than failing the account.
type RegionDiscoverer struct {
	candidates []string
	configs    ConfigProvider
	prober     Prober
	cache      *cache.RegionCache
	log        *logger.Logger
}

func NewRegionDiscoverer(candidates []string, configs ConfigProvider, prober Prober, rc *cache.RegionCache, log *logger.Logger) *RegionDiscoverer {
	return &RegionDiscoverer{
		candidates: candidates,
		configs:    configs,
		prober:     prober,
		cache:      rc,
		log:        log,
	}
}

func (d *RegionDiscoverer) ActiveRegions(ctx context.Context, account config.Account, forceRefresh bool) ([]string, error) {
	if !forceRefresh {
		if regions, ok := d.cache.Get(account.ID); ok {
			return regions, nil
		}
	}

	active := make([]string, 0, len(d.candidates))
	for _, region := range d.candidates {
		cfg, err := d.configs.Resolve(ctx, account, region)
		if err != nil {
			d.log.Warn("skipping region, credentials unavailable",
				"account_id", account.ID, "region", region, "error", err)
			continue
		}
		used, err := d.prober.HasInstances(ctx, cfg)
		if err != nil {
			reason := retry.Classify(err)
			d.log.Debug("region probe failed, treating as not used",
				"account_id", account.ID, "region", region, "reason", string(reason), "error", err)
			continue
		}
		if used {
			active = append(active, region)
		}
	}

	if err := d.cache.Set(account.ID, active); err != nil {
		d.log.Warn("failed to persist active regions", "account_id", account.ID, "error", err)
	}
	d.log.Info("active region discovery complete",
		"account_id", account.ID, "candidates", len(d.candidates), "active", len(active))
	return active, nil
}
