// Package orchestrator drives collection cycles: it fans limit and usage
// work out across accounts, regions and services on a bounded worker pool,
// funnels results into the aggregator, and buffers usage snapshots so they
// merge only after every worker has finished.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"golang.org/x/sync/errgroup"

	"github.com/CrazyCha/service-quota-monitor/internal/awsapi"
	"github.com/CrazyCha/service-quota-monitor/internal/cache"
	"github.com/CrazyCha/service-quota-monitor/internal/collector"
	"github.com/CrazyCha/service-quota-monitor/internal/config"
	"github.com/CrazyCha/service-quota-monitor/internal/logger"
	"github.com/CrazyCha/service-quota-monitor/internal/model"
	"github.com/CrazyCha/service-quota-monitor/internal/provider"
	"github.com/CrazyCha/service-quota-monitor/internal/quota"
	"github.com/CrazyCha/service-quota-monitor/internal/retry"
)

// Pause before each remote quota fetch so bursts across workers stay under
// the Service Quotas rate limit.
const fetchPacing = 100 * time.Millisecond

// globalServices are collected once per account in the default region
// instead of per active region.
var globalServices = map[string]bool{
	"route53":    true,
	"cloudfront": true,
}

// QuotaFetcher is the per-region Service Quotas surface the orchestrator
// needs; *awsapi.QuotaClient satisfies it.
type QuotaFetcher interface {
	GetQuota(ctx context.Context, serviceCode, quotaCode string) (*model.QuotaInfo, error)
	ListQuotas(ctx context.Context, serviceCode string) ([]model.QuotaInfo, error)
}

// Orchestrator wires the providers, caches and collectors into runnable
// limit and usage cycles.
type Orchestrator struct {
	cfg        *config.Config
	accounts   provider.AccountProvider
	configs    provider.ConfigProvider
	regions    provider.RegionProvider
	discoverer *quota.Discoverer
	limitCache *cache.LimitCache
	usageCache *cache.Cache
	usage      map[string]awsapi.UsageCollector
	agg        *collector.Aggregator
	log        *logger.Logger

	// seams for tests
	newFetcher func(aws.Config) QuotaFetcher
	newBackoff func() *retry.Backoff
	sleep      func(time.Duration)
}

type Options struct {
	Config     *config.Config
	Accounts   provider.AccountProvider
	Configs    provider.ConfigProvider
	Regions    provider.RegionProvider
	Discoverer *quota.Discoverer
	LimitCache *cache.LimitCache
	UsageCache *cache.Cache
	Collectors map[string]awsapi.UsageCollector
	Aggregator *collector.Aggregator
	Logger     *logger.Logger
	NewFetcher func(aws.Config) QuotaFetcher
	NewBackoff func() *retry.Backoff
	Sleep      func(time.Duration)
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		cfg:        opts.Config,
		accounts:   opts.Accounts,
		configs:    opts.Configs,
		regions:    opts.Regions,
		discoverer: opts.Discoverer,
		limitCache: opts.LimitCache,
		usageCache: opts.UsageCache,
		usage:      opts.Collectors,
		agg:        opts.Aggregator,
		log:        opts.Logger,
		newFetcher: opts.NewFetcher,
		newBackoff: opts.NewBackoff,
		sleep:      opts.Sleep,
	}
	if o.newFetcher == nil {
		o.newFetcher = func(cfg aws.Config) QuotaFetcher { return awsapi.NewQuotaClient(cfg) }
	}
	if o.newBackoff == nil {
		o.newBackoff = retry.New
	}
	if o.sleep == nil {
		o.sleep = time.Sleep
	}
	return o
}

// scope is one (account, region, service) unit of work.
type scope struct {
	account config.Account
	region  string
	service string
	source  config.QuotaSource
}

// accountScopes expands one account's configuration into work units.
// Global services always get exactly one scope in the default region;
// regional services get one per active region, which may be none.
func (o *Orchestrator) accountScopes(ctx context.Context, account config.Account) []scope {
	active, err := o.regions.ActiveRegions(ctx, account, false)
	if err != nil {
		o.log.Warn("region discovery failed, regional services skipped",
			"account_id", account.ID, "error", err)
		active = nil
	}
	var out []scope
	for service, source := range o.cfg.Services {
		if globalServices[service] {
			out = append(out, scope{account: account, region: model.DefaultRegion, service: service, source: source})
			continue
		}
		for _, region := range active {
			out = append(out, scope{account: account, region: region, service: service, source: source})
		}
	}
	return out
}

// RefreshRegions re-probes every account's active regions, bypassing the
// region cache. Collection cycles always read the cache; this is the only
// path that forces a re-probe.
func (o *Orchestrator) RefreshRegions(ctx context.Context) int {
	refreshed := 0
	for _, account := range o.accounts.Accounts() {
		if _, err := o.regions.ActiveRegions(ctx, account, true); err != nil {
			o.log.Warn("region refresh failed", "account_id", account.ID, "error", err)
			continue
		}
		refreshed++
	}
	return refreshed
}

// CollectLimits runs one limit cycle and reports how many results were
// recorded. Accounts run concurrently on the worker pool; within an
// account the regions and services are walked sequentially so one
// account's API endpoints never see parallel bursts. With forceRefresh
// the limit cache is bypassed for reads.
func (o *Orchestrator) CollectLimits(ctx context.Context, forceRefresh bool) int {
	start := time.Now()
	accounts := o.accounts.Accounts()

	var mu sync.Mutex
	total := 0

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxWorkers)
	for _, account := range accounts {
		account := account
		g.Go(func() error {
			count := 0
			for _, sc := range o.accountScopes(ctx, account) {
				results := o.collectScopeLimits(ctx, sc, forceRefresh)
				for _, r := range results {
					o.agg.AddResult(r)
				}
				count += len(results)
			}
			mu.Lock()
			total += count
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	o.agg.ObserveCycleDuration(time.Since(start).Seconds())
	summary := o.agg.Summary()
	o.log.Info("limit cycle complete",
		"accounts", len(accounts), "results", total,
		"success", summary.Success, "skipped", summary.Skipped, "failed", summary.Failed,
		"elapsed", time.Since(start).String())
	return total
}

// CollectUsage runs one usage cycle. Snapshots are buffered while workers
// run and merged into the aggregator only after all of them finish, so a
// partially failed cycle never publishes a half-updated scope.
func (o *Orchestrator) CollectUsage(ctx context.Context, forceRefresh bool) int {
	start := time.Now()
	if forceRefresh {
		o.usageCache.Clear()
	}
	accounts := o.accounts.Accounts()

	var mu sync.Mutex
	var snapshots []model.UsageSnapshot

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxWorkers)
	for _, account := range accounts {
		account := account
		g.Go(func() error {
			for _, sc := range o.accountScopes(ctx, account) {
				snap, err := o.collectScopeUsage(ctx, sc)
				if err != nil {
					o.log.Warn("usage collection failed",
						"account_id", sc.account.ID, "region", sc.region, "service", sc.service, "error", err)
					continue
				}
				if snap == nil {
					continue
				}
				mu.Lock()
				snapshots = append(snapshots, *snap)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	applied := 0
	for _, snap := range snapshots {
		applied += o.agg.SetUsageData(snap)
	}

	o.agg.ObserveCycleDuration(time.Since(start).Seconds())
	o.log.Info("usage cycle complete",
		"accounts", len(accounts), "snapshots", len(snapshots), "applied", applied,
		"elapsed", time.Since(start).String())
	return applied
}

// CollectAll runs a limit cycle followed by a usage cycle.
func (o *Orchestrator) CollectAll(ctx context.Context, forceRefresh bool) (limits, usage int) {
	limits = o.CollectLimits(ctx, forceRefresh)
	usage = o.CollectUsage(ctx, forceRefresh)
	return limits, usage
}

func (o *Orchestrator) collectScopeLimits(ctx context.Context, sc scope, forceRefresh bool) []model.QuotaResult {
	cfg, err := o.configs.Resolve(ctx, sc.account, sc.region)
	if err != nil {
		return o.failAll(sc, model.ReasonPermissionDenied, err)
	}

	fetcher := o.newFetcher(cfg)
	descriptors := o.resolveDescriptors(ctx, fetcher, sc)

	if quota.HasFixedLimits(sc.service) {
		return o.fixedLimits(sc, descriptors)
	}

	results := make([]model.QuotaResult, 0, len(descriptors))
	for _, d := range descriptors {
		if !forceRefresh {
			if info := o.limitCache.Get(sc.account.ID, sc.region, sc.service, d.QuotaCode); info != nil {
				results = append(results, model.NewSuccess(sc.service, sc.account.ID, sc.region, info))
				continue
			}
		}
		results = append(results, o.fetchLimit(ctx, fetcher, sc, d))
	}
	return results
}

// fetchLimit pulls one quota from the API with pacing and throttle retries,
// then writes the value through to the file cache.
func (o *Orchestrator) fetchLimit(ctx context.Context, fetcher QuotaFetcher, sc scope, d model.QuotaDescriptor) model.QuotaResult {
	o.sleep(fetchPacing)

	var info *model.QuotaInfo
	backoff := o.newBackoff()
	backoff.Sleep = o.sleep
	err := backoff.Do(ctx, func() error {
		var ferr error
		info, ferr = fetcher.GetQuota(ctx, sc.service, d.QuotaCode)
		return ferr
	})
	if err != nil {
		reason := retry.Classify(err)
		return model.NewFailed(sc.service, d.QuotaCode, d.QuotaName, sc.account.ID, sc.region, reason, err.Error())
	}
	if info == nil {
		return model.NewFailed(sc.service, d.QuotaCode, d.QuotaName, sc.account.ID, sc.region,
			model.ReasonEmptyResponse, "empty response")
	}
	if info.QuotaName == "" {
		info.QuotaName = d.QuotaName
	}
	if cerr := o.limitCache.Set(sc.account.ID, sc.region, sc.service, d.QuotaCode, info); cerr != nil {
		o.log.Warn("limit cache write failed",
			"account_id", sc.account.ID, "region", sc.region, "service", sc.service, "error", cerr)
	}
	return model.NewSuccess(sc.service, sc.account.ID, sc.region, info)
}

// fixedLimits serves quotas for services whose limits are pinned locally.
// Configured quotas missing from the table are skipped, not failed: there
// is no remote source that could ever resolve them.
func (o *Orchestrator) fixedLimits(sc scope, descriptors []model.QuotaDescriptor) []model.QuotaResult {
	results := make([]model.QuotaResult, 0, len(descriptors))
	for _, d := range descriptors {
		value, ok := quota.FixedLimit(sc.service, d.QuotaCode)
		if !ok {
			results = append(results, model.NewSkipped(
				sc.service, d.QuotaCode, d.QuotaName, sc.account.ID, sc.region, model.SkipNoRemoteLimit))
			continue
		}
		results = append(results, model.NewSuccess(sc.service, sc.account.ID, sc.region, &model.QuotaInfo{
			QuotaCode:   d.QuotaCode,
			QuotaName:   d.QuotaName,
			Value:       value,
			GlobalQuota: true,
		}))
	}
	return results
}

func (o *Orchestrator) resolveDescriptors(ctx context.Context, fetcher QuotaFetcher, sc scope) []model.QuotaDescriptor {
	if sc.source.IsDiscovery() {
		return o.discoverer.Discover(ctx, fetcher, sc.service, sc.source.Discovery)
	}
	return sc.source.Static
}

// failAll marks every quota the scope would have fetched as failed. A
// discovery source has no descriptors without credentials, so it records a
// single failure under a placeholder code instead of vanishing from the
// counters.
func (o *Orchestrator) failAll(sc scope, reason model.FailureReason, err error) []model.QuotaResult {
	msg := fmt.Sprintf("credentials unavailable: %v", err)
	if sc.source.IsDiscovery() {
		return []model.QuotaResult{model.NewFailed(
			sc.service, "discovery", "quota discovery", sc.account.ID, sc.region, reason, msg)}
	}
	results := make([]model.QuotaResult, 0, len(sc.source.Static))
	for _, d := range sc.source.Static {
		results = append(results, model.NewFailed(
			sc.service, d.QuotaCode, d.QuotaName, sc.account.ID, sc.region, reason, msg))
	}
	return results
}

func (o *Orchestrator) collectScopeUsage(ctx context.Context, sc scope) (*model.UsageSnapshot, error) {
	uc, ok := o.usage[sc.service]
	if !ok {
		return nil, nil
	}
	cfg, err := o.configs.Resolve(ctx, sc.account, sc.region)
	if err != nil {
		return nil, err
	}
	raw, err := uc.CollectUsage(ctx, cfg, sc.account.ID, sc.region)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	usage := raw
	if sc.service == "sagemaker" {
		usage = o.routeSageMakerUsage(ctx, cfg, sc, raw)
	}
	if len(usage) == 0 {
		return nil, nil
	}
	return &model.UsageSnapshot{
		AccountID: sc.account.ID,
		Region:    sc.region,
		Service:   sc.service,
		Usage:     usage,
	}, nil
}

// routeSageMakerUsage translates category-keyed counts into quota codes by
// matching against the discovered quota names for this scope.
func (o *Orchestrator) routeSageMakerUsage(ctx context.Context, cfg aws.Config, sc scope, raw map[string]float64) map[string]float64 {
	descriptors := o.resolveDescriptors(ctx, o.newFetcher(cfg), sc)
	routed := make(map[string]float64, len(descriptors))
	for _, d := range descriptors {
		key, ok := awsapi.RouteSageMakerUsage(d.QuotaName)
		if !ok {
			continue
		}
		if value, ok := raw[key]; ok {
			routed[d.QuotaCode] = value
		}
	}
	return routed
}
