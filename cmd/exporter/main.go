package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CrazyCha/service-quota-monitor/internal/awsapi"
	"github.com/CrazyCha/service-quota-monitor/internal/cache"
	"github.com/CrazyCha/service-quota-monitor/internal/collector"
	"github.com/CrazyCha/service-quota-monitor/internal/config"
	"github.com/CrazyCha/service-quota-monitor/internal/logger"
	"github.com/CrazyCha/service-quota-monitor/internal/orchestrator"
	"github.com/CrazyCha/service-quota-monitor/internal/provider"
	"github.com/CrazyCha/service-quota-monitor/internal/quota"
	"github.com/CrazyCha/service-quota-monitor/internal/scheduler"
	"github.com/CrazyCha/service-quota-monitor/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New("info").Error("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.Info("starting service quota monitor",
		"accounts", len(cfg.Accounts), "services", len(cfg.Services), "workers", cfg.MaxWorkers)

	memCache := cache.New()
	usageCache := cache.New()
	limitCache := cache.NewLimitCache(cfg.Cache.LimitDir, cfg.GetLimitCacheTTL(), log)
	regionCache := cache.NewRegionCache(cfg.Cache.RegionDir, cache.DefaultRegionTTL, log)

	accounts := provider.NewStaticAccounts(cfg.Accounts)
	credentials := provider.NewCredentialResolver(memCache, log)
	regions := provider.NewRegionDiscoverer(
		cfg.CandidateRegions, credentials, &awsapi.EC2Prober{}, regionCache, log)

	agg := collector.New(log)
	orch := orchestrator.New(orchestrator.Options{
		Config:     cfg,
		Accounts:   accounts,
		Configs:    credentials,
		Regions:    regions,
		Discoverer: quota.NewDiscoverer(log),
		LimitCache: limitCache,
		UsageCache: usageCache,
		Collectors: awsapi.NewUsageCollectors(usageCache, log),
		Aggregator: agg,
		Logger:     log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Re-probing active regions is separate from quota cache refresh; the
	// flag only invalidates the region cache before the first cycle.
	if os.Getenv("FORCE_REFRESH_EC2_REGIONS") == "true" {
		refreshed := orch.RefreshRegions(ctx)
		log.Info("forced active region re-discovery", "accounts", refreshed)
	}

	// Initial collection so the first scrape already has data.
	log.Info("running initial collection")
	limits, usage := orch.CollectAll(ctx, false)
	log.Info("initial collection complete", "limits", limits, "usage_applied", usage)

	sched := scheduler.New(orch, cfg.GetLimitInterval(), cfg.GetUsageInterval(), log)
	sched.Start(ctx)

	srv := server.New(agg, sched, orch, log)
	httpServer := &http.Server{
		Addr:    ":" + cfg.GetPort(),
		Handler: srv.Router(),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", httpServer.Addr)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
		}
	}

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}
	log.Info("exporter stopped")
}
