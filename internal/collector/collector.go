// Package collector aggregates quota results into prometheus metrics and a
// queryable summary. One Aggregator instance is shared by the scheduler
// loops and the HTTP handlers; it owns its own registry so tests can run
// several side by side.
package collector

import (
	"math"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/CrazyCha/service-quota-monitor/internal/logger"
	"github.com/CrazyCha/service-quota-monitor/internal/model"
)

const providerLabel = "aws"

var quotaLabels = []string{"provider", "account_id", "region", "service", "quota_name", "quota_code"}

type seriesKey struct {
	AccountID string
	Region    string
	Service   string
	QuotaCode string
}

type series struct {
	QuotaName  string
	Status     model.Status
	SkipReason string
	Limit      float64
	HasLimit   bool
	Usage      float64
	HasUsage   bool
}

// Aggregator stores the latest result per quota series and mirrors it into
// prometheus gauges. Writes are idempotent: a newer result for the same
// series overwrites the older one.
type Aggregator struct {
	mu      sync.Mutex
	series  map[seriesKey]*series
	pending map[seriesKey]float64

	registry       *prometheus.Registry
	limitGauge     *prometheus.GaugeVec
	usageGauge     *prometheus.GaugeVec
	percentGauge   *prometheus.GaugeVec
	scrapeErrors   *prometheus.CounterVec
	scrapeSkipped  *prometheus.CounterVec
	scrapeDuration prometheus.Histogram

	log *logger.Logger
}

func New(log *logger.Logger) *Aggregator {
	a := &Aggregator{
		series:   make(map[seriesKey]*series),
		pending:  make(map[seriesKey]float64),
		registry: prometheus.NewRegistry(),
		limitGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cloud_service_quota_limit",
			Help: "Quota limit value as reported by the provider.",
		}, quotaLabels),
		usageGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cloud_service_quota_usage",
			Help: "Current usage measured against the quota.",
		}, quotaLabels),
		percentGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cloud_quota_usage_percent",
			Help: "Usage as a percentage of the limit, NaN when either side is unknown.",
		}, quotaLabels),
		scrapeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quota_exporter_scrape_errors_total",
			Help: "Failed quota collection attempts by error type.",
		}, []string{"service", "quota_code", "error_type"}),
		scrapeSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quota_exporter_scrape_skipped_total",
			Help: "Skipped quota collection attempts by reason.",
		}, []string{"service", "reason"}),
		scrapeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quota_exporter_scrape_duration_seconds",
			Help:    "Wall time of a full collection cycle.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		log: log,
	}
	a.registry.MustRegister(
		a.limitGauge, a.usageGauge, a.percentGauge,
		a.scrapeErrors, a.scrapeSkipped, a.scrapeDuration,
	)
	return a
}

// Registry exposes the aggregator's metric registry for the HTTP layer.
func (a *Aggregator) Registry() *prometheus.Registry {
	return a.registry
}

// AddResult records one collection outcome. Failures bump the error
// counter, skips bump the skip counter; both kinds still claim their
// series slot so later usage data can attach to skipped quotas.
func (a *Aggregator) AddResult(result model.QuotaResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch result.Status {
	case model.StatusFailed:
		a.scrapeErrors.WithLabelValues(result.Service, result.QuotaCode, string(result.Reason)).Inc()
	case model.StatusSkipped:
		a.scrapeSkipped.WithLabelValues(result.Service, result.SkipReason).Inc()
	}

	key := seriesKey{
		AccountID: result.AccountID,
		Region:    result.Region,
		Service:   result.Service,
		QuotaCode: result.QuotaCode,
	}
	s, ok := a.series[key]
	if !ok {
		s = &series{}
		a.series[key] = s
	}
	hadLimit, oldName := s.HasLimit, s.QuotaName
	s.QuotaName = result.QuotaName
	s.Status = result.Status
	s.SkipReason = result.SkipReason
	switch result.Status {
	case model.StatusSuccess:
		if result.Info != nil {
			s.Limit = result.Info.Value
			s.HasLimit = true
		}
	case model.StatusSkipped:
		// a series that degraded from success to skipped must not keep
		// exporting its old limit
		if hadLimit {
			a.limitGauge.Delete(a.seriesLabels(key, oldName))
		}
		s.HasLimit = false
	case model.StatusFailed:
		// a failed fetch keeps the last published gauge values
		return
	}

	// usage that arrived before this series existed attaches now
	if usage, ok := a.pending[key]; ok {
		s.Usage = usage
		s.HasUsage = true
		delete(a.pending, key)
	}
	a.publish(key, s)
}

// SetUsageData merges one usage snapshot into the matching series. Usage
// attaches to successful and skipped series alike; a quota whose limit
// never resolved still exports its usage, with a NaN percentage. Usage for
// a series that does not exist yet is buffered and attached when the
// series' next result arrives.
func (a *Aggregator) SetUsageData(snapshot model.UsageSnapshot) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	applied := 0
	for quotaCode, usage := range snapshot.Usage {
		key := seriesKey{
			AccountID: snapshot.AccountID,
			Region:    snapshot.Region,
			Service:   snapshot.Service,
			QuotaCode: quotaCode,
		}
		s, ok := a.series[key]
		if !ok {
			// keep it for the re-application pass once the series exists
			a.pending[key] = usage
			continue
		}
		s.Usage = usage
		s.HasUsage = true
		a.publish(key, s)
		applied++
	}
	return applied
}

func (a *Aggregator) seriesLabels(key seriesKey, quotaName string) prometheus.Labels {
	return prometheus.Labels{
		"provider":   providerLabel,
		"account_id": key.AccountID,
		"region":     key.Region,
		"service":    key.Service,
		"quota_name": quotaName,
		"quota_code": key.QuotaCode,
	}
}

func (a *Aggregator) publish(key seriesKey, s *series) {
	labels := a.seriesLabels(key, s.QuotaName)
	if s.HasLimit {
		a.limitGauge.With(labels).Set(s.Limit)
	}
	switch {
	case s.HasUsage:
		a.usageGauge.With(labels).Set(s.Usage)
	case s.HasLimit:
		// a resolved limit with no usage source exports NaN usage so the
		// series is visible but clearly unmeasured
		a.usageGauge.With(labels).Set(math.NaN())
	}
	a.percentGauge.With(labels).Set(percent(s))
}

func percent(s *series) float64 {
	if !s.HasLimit || !s.HasUsage || s.Limit == 0 {
		return math.NaN()
	}
	return s.Usage / s.Limit * 100
}

// ObserveCycleDuration records how long a collection cycle took.
func (a *Aggregator) ObserveCycleDuration(seconds float64) {
	a.scrapeDuration.Observe(seconds)
}

// Summary reports per-service series counts for the health endpoint.
func (a *Aggregator) Summary() model.Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	summary := model.Summary{
		ByService:   make(map[string]model.ServiceCounts),
		SkipReasons: make(map[string]int),
	}
	for key, s := range a.series {
		counts := summary.ByService[key.Service]
		switch s.Status {
		case model.StatusSuccess:
			counts.Success++
			summary.Success++
		case model.StatusSkipped:
			counts.Skipped++
			summary.Skipped++
			if s.SkipReason != "" {
				summary.SkipReasons[s.SkipReason]++
			}
		case model.StatusFailed:
			counts.Failed++
			summary.Failed++
		}
		summary.ByService[key.Service] = counts
		summary.Total++
	}
	return summary
}
