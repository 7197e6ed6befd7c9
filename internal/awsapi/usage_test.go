package awsapi

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/CrazyCha/service-quota-monitor/internal/cache"
	"github.com/CrazyCha/service-quota-monitor/internal/clock"
	"github.com/CrazyCha/service-quota-monitor/internal/logger"
)

func TestRouteSageMakerUsage(t *testing.T) {
	tests := []struct {
		name    string
		quota   string
		wantKey string
		wantOK  bool
	}{
		{"notebook usage", "ml.t3.medium for notebook instance usage", SageMakerNotebooksKey, true},
		{"notebook mixed case", "ml.t3.medium for Notebook Instance Usage", SageMakerNotebooksKey, true},
		{"training job usage", "ml.p4d.24xlarge for training job usage", SageMakerTrainingJobsKey, true},
		{"endpoint usage", "ml.m5.large for endpoint usage", SageMakerEndpointsKey, true},
		{"notebook count, not usage", "Number of notebook instances", "", false},
		{"unrelated", "Longest run duration for a training job", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			key, ok := RouteSageMakerUsage(tc.quota)
			if ok != tc.wantOK || key != tc.wantKey {
				t.Errorf("RouteSageMakerUsage(%q) = %q/%v, want %q/%v",
					tc.quota, key, ok, tc.wantKey, tc.wantOK)
			}
		})
	}
}

func TestCollectorBaseMemoization(t *testing.T) {
	clk := &clock.FakeClock{Time: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	b := &collectorBase{
		service: "ec2",
		cache:   cache.NewWithClock(clk),
		log:     logger.NewWithWriter("error", io.Discard),
	}

	if _, ok := b.cached("111", "us-east-1"); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	b.store("111", "us-east-1", map[string]float64{"L-1216C47A": 12})
	usage, ok := b.cached("111", "us-east-1")
	if !ok || usage["L-1216C47A"] != 12 {
		t.Errorf("got %v/%v, want stored usage", usage, ok)
	}

	if _, ok := b.cached("111", "us-west-2"); ok {
		t.Error("usage leaked across regions")
	}

	clk.Advance(usageCacheTTL)
	if _, ok := b.cached("111", "us-east-1"); ok {
		t.Error("usage survived past its TTL")
	}
}

func TestCollectorBaseSkipsEmptyStore(t *testing.T) {
	c := cache.NewWithClock(&clock.FakeClock{Time: time.Now()})
	b := &collectorBase{service: "ec2", cache: c, log: logger.NewWithWriter("error", io.Discard)}

	b.store("111", "us-east-1", map[string]float64{})
	if _, ok := b.cached("111", "us-east-1"); ok {
		t.Error("empty usage map should not be memoized")
	}
}

func TestPagedCountStopsAtPageCap(t *testing.T) {
	u := NewSageMakerUsageCollector(cache.NewWithClock(&clock.FakeClock{Time: time.Now()}),
		logger.NewWithWriter("error", io.Discard))
	u.MaxPages = 3

	count := 0
	pages := 0
	err := u.pagedCount(context.Background(), "jobs", &count, func(ctx context.Context) (int, bool, error) {
		pages++
		return 10, true, nil
	})
	if err != nil {
		t.Fatalf("pagedCount: %v", err)
	}
	if pages != 3 {
		t.Errorf("fetched %d pages, want 3", pages)
	}
	if count != 30 {
		t.Errorf("partial count %d, want 30", count)
	}
}

func TestPagedCountExhaustsPages(t *testing.T) {
	u := NewSageMakerUsageCollector(cache.NewWithClock(&clock.FakeClock{Time: time.Now()}),
		logger.NewWithWriter("error", io.Discard))

	count := 0
	page := 0
	err := u.pagedCount(context.Background(), "jobs", &count, func(ctx context.Context) (int, bool, error) {
		page++
		return 5, page < 2, nil
	})
	if err != nil {
		t.Fatalf("pagedCount: %v", err)
	}
	if count != 10 {
		t.Errorf("count %d, want 10", count)
	}
}

func TestNewUsageCollectorsCoversConfiguredServices(t *testing.T) {
	collectors := NewUsageCollectors(cache.NewWithClock(&clock.FakeClock{Time: time.Now()}),
		logger.NewWithWriter("error", io.Discard))
	for _, service := range []string{
		"ec2", "ebs", "elasticloadbalancing", "eks",
		"elasticache", "route53", "cloudfront", "sagemaker",
	} {
		if collectors[service] == nil {
			t.Errorf("no usage collector registered for %s", service)
		}
	}
}
