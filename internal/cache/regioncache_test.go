package cache

import (
	"os"
	"testing"
	"time"

	"github.com/CrazyCha/service-quota-monitor/internal/clock"
	"github.com/CrazyCha/service-quota-monitor/internal/logger"
)

func newTestRegionCache(t *testing.T) (*RegionCache, *clock.FakeClock) {
	t.Helper()
	clk := &clock.FakeClock{Time: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	c := NewRegionCache(t.TempDir(), DefaultRegionTTL, logger.NewWithWriter("error", os.Stderr))
	c.SetClock(clk)
	return c, clk
}

func TestRegionCacheRoundTrip(t *testing.T) {
	c, _ := newTestRegionCache(t)

	if err := c.Set("111", []string{"us-east-1", "eu-west-1"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	regions, ok := c.Get("111")
	if !ok {
		t.Fatal("expected hit")
	}
	if len(regions) != 2 || regions[0] != "us-east-1" || regions[1] != "eu-west-1" {
		t.Errorf("got %v", regions)
	}
}

func TestRegionCacheEmptyListIsValid(t *testing.T) {
	c, _ := newTestRegionCache(t)

	if err := c.Set("111", nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	regions, ok := c.Get("111")
	if !ok {
		t.Fatal("empty region set should still be a cache hit")
	}
	if len(regions) != 0 {
		t.Errorf("got %v, want empty", regions)
	}
}

func TestRegionCacheExpiry(t *testing.T) {
	c, clk := newTestRegionCache(t)

	c.Set("111", []string{"us-east-1"})
	clk.Advance(23 * time.Hour)
	if _, ok := c.Get("111"); !ok {
		t.Error("entry expired before 24h")
	}
	clk.Advance(time.Hour)
	if _, ok := c.Get("111"); ok {
		t.Error("entry survived past 24h")
	}
}

func TestRegionCacheMiss(t *testing.T) {
	c, _ := newTestRegionCache(t)
	if _, ok := c.Get("999"); ok {
		t.Error("expected miss for unknown account")
	}
}
