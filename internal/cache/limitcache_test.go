package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/CrazyCha/service-quota-monitor/internal/clock"
	"github.com/CrazyCha/service-quota-monitor/internal/logger"
	"github.com/CrazyCha/service-quota-monitor/internal/model"
)

func newTestLimitCache(t *testing.T, ttl time.Duration) (*LimitCache, *clock.FakeClock) {
	t.Helper()
	clk := &clock.FakeClock{Time: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	c := NewLimitCache(t.TempDir(), ttl, logger.NewWithWriter("error", os.Stderr))
	c.SetClock(clk)
	return c, clk
}

func TestLimitCacheRoundTrip(t *testing.T) {
	c, _ := newTestLimitCache(t, time.Hour)

	info := &model.QuotaInfo{QuotaCode: "L-1216C47A", QuotaName: "Running On-Demand Standard instances", Value: 64}
	if err := c.Set("111", "us-east-1", "ec2", "L-1216C47A", info); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got := c.Get("111", "us-east-1", "ec2", "L-1216C47A")
	if got == nil {
		t.Fatal("expected cached limit")
	}
	if got.Value != 64 {
		t.Errorf("got value %v, want 64", got.Value)
	}
	if got.QuotaName != info.QuotaName {
		t.Errorf("got name %q, want %q", got.QuotaName, info.QuotaName)
	}
}

func TestLimitCacheMiss(t *testing.T) {
	c, _ := newTestLimitCache(t, time.Hour)
	if got := c.Get("111", "us-east-1", "ec2", "L-0263D0A3"); got != nil {
		t.Errorf("expected nil for absent entry, got %+v", got)
	}
}

func TestLimitCacheExpiry(t *testing.T) {
	c, clk := newTestLimitCache(t, time.Hour)
	info := &model.QuotaInfo{QuotaCode: "L-0263D0A3", Value: 5}
	if err := c.Set("111", "us-east-1", "ec2", "L-0263D0A3", info); err != nil {
		t.Fatalf("Set: %v", err)
	}

	clk.Advance(59 * time.Minute)
	if c.Get("111", "us-east-1", "ec2", "L-0263D0A3") == nil {
		t.Error("entry expired before its TTL")
	}
	clk.Advance(time.Minute)
	if c.Get("111", "us-east-1", "ec2", "L-0263D0A3") != nil {
		t.Error("entry survived past its TTL")
	}
}

func TestLimitCacheMergesQuotas(t *testing.T) {
	c, _ := newTestLimitCache(t, time.Hour)

	c.Set("111", "us-east-1", "ec2", "L-1216C47A", &model.QuotaInfo{QuotaCode: "L-1216C47A", Value: 64})
	c.Set("111", "us-east-1", "ec2", "L-0263D0A3", &model.QuotaInfo{QuotaCode: "L-0263D0A3", Value: 5})

	if c.Get("111", "us-east-1", "ec2", "L-1216C47A") == nil {
		t.Error("first quota lost after writing the second")
	}
	if c.Get("111", "us-east-1", "ec2", "L-0263D0A3") == nil {
		t.Error("second quota missing")
	}
}

func TestLimitCacheCorruptFileReplaced(t *testing.T) {
	clk := &clock.FakeClock{Time: time.Now()}
	dir := t.TempDir()
	c := NewLimitCache(dir, time.Hour, logger.NewWithWriter("error", os.Stderr))
	c.SetClock(clk)

	path := filepath.Join(dir, "111", "us-east-1", "ec2.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if c.Get("111", "us-east-1", "ec2", "L-1216C47A") != nil {
		t.Error("corrupt file should read as a miss")
	}
	if err := c.Set("111", "us-east-1", "ec2", "L-1216C47A", &model.QuotaInfo{QuotaCode: "L-1216C47A", Value: 64}); err != nil {
		t.Fatalf("Set over corrupt file: %v", err)
	}
	if c.Get("111", "us-east-1", "ec2", "L-1216C47A") == nil {
		t.Error("write over corrupt file not readable")
	}
}

func TestLimitCacheClearScopes(t *testing.T) {
	c, _ := newTestLimitCache(t, time.Hour)
	info := &model.QuotaInfo{QuotaCode: "L-1216C47A", Value: 64}

	c.Set("111", "us-east-1", "ec2", "L-1216C47A", info)
	c.Set("111", "us-west-2", "ec2", "L-1216C47A", info)
	c.Set("222", "us-east-1", "ec2", "L-1216C47A", info)

	if err := c.Clear("111", "us-east-1", "ec2"); err != nil {
		t.Fatalf("Clear service: %v", err)
	}
	if c.Get("111", "us-east-1", "ec2", "L-1216C47A") != nil {
		t.Error("cleared service entry still present")
	}
	if c.Get("111", "us-west-2", "ec2", "L-1216C47A") == nil {
		t.Error("sibling region was cleared")
	}

	if err := c.Clear("222", "", ""); err != nil {
		t.Fatalf("Clear account: %v", err)
	}
	if c.Get("222", "us-east-1", "ec2", "L-1216C47A") != nil {
		t.Error("cleared account entry still present")
	}
}
