package provider

import (
	"context"
	"testing"
	"time"

	"github.com/CrazyCha/service-quota-monitor/internal/cache"
	"github.com/CrazyCha/service-quota-monitor/internal/clock"
	"github.com/CrazyCha/service-quota-monitor/internal/config"
)

func TestCredentialResolverStaticKeys(t *testing.T) {
	c := cache.NewWithClock(&clock.FakeClock{Time: time.Now()})
	r := NewCredentialResolver(c, testLog())
	account := config.Account{ID: "111", AccessKey: "AKIAEXAMPLE", SecretKey: "secret"}

	cfg, err := r.Resolve(context.Background(), account, "us-east-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Region != "us-east-1" {
		t.Errorf("region %q, want us-east-1", cfg.Region)
	}

	creds, err := cfg.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if creds.AccessKeyID != "AKIAEXAMPLE" {
		t.Errorf("access key %q, want the configured static key", creds.AccessKeyID)
	}
}

func TestCredentialResolverCachesConfigs(t *testing.T) {
	c := cache.NewWithClock(&clock.FakeClock{Time: time.Now()})
	r := NewCredentialResolver(c, testLog())
	account := config.Account{ID: "111", AccessKey: "AKIAEXAMPLE", SecretKey: "secret"}

	if _, err := r.Resolve(context.Background(), account, "us-east-1"); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 1 {
		t.Errorf("cache holds %d entries after first resolve, want 1", c.Len())
	}
	if _, err := r.Resolve(context.Background(), account, "us-east-1"); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 1 {
		t.Errorf("second resolve grew the cache to %d entries", c.Len())
	}

	// a different region is a different entry
	if _, err := r.Resolve(context.Background(), account, "eu-west-1"); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 {
		t.Errorf("cache holds %d entries, want 2 for two regions", c.Len())
	}
}
