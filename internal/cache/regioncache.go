package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/CrazyCha/service-quota-monitor/internal/clock"
	"github.com/CrazyCha/service-quota-monitor/internal/logger"
)

// DefaultRegionTTL is how long a discovered region set stays valid before the
// account must be re-probed.
const DefaultRegionTTL = 24 * time.Hour

type regionFile struct {
	Timestamp int64    `json:"timestamp"`
	AccountID string   `json:"account_id"`
	Regions   []string `json:"regions"`
}

// RegionCache persists per-account active-region discovery results, one JSON
// file per account id.
type RegionCache struct {
	dir   string
	ttl   time.Duration
	clock clock.Clock
	log   *logger.Logger
}

func NewRegionCache(dir string, ttl time.Duration, log *logger.Logger) *RegionCache {
	if dir == "" {
		dir = ".active_regions_cache"
	}
	if ttl <= 0 {
		ttl = DefaultRegionTTL
	}
	return &RegionCache{dir: dir, ttl: ttl, clock: clock.RealClock{}, log: log}
}

// SetClock overrides the time source, for tests.
func (c *RegionCache) SetClock(clk clock.Clock) { c.clock = clk }

// Get returns the cached region set for an account. ok is false when the
// entry is missing or older than the TTL. An empty region list with ok=true
// is a valid cached answer, it means the account has no active regions.
func (c *RegionCache) Get(accountID string) (regions []string, ok bool) {
	path := filepath.Join(c.dir, accountID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var entry regionFile
	if err := json.Unmarshal(data, &entry); err != nil {
		c.log.Warn("Discarding unreadable region cache file", "path", path, "error", err)
		return nil, false
	}

	age := c.clock.Now().Unix() - entry.Timestamp
	if age >= int64(c.ttl.Seconds()) {
		return nil, false
	}
	if entry.Regions == nil {
		return []string{}, true
	}
	return entry.Regions, true
}

// Set stores the region set for an account with the current timestamp.
func (c *RegionCache) Set(accountID string, regions []string) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	entry := regionFile{
		Timestamp: c.clock.Now().Unix(),
		AccountID: accountID,
		Regions:   regions,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	path := filepath.Join(c.dir, accountID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	return nil
}
