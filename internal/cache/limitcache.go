package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/CrazyCha/service-quota-monitor/internal/clock"
	"github.com/CrazyCha/service-quota-monitor/internal/logger"
	"github.com/CrazyCha/service-quota-monitor/internal/model"
)

// DefaultLimitTTL is how long a cached quota limit stays valid.
const DefaultLimitTTL = 24 * time.Hour

// limitFile is the on-disk shape of one (account, region, service) entry.
// TTL is evaluated at read time against Timestamp, not by file age.
type limitFile struct {
	Timestamp int64                       `json:"timestamp"`
	AccountID string                      `json:"account_id"`
	Region    string                      `json:"region"`
	Service   string                      `json:"service"`
	Quotas    map[string]*model.QuotaInfo `json:"quotas"`
}

// LimitCache is a file-backed cache for quota limit values, keyed by
// account/region/service with one JSON file per key. Limits change rarely,
// so re-reading them from the API every cycle is wasted quota budget.
//
// Concurrent same-key writes are last-write-wins; entries are idempotent and
// TTL-bounded, so the race is accepted.
type LimitCache struct {
	dir   string
	ttl   time.Duration
	clock clock.Clock
	log   *logger.Logger
}

func NewLimitCache(dir string, ttl time.Duration, log *logger.Logger) *LimitCache {
	if dir == "" {
		dir = ".quota_limit_cache"
	}
	if ttl <= 0 {
		ttl = DefaultLimitTTL
	}
	return &LimitCache{dir: dir, ttl: ttl, clock: clock.RealClock{}, log: log}
}

// SetClock overrides the time source, for tests.
func (c *LimitCache) SetClock(clk clock.Clock) { c.clock = clk }

func (c *LimitCache) filePath(accountID, region, service string) string {
	return filepath.Join(c.dir, accountID, region, service+".json")
}

// Get returns the cached limit for one quota, or nil when the entry is
// missing or expired.
func (c *LimitCache) Get(accountID, region, service, quotaCode string) *model.QuotaInfo {
	path := c.filePath(accountID, region, service)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var entry limitFile
	if err := json.Unmarshal(data, &entry); err != nil {
		c.log.Warn("Discarding unreadable limit cache file", "path", path, "error", err)
		return nil
	}

	age := c.clock.Now().Unix() - entry.Timestamp
	if age >= int64(c.ttl.Seconds()) {
		return nil
	}
	return entry.Quotas[quotaCode]
}

// Set writes one quota's limit through to the on-disk entry, merging with any
// quotas already stored for the same (account, region, service).
func (c *LimitCache) Set(accountID, region, service, quotaCode string, info *model.QuotaInfo) error {
	path := c.filePath(accountID, region, service)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	entry := limitFile{Quotas: make(map[string]*model.QuotaInfo)}
	if data, err := os.ReadFile(path); err == nil {
		// Merge into the existing file; a corrupt file is simply replaced.
		if err := json.Unmarshal(data, &entry); err != nil {
			entry = limitFile{Quotas: make(map[string]*model.QuotaInfo)}
		}
		if entry.Quotas == nil {
			entry.Quotas = make(map[string]*model.QuotaInfo)
		}
	}

	entry.Timestamp = c.clock.Now().Unix()
	entry.AccountID = accountID
	entry.Region = region
	entry.Service = service
	entry.Quotas[quotaCode] = info

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	return nil
}

// Clear removes cached entries. With all arguments empty the whole cache
// directory is recreated; narrower scopes remove one account, one region, or
// one service file.
func (c *LimitCache) Clear(accountID, region, service string) error {
	switch {
	case accountID != "" && region != "" && service != "":
		return os.Remove(c.filePath(accountID, region, service))
	case accountID != "" && region != "":
		return os.RemoveAll(filepath.Join(c.dir, accountID, region))
	case accountID != "":
		return os.RemoveAll(filepath.Join(c.dir, accountID))
	default:
		if err := os.RemoveAll(c.dir); err != nil {
			return err
		}
		return os.MkdirAll(c.dir, 0o755)
	}
}
