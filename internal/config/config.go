package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/CrazyCha/service-quota-monitor/internal/model"
)

// Account pairs an account identifier with its access credentials. Empty
// credentials mean the default AWS credential chain.
type Account struct {
	ID        string `yaml:"id"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// MatchRule is one discovery predicate: a quota matches when its name
// contains every keyword, case-insensitively.
type MatchRule struct {
	NameContains []string `yaml:"name_contains"`
}

// DiscoveryRule configures dynamic quota enumeration for a service whose
// quota set is not statically known.
type DiscoveryRule struct {
	Enabled         bool        `yaml:"enabled"`
	MatchRules      []MatchRule `yaml:"match_rules"`
	DefaultPriority string      `yaml:"default_priority"`
}

// QuotaSource is the tagged per-service quota configuration: either a static
// descriptor list or a discovery rule, resolved once at load time.
type QuotaSource struct {
	Static    []model.QuotaDescriptor
	Discovery *DiscoveryRule
}

func (s QuotaSource) IsDiscovery() bool { return s.Discovery != nil }

type ServerConfig struct {
	Port string `yaml:"port"`
}

type CacheConfig struct {
	LimitDir       string `yaml:"limit_dir"`
	RegionDir      string `yaml:"region_dir"`
	LimitTTLSecond int    `yaml:"limit_ttl_seconds"`
}

type SchedulerConfig struct {
	LimitIntervalSecond int `yaml:"limit_interval_seconds"`
	UsageIntervalSecond int `yaml:"usage_interval_seconds"`
}

type Config struct {
	LogLevel         string          `yaml:"log_level"`
	Server           ServerConfig    `yaml:"server"`
	Cache            CacheConfig     `yaml:"cache"`
	Scheduler        SchedulerConfig `yaml:"scheduler"`
	MaxWorkers       int             `yaml:"max_workers"`
	Accounts         []Account       `yaml:"accounts"`
	CandidateRegions []string        `yaml:"candidate_regions"`

	// Services maps a service code to its quota source; filled by Load from
	// the raw "aws" section.
	Services map[string]QuotaSource `yaml:"-"`
}

// Default configuration
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port: "8000",
		},
		Cache: CacheConfig{
			LimitDir:       ".quota_limit_cache",
			RegionDir:      ".active_regions_cache",
			LimitTTLSecond: 86400,
		},
		Scheduler: SchedulerConfig{
			LimitIntervalSecond: 86400,
			UsageIntervalSecond: 3600,
		},
		MaxWorkers: 3,
		Services:   map[string]QuotaSource{},
	}
}

// rawConfig mirrors Config with the per-service section left as yaml nodes,
// since each service entry is either a list or a discovery mapping.
type rawConfig struct {
	LogLevel         string               `yaml:"log_level"`
	Server           ServerConfig         `yaml:"server"`
	Cache            CacheConfig          `yaml:"cache"`
	Scheduler        SchedulerConfig      `yaml:"scheduler"`
	MaxWorkers       int                  `yaml:"max_workers"`
	Accounts         []Account            `yaml:"accounts"`
	CandidateRegions []string             `yaml:"candidate_regions"`
	AWS              map[string]yaml.Node `yaml:"aws"`
}

// Load configuration from file
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", filename, err)
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", filename, err)
	}

	if raw.LogLevel != "" {
		cfg.LogLevel = raw.LogLevel
	}
	if raw.Server.Port != "" {
		cfg.Server.Port = raw.Server.Port
	}
	if raw.Cache.LimitDir != "" {
		cfg.Cache.LimitDir = raw.Cache.LimitDir
	}
	if raw.Cache.RegionDir != "" {
		cfg.Cache.RegionDir = raw.Cache.RegionDir
	}
	if raw.Cache.LimitTTLSecond > 0 {
		cfg.Cache.LimitTTLSecond = raw.Cache.LimitTTLSecond
	}
	if raw.Scheduler.LimitIntervalSecond > 0 {
		cfg.Scheduler.LimitIntervalSecond = raw.Scheduler.LimitIntervalSecond
	}
	if raw.Scheduler.UsageIntervalSecond > 0 {
		cfg.Scheduler.UsageIntervalSecond = raw.Scheduler.UsageIntervalSecond
	}
	if raw.MaxWorkers > 0 {
		cfg.MaxWorkers = raw.MaxWorkers
	}
	cfg.Accounts = raw.Accounts
	cfg.CandidateRegions = raw.CandidateRegions

	for service, node := range raw.AWS {
		source, err := parseQuotaSource(service, node)
		if err != nil {
			return nil, err
		}
		cfg.Services[service] = source
	}

	// Operational override used by one-off collection runs.
	if v := os.Getenv("COLLECTION_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxWorkers = n
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseQuotaSource(service string, node yaml.Node) (QuotaSource, error) {
	if node.Kind == yaml.MappingNode {
		var wrapper struct {
			Discovery *DiscoveryRule `yaml:"discovery"`
		}
		if err := node.Decode(&wrapper); err != nil {
			return QuotaSource{}, fmt.Errorf("aws.%s: %w", service, err)
		}
		if wrapper.Discovery == nil {
			return QuotaSource{}, fmt.Errorf("aws.%s: mapping must contain a discovery section", service)
		}
		if !wrapper.Discovery.Enabled {
			return QuotaSource{}, fmt.Errorf("aws.%s: discovery.enabled must be true", service)
		}
		if len(wrapper.Discovery.MatchRules) == 0 {
			return QuotaSource{}, fmt.Errorf("aws.%s: discovery requires at least one match rule", service)
		}
		if wrapper.Discovery.DefaultPriority == "" {
			wrapper.Discovery.DefaultPriority = "high"
		}
		return QuotaSource{Discovery: wrapper.Discovery}, nil
	}

	var quotas []model.QuotaDescriptor
	if err := node.Decode(&quotas); err != nil {
		return QuotaSource{}, fmt.Errorf("aws.%s: must be a quota list or a discovery mapping: %w", service, err)
	}
	for i := range quotas {
		q := &quotas[i]
		if q.QuotaCode == "" {
			return QuotaSource{}, fmt.Errorf("aws.%s[%d]: quota_code is required", service, i)
		}
		if q.QuotaName == "" {
			return QuotaSource{}, fmt.Errorf("aws.%s[%d]: quota_name is required", service, i)
		}
		q.ServiceCode = service
		if q.LimitRefreshSecond <= 0 {
			q.LimitRefreshSecond = 86400
		}
		if q.UsageRefreshSecond <= 0 {
			q.UsageRefreshSecond = 3600
		}
	}
	return QuotaSource{Static: quotas}, nil
}

func (c *Config) validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("config: at least one account is required")
	}
	seen := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		if a.ID == "" {
			return fmt.Errorf("config: accounts[%d]: id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("config: duplicate account id %s", a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

// GetLimitCacheTTL returns the durable limit cache TTL as a duration.
func (c *Config) GetLimitCacheTTL() time.Duration {
	return time.Duration(c.Cache.LimitTTLSecond) * time.Second
}

// GetLimitInterval returns the limit refresh interval as a duration.
func (c *Config) GetLimitInterval() time.Duration {
	return time.Duration(c.Scheduler.LimitIntervalSecond) * time.Second
}

// GetUsageInterval returns the usage refresh interval as a duration.
func (c *Config) GetUsageInterval() time.Duration {
	return time.Duration(c.Scheduler.UsageIntervalSecond) * time.Second
}

// GetPort returns the server port, checking environment variable first
func (c *Config) GetPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return c.Server.Port
}
