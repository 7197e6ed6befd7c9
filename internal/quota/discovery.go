// Package quota turns configured quota sources into concrete quota lists,
// either by passing static definitions through or by discovering quotas
// against the live Service Quotas API with keyword match rules.
package quota

import (
	"context"
	"strings"

	"github.com/CrazyCha/service-quota-monitor/internal/config"
	"github.com/CrazyCha/service-quota-monitor/internal/logger"
	"github.com/CrazyCha/service-quota-monitor/internal/model"
)

// Refresh intervals for discovered quotas, same defaults as static ones.
const (
	discoveredLimitTTL = 86400
	discoveredUsageTTL = 3600
)

// Lister lists every quota a service exposes.
type Lister interface {
	ListQuotas(ctx context.Context, serviceCode string) ([]model.QuotaInfo, error)
}

// Discoverer resolves discovery-mode quota sources into descriptors.
type Discoverer struct {
	log *logger.Logger
}

func NewDiscoverer(log *logger.Logger) *Discoverer {
	return &Discoverer{log: log}
}

// Discover lists the service's quotas and keeps those matching the rule
// set. A listing failure yields an empty slice so one service cannot sink
// the rest of the collection cycle.
func (d *Discoverer) Discover(ctx context.Context, lister Lister, serviceCode string, rule *config.DiscoveryRule) []model.QuotaDescriptor {
	if rule == nil || !rule.Enabled {
		return nil
	}

	quotas, err := lister.ListQuotas(ctx, serviceCode)
	if err != nil {
		d.log.Warn("quota discovery failed", "service", serviceCode, "error", err)
		return nil
	}

	priority := rule.DefaultPriority
	if priority == "" {
		priority = "high"
	}

	var matched []model.QuotaDescriptor
	for _, q := range quotas {
		if !Matches(q.QuotaName, rule.MatchRules) {
			continue
		}
		matched = append(matched, model.QuotaDescriptor{
			ServiceCode:        serviceCode,
			QuotaCode:          q.QuotaCode,
			QuotaName:          q.QuotaName,
			Description:        q.QuotaName,
			Priority:           priority,
			LimitRefreshSecond: discoveredLimitTTL,
			UsageRefreshSecond: discoveredUsageTTL,
		})
	}
	d.log.Info("quota discovery complete",
		"service", serviceCode, "listed", len(quotas), "matched", len(matched))
	return matched
}

// Matches reports whether a quota name satisfies at least one rule. A rule
// matches when the name contains every one of its keywords, compared
// case-insensitively.
func Matches(quotaName string, rules []config.MatchRule) bool {
	name := strings.ToLower(quotaName)
	for _, rule := range rules {
		if len(rule.NameContains) == 0 {
			continue
		}
		all := true
		for _, keyword := range rule.NameContains {
			if !strings.Contains(name, strings.ToLower(keyword)) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}
