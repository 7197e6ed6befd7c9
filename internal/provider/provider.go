// Package provider resolves the inputs a collection run fans out over:
// which accounts to scan, which credentials to use for each, and which
// regions in each account actually hold workloads.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/CrazyCha/service-quota-monitor/internal/awsapi"
	"github.com/CrazyCha/service-quota-monitor/internal/cache"
	"github.com/CrazyCha/service-quota-monitor/internal/config"
	"github.com/CrazyCha/service-quota-monitor/internal/logger"
)

const credentialTTL = time.Hour

// AccountProvider yields the accounts a collection run covers.
type AccountProvider interface {
	Accounts() []config.Account
}

// ConfigProvider resolves an AWS client config for an account and region.
type ConfigProvider interface {
	Resolve(ctx context.Context, account config.Account, region string) (aws.Config, error)
}

// StaticAccounts serves the account list straight from configuration.
type StaticAccounts struct {
	accounts []config.Account
}

func NewStaticAccounts(accounts []config.Account) *StaticAccounts {
	return &StaticAccounts{accounts: accounts}
}

func (s *StaticAccounts) Accounts() []config.Account {
	return s.accounts
}

// CredentialResolver builds per-account client configs. Resolved configs
// are cached for an hour so repeated quota fetches in one cycle do not
// re-run the credential chain. Accounts without static keys fall back to
// the default provider chain.
type CredentialResolver struct {
	cache *cache.Cache
	log   *logger.Logger
}

func NewCredentialResolver(c *cache.Cache, log *logger.Logger) *CredentialResolver {
	return &CredentialResolver{cache: c, log: log}
}

func (r *CredentialResolver) Resolve(ctx context.Context, account config.Account, region string) (aws.Config, error) {
	key := fmt.Sprintf("awscfg:%s:%s", account.ID, region)
	if v, ok := r.cache.Get(key); ok {
		if cfg, ok := v.(aws.Config); ok {
			return cfg, nil
		}
	}

	var creds *awsapi.Credentials
	if account.AccessKey != "" && account.SecretKey != "" {
		creds = &awsapi.Credentials{AccessKey: account.AccessKey, SecretKey: account.SecretKey}
	}

	cfg, err := awsapi.LoadConfig(ctx, region, creds)
	if err != nil {
		if creds == nil {
			return aws.Config{}, fmt.Errorf("load aws config for account %s: %w", account.ID, err)
		}
		// static keys failed to load, try the default chain before giving up
		r.log.Warn("static credentials failed, falling back to default chain",
			"account_id", account.ID, "error", err)
		cfg, err = awsapi.LoadConfig(ctx, region, nil)
		if err != nil {
			return aws.Config{}, fmt.Errorf("load aws config for account %s: %w", account.ID, err)
		}
	}

	r.cache.Set(key, cfg, credentialTTL)
	return cfg, nil
}
