package model

// QuotaDescriptor identifies a single quota to collect. Descriptors come
// either from the static YAML configuration or from dynamic discovery.
type QuotaDescriptor struct {
	ServiceCode        string `yaml:"-" json:"service_code"`
	QuotaCode          string `yaml:"quota_code" json:"quota_code"`
	QuotaName          string `yaml:"quota_name" json:"quota_name"`
	Description        string `yaml:"description" json:"description"`
	Priority           string `yaml:"priority" json:"priority"`
	LimitRefreshSecond int    `yaml:"cache_ttl_limit" json:"cache_ttl_limit"`
	UsageRefreshSecond int    `yaml:"cache_ttl_usage" json:"cache_ttl_usage"`
}

// QuotaInfo is the payload of a successful limit fetch.
type QuotaInfo struct {
	QuotaCode   string  `json:"quota_code"`
	QuotaName   string  `json:"quota_name"`
	Value       float64 `json:"value"`
	Unit        string  `json:"unit"`
	Adjustable  bool    `json:"adjustable"`
	GlobalQuota bool    `json:"global_quota"`
	AccountID   string  `json:"account_id"`
	Region      string  `json:"region"`
}

// Status of a single quota collection attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// FailureReason classifies a failed collection attempt.
type FailureReason string

const (
	ReasonThrottled        FailureReason = "throttled"
	ReasonNotFound         FailureReason = "quota_not_found"
	ReasonPermissionDenied FailureReason = "permission_denied"
	ReasonEmptyResponse    FailureReason = "empty_response"
	ReasonUnknown          FailureReason = "api_error"
)

// Skip reasons used for quotas that are intentionally not collected.
const (
	SkipNoRemoteLimit = "limit_not_available"
)

// DefaultRegion is used when a result's source cannot supply a region and as
// the fallback region for accounts with no discovered active regions.
const DefaultRegion = "us-east-1"

// QuotaResult is the outcome of collecting one quota for one
// (account, region, service) scope. Exactly one of the variant fields is
// meaningful: Info for success, SkipReason for skipped, Reason/Err for failed.
type QuotaResult struct {
	Service    string
	QuotaCode  string
	QuotaName  string
	Status     Status
	AccountID  string
	Region     string
	Info       *QuotaInfo
	SkipReason string
	Reason     FailureReason
	Err        string
}

// NewSuccess builds a success result carrying the fetched limit payload.
func NewSuccess(service, accountID, region string, info *QuotaInfo) QuotaResult {
	info.AccountID = accountID
	info.Region = region
	return QuotaResult{
		Service:   service,
		QuotaCode: info.QuotaCode,
		QuotaName: info.QuotaName,
		Status:    StatusSuccess,
		AccountID: accountID,
		Region:    region,
		Info:      info,
	}
}

// NewSkipped builds a skipped result with an explicit reason code.
func NewSkipped(service, quotaCode, quotaName, accountID, region, skipReason string) QuotaResult {
	return QuotaResult{
		Service:    service,
		QuotaCode:  quotaCode,
		QuotaName:  quotaName,
		Status:     StatusSkipped,
		AccountID:  accountID,
		Region:     region,
		SkipReason: skipReason,
	}
}

// NewFailed builds a failed result with a reason taxonomy value and the raw
// diagnostic string.
func NewFailed(service, quotaCode, quotaName, accountID, region string, reason FailureReason, err string) QuotaResult {
	return QuotaResult{
		Service:   service,
		QuotaCode: quotaCode,
		QuotaName: quotaName,
		Status:    StatusFailed,
		AccountID: accountID,
		Region:    region,
		Reason:    reason,
		Err:       err,
	}
}

func (r QuotaResult) IsSuccess() bool { return r.Status == StatusSuccess }
func (r QuotaResult) IsSkipped() bool { return r.Status == StatusSkipped }
func (r QuotaResult) IsFailed() bool  { return r.Status == StatusFailed }

// UsageSnapshot maps quota codes to usage values for one
// (account, region, service) scope. A missing quota code means the usage is
// unknown, never zero; zero usage is stored explicitly.
type UsageSnapshot struct {
	AccountID string
	Region    string
	Service   string
	Usage     map[string]float64
}

// Summary aggregates result counts for one collection cycle.
type Summary struct {
	Total       int
	Success     int
	Skipped     int
	Failed      int
	ByService   map[string]ServiceCounts
	SkipReasons map[string]int
}

// ServiceCounts breaks a summary down per service code.
type ServiceCounts struct {
	Success int
	Skipped int
	Failed  int
}
