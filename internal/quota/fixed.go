package quota

// Some services publish no limits through the Service Quotas API.
// Their default limits are pinned here instead; anything not listed is
// skipped rather than guessed.
var cloudFrontFixedLimits = map[string]float64{
	"L-24B04930": 200, // distributions per account
	"L-7D134442": 20,  // custom cache policies
	"L-CF0D4FC5": 20,  // custom response headers policies
	"L-08884E5C": 100, // origin access identities
}

// FixedLimit returns the pinned default limit for a service quota, if the
// service is one whose limits cannot be fetched remotely.
func FixedLimit(serviceCode, quotaCode string) (float64, bool) {
	if serviceCode != "cloudfront" {
		return 0, false
	}
	v, ok := cloudFrontFixedLimits[quotaCode]
	return v, ok
}

// HasFixedLimits reports whether a service's limits come from the pinned
// table instead of the Service Quotas API.
func HasFixedLimits(serviceCode string) bool {
	return serviceCode == "cloudfront"
}
