package awsapi

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// Credentials holds one account's static access keys. A nil *Credentials
// falls back to the default AWS credential chain.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// LoadConfig builds an SDK config for the given region, using static
// credentials when supplied.
func LoadConfig(ctx context.Context, region string, creds *Credentials) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if creds != nil && creds.AccessKey != "" && creds.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKey, creds.SecretKey, ""),
		))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

func safeString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func safeFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
