// Package awsx builds the AWS SDK configuration shared by the S3 and SQS
// clients. Static credentials and a custom endpoint make it work against
// MinIO and LocalStack as well as AWS.
package awsx

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// loadDefaultAWSConfig is a seam for tests.
var loadDefaultAWSConfig = config.LoadDefaultConfig

// Settings are the connection parameters of an S3/SQS compatible endpoint.
type Settings struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
}

// LoadConfig returns an aws.Config for s. Credentials are static when an
// access key is given and come from the default chain otherwise.
func LoadConfig(ctx context.Context, s Settings) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(s.Region)}
	if s.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKey, s.SecretKey, "")))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	if s.BaseEndpoint != "" {
		cfg.BaseEndpoint = aws.String(s.BaseEndpoint)
	}
	return cfg, nil
}
