package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/wolfman30/clinic-frontdesk/internal/config"
	"github.com/wolfman30/clinic-frontdesk/internal/media"
	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

// LoadAWSConfig centralizes AWS SDK initialization so LocalStack/MinIO and
// production share the same wiring.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	return awsCfg, nil
}

// NewS3Client builds the S3 client, pointing at AWS_ENDPOINT_OVERRIDE with
// path-style addressing when one is set.
func NewS3Client(awsCfg aws.Config, cfg *appconfig.Config) *s3.Client {
	endpoint := strings.TrimSpace(cfg.AWSEndpointOverride)
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

// BuildMediaStore returns the S3 store when a bucket is configured and an
// in-memory store otherwise.
func BuildMediaStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (media.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	bucket := strings.TrimSpace(cfg.MediaBucket)
	if bucket == "" {
		logger.Warn("MEDIA_BUCKET not set; uploads are kept in memory")
		return media.NewMemoryStore(), nil
	}
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("media store enabled", "bucket", bucket, "endpoint", cfg.AWSEndpointOverride)
	return media.NewS3Store(NewS3Client(awsCfg, cfg), bucket, logger), nil
}
