package s3

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/afero"

	"github.com/gobeaver/nocloud"
)

const defaultRegion = "us-east-1"

// Injection points for tests
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig
	newS3Client          = func(cfg aws.Config, optFns ...func(*s3.Options)) Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

func init() {
	nocloud.RegisterDriver(nocloud.DriverS3, createS3Backend)
	nocloud.RegisterDriver(nocloud.DriverMinio, createMinioBackend)
}

func createS3Backend(ctx context.Context, cfg *nocloud.RemoteConfig, local afero.Fs) (nocloud.Backend, error) {
	if err := cfg.Require("bucket", "key", "secret"); err != nil {
		return nil, err
	}
	return open(ctx, cfg, local, false)
}

// createMinioBackend serves S3 compatible servers, which need an explicit
// endpoint and path-style addressing.
func createMinioBackend(ctx context.Context, cfg *nocloud.RemoteConfig, local afero.Fs) (nocloud.Backend, error) {
	if err := cfg.Require("bucket", "endpoint", "key", "secret"); err != nil {
		return nil, err
	}
	return open(ctx, cfg, local, true)
}

func open(ctx context.Context, cfg *nocloud.RemoteConfig, local afero.Fs, pathStyle bool) (nocloud.Backend, error) {
	if v := cfg.Get("path_style"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &nocloud.PathError{Op: "load", Path: cfg.Source, Err: fmt.Errorf("%w: path_style: %w", nocloud.ErrConfigParse, err)}
		}
		pathStyle = b
	}

	client, err := createS3Client(ctx, cfg, pathStyle)
	if err != nil {
		return nil, &nocloud.PathError{Op: "open", Path: cfg.Source, Err: fmt.Errorf("%w: failed to create S3 client: %w", nocloud.ErrFatalBackend, err)}
	}
	return New(client, cfg.Get("bucket"), local), nil
}

// createS3Client creates an S3 client from config. Retries are disabled in
// the SDK; the sync engine retries transient failures itself.
func createS3Client(ctx context.Context, cfg *nocloud.RemoteConfig, pathStyle bool) (Client, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.GetDefault("region", defaultRegion)),
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.Get("key"),
			cfg.Get("secret"),
			"",
		)),
	)
	if err != nil {
		return nil, err
	}

	endpoint := cfg.Get("endpoint")
	return newS3Client(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	}), nil
}
