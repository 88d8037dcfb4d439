package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/soundjacket/metapub/internal/models"
	"github.com/soundjacket/metapub/internal/retry"
)

// S3Config configures the S3-compatible content store
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, for MinIO and other S3-compatible services
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PublicBaseURL   string // prefix under which stored keys are publicly readable
	CreateBucket    bool
	Retry           retry.Policy
}

// S3 stores payloads under their multihash so identical content always maps
// to the same key and URI.
type S3 struct {
	uploader      *manager.Uploader
	bucket        string
	publicBaseURL string
	policy        retry.Policy
}

// NewS3 creates an S3 uploader from config
func NewS3(ctx context.Context, config S3Config) (*S3, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
		o.UsePathStyle = config.UsePathStyle
	})

	if config.CreateBucket {
		if err := ensureBucket(ctx, client, config.Bucket, config.Region); err != nil {
			return nil, err
		}
	}

	return NewS3WithClient(client, config.Bucket, config.PublicBaseURL, config.Retry), nil
}

// NewS3WithClient creates an S3 uploader over an existing client
func NewS3WithClient(client manager.UploadAPIClient, bucket, publicBaseURL string, policy retry.Policy) *S3 {
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	return &S3{
		uploader:      manager.NewUploader(client),
		bucket:        bucket,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		policy:        policy,
	}
}

// Upload puts the payload under its content key
func (s *S3) Upload(ctx context.Context, file models.AssetFile) (string, error) {
	key, err := ContentKey(file.Data, file.Ext)
	if err != nil {
		return "", err
	}

	err = retry.Do(ctx, s.policy, "s3 put "+key, func(ctx context.Context) error {
		_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(file.Data),
			ContentType: aws.String(file.MIMEType),
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	slog.Debug("Stored content in S3", "bucket", s.bucket, "key", key)
	return s.publicBaseURL + "/" + key, nil
}

func ensureBucket(ctx context.Context, client *s3.Client, bucket, region string) error {
	_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) &&
		!strings.Contains(err.Error(), "NoSuchBucket") {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}
	if _, err := client.CreateBucket(ctx, input); err != nil {
		if strings.Contains(err.Error(), "BucketAlreadyOwnedByYou") || strings.Contains(err.Error(), "BucketAlreadyExists") {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	slog.Info("Created S3 bucket", "bucket", bucket)
	return nil
}
