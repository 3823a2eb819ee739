package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/codebuildervaibhav/recording-processor/internal/types"
)

// RecordingContentType is sent with every uploaded artifact
const RecordingContentType = "video/webm"

// S3Config holds the bucket and credentials for S3 uploads
type S3Config struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	// Endpoint overrides the AWS endpoint (MinIO, LocalStack)
	Endpoint string
}

// S3Uploader puts recordings into an S3 bucket
type S3Uploader struct {
	client *s3.Client
	bucket string
}

// NewS3Uploader creates an uploader from static credentials
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3UploaderWithClient(client, cfg.Bucket), nil
}

// NewS3UploaderWithClient wraps an existing S3 client
func NewS3UploaderWithClient(client *s3.Client, bucket string) *S3Uploader {
	return &S3Uploader{
		client: client,
		bucket: bucket,
	}
}

// Upload puts the file at path under key in a single request
func (u *S3Uploader) Upload(ctx context.Context, path, key string) (types.UploadOutcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.UploadOutcome{}, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return types.UploadOutcome{}, fmt.Errorf("failed to stat artifact: %w", err)
	}

	out, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(RecordingContentType),
		ContentLength: aws.Int64(info.Size()),
		Body:          f,
	})
	if err != nil {
		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) {
			code := respErr.HTTPStatusCode()
			return types.UploadOutcome{StatusCode: code}, fmt.Errorf("s3 put returned %d: %w", code, err)
		}
		return types.UploadOutcome{}, fmt.Errorf("s3 put failed: %w", err)
	}

	code := 0
	if raw, ok := awsmiddleware.GetRawResponse(out.ResultMetadata).(*smithyhttp.Response); ok {
		code = raw.StatusCode
	}

	log.Printf("S3 put s3://%s/%s (%d bytes): HTTP %d", u.bucket, key, info.Size(), code)
	return types.UploadOutcome{Success: code == 200, StatusCode: code}, nil
}
