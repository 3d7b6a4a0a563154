package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/desertthunder/vbx/internal/shared"
)

// Uploader is the part of [manager.Uploader] used by [S3Sink].
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Sink uploads artifacts to an S3 (or S3-compatible) bucket with static credentials.
type S3Sink struct {
	bucket   string
	prefix   string
	uploader Uploader
}

// NewS3Sink creates an S3 client from the storage config. A custom endpoint switches to path-style addressing.
func NewS3Sink(c shared.StorageConfig) (*S3Sink, error) {
	if c.Bucket == "" {
		return nil, fmt.Errorf("%w: storage.bucket is required for s3", shared.ErrInvalidConfig)
	}

	opts := s3.Options{
		Region:      c.Region,
		Credentials: credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, ""),
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if c.Endpoint != "" {
		opts.BaseEndpoint = aws.String(c.Endpoint)
		opts.UsePathStyle = true
	}

	return NewS3SinkWithUploader(c.Bucket, c.Prefix, manager.NewUploader(s3.New(opts))), nil
}

// NewS3SinkWithUploader creates a sink over an existing uploader.
func NewS3SinkWithUploader(bucket, prefix string, u Uploader) *S3Sink {
	return &S3Sink{bucket: bucket, prefix: prefix, uploader: u}
}

func (s *S3Sink) Name() string { return "s3" }

// Put uploads localPath and returns its s3:// URI.
func (s *S3Sink) Put(ctx context.Context, localPath, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	objKey := objectKey(s.prefix, key)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objKey),
		Body:        f,
		ContentType: aws.String("video/mp4"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s to bucket %s: %w", objKey, s.bucket, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, objKey), nil
}
