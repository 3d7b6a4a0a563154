package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	gcs "cloud.google.com/go/storage"
	"github.com/desertthunder/vbx/internal/shared"
	"google.golang.org/api/option"
)

// ObjectWriterFunc opens a writer for bucket/object. Closing it completes the upload.
type ObjectWriterFunc func(ctx context.Context, bucket, object string) io.WriteCloser

// GCSSink uploads artifacts to a Google Cloud Storage bucket.
type GCSSink struct {
	bucket string
	prefix string
	open   ObjectWriterFunc
	client *gcs.Client
}

// NewGCSSink creates a GCS client from the storage config. Without a credentials file the
// application default credentials are used.
func NewGCSSink(ctx context.Context, c shared.StorageConfig) (*GCSSink, error) {
	if c.Bucket == "" {
		return nil, fmt.Errorf("%w: storage.bucket is required for gcs", shared.ErrInvalidConfig)
	}

	var opts []option.ClientOption
	if c.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
	}
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	s := NewGCSSinkWithWriter(c.Bucket, c.Prefix, func(ctx context.Context, bucket, object string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = "video/mp4"
		return w
	})
	s.client = client
	return s, nil
}

// NewGCSSinkWithWriter creates a sink over an arbitrary object writer.
func NewGCSSinkWithWriter(bucket, prefix string, open ObjectWriterFunc) *GCSSink {
	return &GCSSink{bucket: bucket, prefix: prefix, open: open}
}

func (s *GCSSink) Name() string { return "gcs" }

// Put streams localPath to the bucket and returns its gs:// URI.
func (s *GCSSink) Put(ctx context.Context, localPath, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	objKey := objectKey(s.prefix, key)
	w := s.open(ctx, s.bucket, objKey)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to upload object %s: %w", objKey, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize object %s: %w", objKey, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, objKey), nil
}

// Close releases the underlying client, if any.
func (s *GCSSink) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
