// Package storage mirrors finished artifacts to durable storage.
//
// Artifacts are always written to the local output directory first. A [Sink] then copies them
// elsewhere: [LocalSink] keeps them where they are, [S3Sink] and [GCSSink] upload them to a bucket.
// Mirror failures are reported to the caller but never fail the job that produced the artifact.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/desertthunder/vbx/internal/shared"
)

// Sink stores a local artifact under key and returns where it ended up.
type Sink interface {
	Name() string
	Put(ctx context.Context, localPath, key string) (string, error)
}

// New builds the sink selected by the [storage] config section.
func New(ctx context.Context, c shared.StorageConfig) (Sink, error) {
	switch strings.ToLower(c.Backend) {
	case "", "local":
		return LocalSink{}, nil
	case "s3":
		return NewS3Sink(c)
	case "gcs":
		return NewGCSSink(ctx, c)
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", shared.ErrInvalidConfig, c.Backend)
	}
}

// objectKey joins prefix and key with forward slashes.
func objectKey(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}

// LocalSink leaves artifacts in the output directory.
type LocalSink struct{}

func (LocalSink) Name() string { return "local" }

func (LocalSink) Put(ctx context.Context, localPath, key string) (string, error) {
	return localPath, nil
}
