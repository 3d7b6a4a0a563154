package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/desertthunder/vbx/internal/shared"
)

type fakeUploader struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	f.body, _ = io.ReadAll(input.Body)
	return &manager.UploadOutput{Key: input.Key}, nil
}

type bufferCloser struct {
	bytes.Buffer
	closed   bool
	closeErr error
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return b.closeErr
}

func writeArtifact(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "1_sunset.mp4")
	if err := os.WriteFile(p, []byte("mp4"), 0644); err != nil {
		t.Fatalf("failed to write artifact: %v", err)
	}
	return p
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, key, want string
	}{
		{"", "a.mp4", "a.mp4"},
		{"vbx", "a.mp4", "vbx/a.mp4"},
		{"/vbx/runs/", "a.mp4", "vbx/runs/a.mp4"},
	}
	for _, tt := range tests {
		if got := objectKey(tt.prefix, tt.key); got != tt.want {
			t.Errorf("objectKey(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	t.Run("Local By Default", func(t *testing.T) {
		s, err := New(context.Background(), shared.StorageConfig{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if s.Name() != "local" {
			t.Errorf("expected local sink, got %s", s.Name())
		}
	})

	t.Run("S3", func(t *testing.T) {
		s, err := New(context.Background(), shared.StorageConfig{
			Backend: "s3", Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s", Endpoint: "http://localhost:9000",
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if s.Name() != "s3" {
			t.Errorf("expected s3 sink, got %s", s.Name())
		}
	})

	t.Run("Unknown Backend", func(t *testing.T) {
		if _, err := New(context.Background(), shared.StorageConfig{Backend: "ftp"}); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("Missing Bucket", func(t *testing.T) {
		if _, err := New(context.Background(), shared.StorageConfig{Backend: "s3"}); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
		if _, err := New(context.Background(), shared.StorageConfig{Backend: "gcs"}); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestLocalSink(t *testing.T) {
	p := writeArtifact(t)
	got, err := LocalSink{}.Put(context.Background(), p, "ignored")
	if err != nil || got != p {
		t.Errorf("expected %s, got %s (%v)", p, got, err)
	}
}

func TestS3Sink(t *testing.T) {
	t.Run("Uploads Under Prefix", func(t *testing.T) {
		up := &fakeUploader{}
		s := NewS3SinkWithUploader("videos", "vbx/run-1", up)

		uri, err := s.Put(context.Background(), writeArtifact(t), "1_sunset.mp4")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if uri != "s3://videos/vbx/run-1/1_sunset.mp4" {
			t.Errorf("unexpected uri %s", uri)
		}
		if aws.ToString(up.input.Bucket) != "videos" || aws.ToString(up.input.ContentType) != "video/mp4" {
			t.Errorf("unexpected input %+v", up.input)
		}
		if string(up.body) != "mp4" {
			t.Errorf("unexpected body %q", up.body)
		}
	})

	t.Run("Upload Error", func(t *testing.T) {
		s := NewS3SinkWithUploader("videos", "", &fakeUploader{err: errors.New("denied")})
		if _, err := s.Put(context.Background(), writeArtifact(t), "a.mp4"); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		s := NewS3SinkWithUploader("videos", "", &fakeUploader{})
		if _, err := s.Put(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"), "a.mp4"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestGCSSink(t *testing.T) {
	t.Run("Streams To Writer", func(t *testing.T) {
		buf := &bufferCloser{}
		var gotBucket, gotObject string
		s := NewGCSSinkWithWriter("videos", "vbx", func(ctx context.Context, bucket, object string) io.WriteCloser {
			gotBucket, gotObject = bucket, object
			return buf
		})

		uri, err := s.Put(context.Background(), writeArtifact(t), "1_sunset.mp4")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if uri != "gs://videos/vbx/1_sunset.mp4" {
			t.Errorf("unexpected uri %s", uri)
		}
		if gotBucket != "videos" || gotObject != "vbx/1_sunset.mp4" {
			t.Errorf("unexpected target %s/%s", gotBucket, gotObject)
		}
		if buf.String() != "mp4" || !buf.closed {
			t.Errorf("expected content written and writer closed")
		}
		if err := s.Close(); err != nil {
			t.Errorf("expected nil close without client, got %v", err)
		}
	})

	t.Run("Close Error", func(t *testing.T) {
		s := NewGCSSinkWithWriter("videos", "", func(ctx context.Context, bucket, object string) io.WriteCloser {
			return &bufferCloser{closeErr: errors.New("precondition failed")}
		})
		if _, err := s.Put(context.Background(), writeArtifact(t), "a.mp4"); err == nil {
			t.Error("expected error")
		}
	})
}
