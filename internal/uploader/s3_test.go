package uploader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// fakeS3 captures PutObject calls; the multipart methods are never hit
// for small uploads.
type fakeS3 struct {
	bucket string
	key    string
	body   []byte
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = *in.Bucket
	f.key = *in.Key
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return &s3.UploadPartOutput{}, nil
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return &s3.CreateMultipartUploadOutput{}, nil
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestS3Uploader_ObjectKey(t *testing.T) {
	tests := []struct {
		prefix      string
		archivePath string
		want        string
	}{
		{"", "/data/credbak_20260314.tar.gz", "credbak_20260314.tar.gz"},
		{"backups", "/data/credbak_20260314.tar.gz", "backups/credbak_20260314.tar.gz"},
		{"backups/host1", "credbak.tar.gz.age", "backups/host1/credbak.tar.gz.age"},
	}

	for _, tt := range tests {
		u := NewS3UploaderWithClient(&fakeS3{}, "bucket", tt.prefix)
		if got := u.ObjectKey(tt.archivePath); got != tt.want {
			t.Errorf("ObjectKey(%q, prefix %q) = %q, want %q", tt.archivePath, tt.prefix, got, tt.want)
		}
	}
}

func TestS3Uploader_Upload(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "credbak_20260314.tar.gz")
	if err := os.WriteFile(archive, []byte("archive bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	fake := &fakeS3{}
	u := NewS3UploaderWithClient(fake, "backup-bucket", "host1")

	key, err := u.Upload(context.Background(), archive)
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if key != "host1/credbak_20260314.tar.gz" {
		t.Errorf("key = %q", key)
	}
	if fake.bucket != "backup-bucket" {
		t.Errorf("bucket = %q", fake.bucket)
	}
	if fake.key != key {
		t.Errorf("PutObject key = %q, want %q", fake.key, key)
	}
	if string(fake.body) != "archive bytes" {
		t.Errorf("uploaded body = %q", fake.body)
	}
}

func TestS3Uploader_UploadErrors(t *testing.T) {
	t.Run("missing archive", func(t *testing.T) {
		u := NewS3UploaderWithClient(&fakeS3{}, "bucket", "")
		if _, err := u.Upload(context.Background(), filepath.Join(t.TempDir(), "gone.tar.gz")); err == nil {
			t.Error("Upload() of missing archive = nil error, want error")
		}
	})

	t.Run("client failure", func(t *testing.T) {
		archive := filepath.Join(t.TempDir(), "a.tar.gz")
		if err := os.WriteFile(archive, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
		u := NewS3UploaderWithClient(&fakeS3{err: fmt.Errorf("access denied")}, "bucket", "")
		if _, err := u.Upload(context.Background(), archive); err == nil {
			t.Error("Upload() with failing client = nil error, want error")
		}
	})
}
