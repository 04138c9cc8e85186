// Package uploader transfers finished backup archives to remote
// storage. Like the archiver it is a collaborator of the backup core:
// it consumes whole archive files and never inspects individual backup
// entries.
package uploader

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"credbak/internal/config"
)

// S3Uploader uploads archives to an S3 bucket using multipart uploads
// for large files.
type S3Uploader struct {
	client manager.UploadAPIClient
	bucket string
	prefix string
}

// NewS3Uploader builds an uploader from config. Static credentials from
// the config take precedence; otherwise the default AWS credential
// chain applies.
func NewS3Uploader(ctx context.Context, cfg config.UploadConfig) (*S3Uploader, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("no s3 bucket configured")
	}

	var opts []func(*awscfg.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awscfg.WithRegion(cfg.S3Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsConfig, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return &S3Uploader{
		client: s3.NewFromConfig(awsConfig),
		bucket: cfg.S3Bucket,
		prefix: cfg.S3Prefix,
	}, nil
}

// NewS3UploaderWithClient builds an uploader around an existing client.
// Used by tests.
func NewS3UploaderWithClient(client manager.UploadAPIClient, bucket, prefix string) *S3Uploader {
	return &S3Uploader{client: client, bucket: bucket, prefix: prefix}
}

// ObjectKey returns the S3 object key an archive file will be stored
// under.
func (u *S3Uploader) ObjectKey(archivePath string) string {
	return path.Join(u.prefix, filepath.Base(archivePath))
}

// Upload transfers the archive at archivePath and returns the object
// key it was stored under.
func (u *S3Uploader) Upload(ctx context.Context, archivePath string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	key := u.ObjectKey(archivePath)
	up := manager.NewUploader(u.client)
	if _, err := up.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return "", fmt.Errorf("uploading to s3://%s/%s: %w", u.bucket, key, err)
	}
	return key, nil
}
