// Package objstore downloads source imagery from cloud object storage. The
// core depends only on the Downloader interface; the S3 implementation is
// the production client.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials/stscreds"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"tileview/internal/models"
)

// Downloader fetches one object into a local file.
type Downloader interface {
	Download(ctx context.Context, bucket, key, destPath string) error
}

type S3Client struct {
	downloader *s3manager.Downloader
}

// NewS3 builds an S3 client for the region, assuming roleARN first when one
// is configured.
func NewS3(region, roleARN string) (*S3Client, error) {
	const op = "objstore.NewS3"

	sess, err := session.NewSession(aws.NewConfig().WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	cfg := aws.NewConfig()
	if roleARN != "" {
		cfg = cfg.WithCredentials(stscreds.NewCredentials(sess, roleARN))
	}
	return &S3Client{downloader: s3manager.NewDownloader(sess, func(d *s3manager.Downloader) {
		d.S3 = s3.New(sess, cfg)
	})}, nil
}

// Download writes the object to destPath, creating parent directories.
// Missing buckets or objects map to models.ErrBucketNotFound and forbidden
// access to models.ErrAccessDenied so callers can fail without retrying.
func (c *S3Client) Download(ctx context.Context, bucket, key, destPath string) error {
	const op = "objstore.Download"

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	_, err = c.downloader.DownloadWithContext(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		os.Remove(destPath)
		return fmt.Errorf("%s: %w", op, classify(err))
	}
	return nil
}

func classify(err error) error {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return err
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchBucket, s3.ErrCodeNoSuchKey, "NotFound":
		return fmt.Errorf("%w: %v", models.ErrBucketNotFound, err)
	case "AccessDenied", "Forbidden":
		return fmt.Errorf("%w: %v", models.ErrAccessDenied, err)
	}
	return err
}
