package deliver

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"comfyd/internal/config"
)

// Uploader puts a local file at key and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}

// storageIncompleteError marks uploads skipped because the storage
// settings are partial. The pipeline treats it like any other upload
// failure and falls back.
type storageIncompleteError struct{}

func (storageIncompleteError) Error() string { return "s3 configuration is incomplete" }

// IsStorageIncomplete reports whether err means storage was never
// fully configured.
func IsStorageIncomplete(err error) bool {
	var t storageIncompleteError
	return errors.As(err, &t)
}

// S3Uploader ships files to an S3-compatible endpoint using path-style
// addressing, which matches the public URL shape {endpoint}/{bucket}/{key}.
type S3Uploader struct {
	cfg     config.StorageConfig
	client  *s3.Client
	initErr error
}

// NewS3Uploader builds the uploader. With incomplete settings no client
// is constructed and every Upload returns storageIncompleteError.
func NewS3Uploader(cfg config.StorageConfig) *S3Uploader {
	u := &S3Uploader{cfg: cfg}
	if !cfg.Complete() {
		return u
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		u.initErr = fmt.Errorf("load aws config: %w", err)
		return u
	}
	u.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.EndpointURL)
		o.UsePathStyle = true
	})
	return u
}

// Upload puts localPath at key and returns the public URL.
func (u *S3Uploader) Upload(ctx context.Context, localPath, key string) (string, error) {
	if !u.cfg.Complete() {
		return "", storageIncompleteError{}
	}
	if u.initErr != nil {
		return "", u.initErr
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	in := &s3.PutObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if ct := mime.TypeByExtension(filepath.Ext(localPath)); ct != "" {
		in.ContentType = aws.String(ct)
	}
	if _, err := u.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return u.URL(key), nil
}

// URL is the public location of key.
func (u *S3Uploader) URL(key string) string {
	return strings.TrimRight(u.cfg.EndpointURL, "/") + "/" + u.cfg.Bucket + "/" + key
}
