// Package storage uploads user media to an S3-compatible object store and
// stages multipart uploads on local disk before they are sent.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/iliyamo/video-share-api/internal/config"
	"github.com/iliyamo/video-share-api/internal/model"
)

// objectAPI is the subset of *s3.Client used here.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Store uploads and deletes objects in a single bucket.  Every call is
// bounded by Timeout; an expired deadline is reported as
// context.DeadlineExceeded so callers can classify it.
type S3Store struct {
	api     objectAPI
	bucket  string
	folder  string
	baseURL string
	timeout time.Duration
	now     func() time.Time
}

// NewS3Store builds an S3 client from sc using static credentials and a
// custom endpoint (path-style, so MinIO works out of the box).
func NewS3Store(ctx context.Context, sc config.StorageConfig) (*S3Store, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(sc.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			sc.AccessKey,
			sc.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if sc.Endpoint != "" {
			o.BaseEndpoint = aws.String(sc.Endpoint)
		}
		o.UsePathStyle = true
	})

	base := sc.PublicBaseURL
	if base == "" {
		base = strings.TrimRight(sc.Endpoint, "/") + "/" + sc.Bucket
	}
	return newS3Store(client, sc.Bucket, sc.Folder, base, sc.Timeout), nil
}

func newS3Store(api objectAPI, bucket, folder, baseURL string, timeout time.Duration) *S3Store {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &S3Store{
		api:     api,
		bucket:  bucket,
		folder:  strings.Trim(folder, "/"),
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		now:     time.Now,
	}
}

// objectKey returns <folder>/<yyyy>/<mm>/<dd>/<uuid><ext>.
func (s *S3Store) objectKey(ext string) string {
	d := s.now().UTC()
	name := uuid.NewString() + strings.ToLower(ext)
	return path.Join(s.folder, fmt.Sprintf("%04d/%02d/%02d", d.Year(), d.Month(), d.Day()), name)
}

// URLFor returns the public URL of key.
func (s *S3Store) URLFor(key string) string {
	return s.baseURL + "/" + key
}

// KeyFromURL recovers the object key from a URL produced by URLFor.  It
// returns "" for URLs that do not belong to this store.
func (s *S3Store) KeyFromURL(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, s.baseURL+"/") {
		return ""
	}
	key := strings.TrimPrefix(raw, s.baseURL+"/")
	if u, err := url.PathUnescape(key); err == nil {
		key = u
	}
	return key
}

// Upload sends the file at localPath to the bucket and returns its asset.
// The local file is not removed; staging owns that.
func (s *S3Store) Upload(ctx context.Context, localPath, contentType string) (model.Asset, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return model.Asset{}, fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return model.Asset{}, fmt.Errorf("stat staged file: %w", err)
	}

	key := s.objectKey(filepath.Ext(localPath))
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(st.Size()),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.api.PutObject(ctx, in); err != nil {
		return model.Asset{}, fmt.Errorf("put object %s: %w", key, err)
	}
	return model.Asset{URL: s.URLFor(key), Key: key}, nil
}

// Delete removes the object stored under key.  Deleting a missing key is not
// an error on S3.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}
