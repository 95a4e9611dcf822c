package sink

import (
	"context"
	"fmt"
	"io"
	"path"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig holds object store connection settings.
type MinIOConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	Bucket       string
	Prefix       string
	RequireEmpty bool
}

// objectStore is the subset of the MinIO client the sink uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts miniogo.MakeBucketOptions) error
	ListObjects(ctx context.Context, bucket string, opts miniogo.ListObjectsOptions) <-chan miniogo.ObjectInfo
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts miniogo.PutObjectOptions) (miniogo.UploadInfo, error)
}

// MinIO writes artifacts into an S3-compatible bucket under a prefix.
type MinIO struct {
	client       objectStore
	bucket       string
	prefix       string
	requireEmpty bool
}

// NewMinIO connects to the object store described by cfg.
func NewMinIO(cfg MinIOConfig) (*MinIO, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return newMinIO(client, cfg), nil
}

func newMinIO(client objectStore, cfg MinIOConfig) *MinIO {
	return &MinIO{
		client:       client,
		bucket:       cfg.Bucket,
		prefix:       cfg.Prefix,
		requireEmpty: cfg.RequireEmpty,
	}
}

// Kind implements Sink.
func (s *MinIO) Kind() string { return "minio" }

// Location implements Sink.
func (s *MinIO) Location(name string) string {
	return "s3://" + s.bucket + "/" + s.key(name)
}

func (s *MinIO) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Prepare creates the bucket when missing and enforces the emptiness policy
// on the prefix.
func (s *MinIO) Prepare(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
		return nil
	}
	if !s.requireEmpty {
		return nil
	}

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	prefix := s.prefix
	if prefix != "" {
		prefix += "/"
	}
	for obj := range s.client.ListObjects(listCtx, s.bucket, miniogo.ListObjectsOptions{Prefix: prefix, Recursive: true, MaxKeys: 1}) {
		if obj.Err != nil {
			return fmt.Errorf("list bucket %s: %w", s.bucket, obj.Err)
		}
		return fmt.Errorf("%w: s3://%s/%s contains %s", ErrOutputNotEmpty, s.bucket, prefix, obj.Key)
	}
	return nil
}

// Put uploads the artifact.
func (s *MinIO) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), r, size, miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPut, s.Location(name), err)
	}
	return nil
}
