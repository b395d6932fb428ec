package storage

import (
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const (
	defaultBucket      = "posters"
	defaultContentType = "image/png"
)

type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	bucket          string
	accessKey       string
	secretAccessKey string
	contentType     string
	useSSL          bool
}

func newConfig(opts ...MinioOpts) *minioConfig {
	cfg := &minioConfig{
		bucket:      defaultBucket,
		contentType: defaultContentType,
		useSSL:      false,
	}

	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// Minio stores artifacts as objects of an S3 bucket.
type Minio struct {
	cfg    *minioConfig
	client *minio.Client
}

// NewMinio connects to the endpoint and creates the bucket when it does not exist.
func NewMinio(ctx context.Context, opts ...MinioOpts) (*Minio, error) {
	cfg := newConfig(opts...)

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, cfg.bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
		zap.S().Named("storage").Infow("created bucket", "bucket", cfg.bucket)
	}

	return &Minio{cfg: cfg, client: client}, nil
}

func (s *Minio) Save(ctx context.Context, name string, r io.Reader, size int64) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, s.cfg.bucket, name, r, size, minio.PutObjectOptions{ContentType: s.cfg.contentType})
	return err
}

func (s *Minio) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	object, err := s.client.GetObject(ctx, s.cfg.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, notFound(err)
	}

	// GetObject is lazy, stat to surface a missing key now
	if _, err := object.Stat(); err != nil {
		object.Close()
		return nil, notFound(err)
	}
	return object, nil
}

func (s *Minio) Delete(ctx context.Context, name string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	return s.client.RemoveObject(ctx, s.cfg.bucket, name, minio.RemoveObjectOptions{})
}

func (s *Minio) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	removed := 0
	for obj := range s.client.ListObjects(ctx, s.cfg.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return removed, obj.Err
		}
		if !obj.LastModified.Before(olderThan) {
			continue
		}
		if err := s.client.RemoveObject(ctx, s.cfg.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			zap.S().Named("storage").Warnw("failed to prune artifact", "name", obj.Key, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (s *Minio) Type() string {
	return "minio"
}

func notFound(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return err
}

func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) {
		c.endpoint = endpoint
	}
}

func WithBucket(bucket string) MinioOpts {
	return func(c *minioConfig) {
		c.bucket = bucket
	}
}

func WithAccessKey(accessKey string) MinioOpts {
	return func(c *minioConfig) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) MinioOpts {
	return func(c *minioConfig) {
		c.secretAccessKey = secretKey
	}
}

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) {
		c.useSSL = useSSL
	}
}

func WithContentType(contentType string) MinioOpts {
	return func(c *minioConfig) {
		c.contentType = contentType
	}
}
