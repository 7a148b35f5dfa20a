package objstore

import (
	"context"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultPartSize is the multipart upload part size.
const DefaultPartSize = 10 * 1024 * 1024

// minioAPI is the subset of *minio.Client used by MinIOStore.
type minioAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// MinIOConfig configures the MinIO gateway.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
	PartSize  uint64
}

// MinIOStore implements Store on an S3-compatible MinIO bucket.
type MinIOStore struct {
	client minioAPI
	cfg    MinIOConfig
}

// NewMinIOStore connects to MinIO and makes sure the bucket exists.
func NewMinIOStore(ctx context.Context, cfg MinIOConfig) (*MinIOStore, error) {
	applyDefaults(&cfg)
	if cfg.Endpoint == "" {
		return nil, eris.New("objstore: minio endpoint is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, eris.Wrap(err, "objstore: create minio client")
	}
	s := &MinIOStore{client: client, cfg: cfg}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	zap.L().Info("objstore: minio connected",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("bucket", cfg.Bucket),
		zap.Bool("ssl", cfg.UseSSL),
	)
	return s, nil
}

func applyDefaults(cfg *MinIOConfig) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.PartSize == 0 {
		cfg.PartSize = DefaultPartSize
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "atm-location-assessment"
	}
}

func (s *MinIOStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return eris.Wrapf(err, "objstore: check bucket %s", s.cfg.Bucket)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return eris.Wrapf(err, "objstore: create bucket %s", s.cfg.Bucket)
	}
	zap.L().Info("objstore: created bucket", zap.String("bucket", s.cfg.Bucket))
	return nil
}

// Download copies an object to a local file.
func (s *MinIOStore) Download(ctx context.Context, key, dest string) error {
	if err := s.client.FGetObject(ctx, s.cfg.Bucket, key, dest, minio.GetObjectOptions{}); err != nil {
		return eris.Wrapf(err, "objstore: download %s/%s", s.cfg.Bucket, key)
	}
	return nil
}

// Upload stores an object.
func (s *MinIOStore) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	info, err := s.client.PutObject(ctx, s.cfg.Bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
		PartSize:    s.cfg.PartSize,
	})
	if err != nil {
		return eris.Wrapf(err, "objstore: upload %s/%s", s.cfg.Bucket, key)
	}
	zap.L().Debug("objstore: uploaded",
		zap.String("bucket", s.cfg.Bucket),
		zap.String("key", key),
		zap.Int64("bytes", info.Size),
	)
	return nil
}

// Exists reports whether key is present in the bucket.
func (s *MinIOStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.cfg.Bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, eris.Wrapf(err, "objstore: stat %s/%s", s.cfg.Bucket, key)
}
