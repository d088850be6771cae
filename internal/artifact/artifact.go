// Package artifact uploads exported statement files to S3 compatible storage.
package artifact

import (
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/statement-cli/internal/config"
)

// Store uploads and fetches artifacts by key.
type Store interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
}

// S3 is a Store backed by minio-go.
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
}

// New connects to the configured endpoint and makes sure the bucket exists.
// It returns nil, nil when no endpoint is configured.
func New(ctx context.Context, cfg config.StorageConfig) (*S3, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	if cfg.Bucket == "" {
		return nil, eris.New("artifact: storage.bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, eris.Wrap(err, "artifact: create client")
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: check bucket %s", cfg.Bucket)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, eris.Wrapf(err, "artifact: create bucket %s", cfg.Bucket)
		}
		zap.L().Info("artifact: created bucket", zap.String("bucket", cfg.Bucket))
	}

	return &S3{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Key builds the object key for a run's output file.
func (s *S3) Key(runID, name string) string {
	if runID == "" {
		runID = "adhoc"
	}
	return path.Join(s.prefix, runID, path.Base(name))
}

func (s *S3) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return eris.Wrapf(err, "artifact: upload %s", key)
	}
	zap.L().Debug("artifact: uploaded",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.Int("bytes", len(data)),
	)
	return nil
}

func (s *S3) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: get %s", key)
	}
	defer obj.Close() //nolint:errcheck

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj); err != nil {
		return nil, eris.Wrapf(err, "artifact: read %s", key)
	}
	return buf.Bytes(), nil
}
