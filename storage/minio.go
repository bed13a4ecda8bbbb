package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"spotsort-be/utils"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore keeps issue and resolution photos in a single bucket, one
// prefix per Kind. Refs are object keys.
type MinioStore struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

// NewMinioStore connects and creates the bucket if it is missing.
func NewMinioStore(ctx context.Context, opts MinioOptions, logger *logrus.Logger) (*MinioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", opts.Bucket, err)
		}
		logger.WithField("bucket", opts.Bucket).Info("bucket created")
	}

	return &MinioStore{client: client, bucket: opts.Bucket, now: time.Now}, nil
}

func (s *MinioStore) Put(ctx context.Context, kind Kind, img Image) (string, error) {
	key := ObjectKey(kind, s.now(), img.Ext())

	_, err := s.client.PutObject(ctx, s.bucket, key, img.Reader, img.Size, minio.PutObjectOptions{
		ContentType: img.ContentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

func (s *MinioStore) Delete(ctx context.Context, ref string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, ref, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", ref, err)
	}
	return nil
}

// ObjectKey builds kind/yyyy/mm/<random><ext>.
func ObjectKey(kind Kind, at time.Time, ext string) string {
	var b strings.Builder
	b.WriteString(string(kind))
	b.WriteString(at.UTC().Format("/2006/01/"))
	b.WriteString(utils.NanoIDSize(21))
	b.WriteString(ext)
	return b.String()
}
