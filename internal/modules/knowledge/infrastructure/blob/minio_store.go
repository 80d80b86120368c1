package blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"KnowledgeHub/internal/config"
	"KnowledgeHub/internal/modules/knowledge/domain/repository"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore 对象存储；URL 由 publicURL 或 endpoint 拼接
type MinioStore struct {
	client    *minio.Client
	bucket    string
	urlPrefix string
}

var _ repository.BlobStore = (*MinioStore)(nil)

func NewMinioStore(ctx context.Context, conf config.MinioConfig) (*MinioStore, error) {
	client, err := minio.New(conf.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKey, conf.SecretKey, ""),
		Secure: conf.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, conf.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, conf.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	prefix := strings.TrimSuffix(strings.TrimSpace(conf.PublicURL), "/")
	if prefix == "" {
		scheme := "http"
		if conf.UseSSL {
			scheme = "https"
		}
		prefix = scheme + "://" + conf.Endpoint
	}
	return &MinioStore{client: client, bucket: conf.Bucket, urlPrefix: prefix}, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, content []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return s.URL(key), nil
}

func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *MinioStore) URL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.urlPrefix, s.bucket, key)
}
