package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"cv-smart-go/internal/config"
	"cv-smart-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore 是基于 MinIO 的 ObjectStore 实现。
type MinioStore struct {
	client  *minio.Client
	baseURL string
}

// NewMinioStore 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewMinioStore(ctx context.Context, cfg config.MinIOConfig, publicBaseURL string, buckets ...string) (*MinioStore, error) {
	// 1. 初始化 MinIO 客户端
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	if publicBaseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicBaseURL = scheme + "://" + cfg.Endpoint
	}
	s := &MinioStore{client: client, baseURL: publicBaseURL}

	// 2. 检查存储桶 (Bucket) 是否存在，如果不存在则创建
	for _, bucket := range buckets {
		if err := s.ensureBucket(ctx, bucket); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("检查 MinIO 存储桶 '%s' 失败: %w", bucket, err)
	}
	if exists {
		log.Infof("存储桶 '%s' 已存在", bucket)
		return nil
	}
	log.Infof("存储桶 '%s' 不存在，正在创建...", bucket)
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("创建 MinIO 存储桶 '%s' 失败: %w", bucket, err)
	}
	log.Infof("存储桶 '%s' 创建成功", bucket)
	return nil
}

// Upload 写入对象，同名对象直接覆盖。
func (s *MinioStore) Upload(ctx context.Context, bucket, key string, data []byte, opts UploadOptions) error {
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
	})
	return err
}

func (s *MinioStore) Remove(ctx context.Context, bucket, key string) error {
	return s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}

func (s *MinioStore) PublicURL(bucket, key string) string {
	return joinURL(s.baseURL, bucket, key)
}

// PresignedURL generates a presigned URL for a given object.
func (s *MinioStore) PresignedURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, bucket, key, expiry, nil)
	if err != nil {
		log.Errorf("Error generating presigned URL: %s", err)
		return "", err
	}
	return u.String(), nil
}
