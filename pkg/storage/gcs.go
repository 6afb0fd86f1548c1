package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"cv-smart-go/pkg/log"

	gcs "cloud.google.com/go/storage"
)

// GCSStore 是基于 Google Cloud Storage 的 ObjectStore 实现，凭据走 ADC。
type GCSStore struct {
	client  *gcs.Client
	baseURL string
}

func NewGCSStore(ctx context.Context, publicBaseURL string) (*GCSStore, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	if publicBaseURL == "" {
		publicBaseURL = "https://storage.googleapis.com"
	}
	log.Info("GCS 客户端初始化成功")
	return &GCSStore{client: client, baseURL: publicBaseURL}, nil
}

// Upload 不带 DoesNotExist 前置条件，重试时覆盖已有对象。
func (s *GCSStore) Upload(ctx context.Context, bucket, key string, data []byte, opts UploadOptions) error {
	w := s.client.Bucket(bucket).Object(key).NewWriter(ctx)
	w.ContentType = opts.ContentType
	w.CacheControl = opts.CacheControl
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write to gcs://%s/%s: %w", bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
	}
	return nil
}

func (s *GCSStore) Remove(ctx context.Context, bucket, key string) error {
	err := s.client.Bucket(bucket).Object(key).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (s *GCSStore) PublicURL(bucket, key string) string {
	return joinURL(s.baseURL, bucket, (&url.URL{Path: key}).EscapedPath())
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
