// Package storage 提供了与对象存储服务（MinIO / GCS）交互的功能。
package storage

import (
	"context"
	"fmt"
	"strings"

	"cv-smart-go/internal/config"
)

// UploadOptions 描述一次对象写入的元数据。
// 所有实现都按覆盖语义写入，重试时重复写入同一个 key 是安全的。
type UploadOptions struct {
	ContentType  string
	CacheControl string
}

// ObjectStore 是对象存储的最小抽象。
type ObjectStore interface {
	Upload(ctx context.Context, bucket, key string, data []byte, opts UploadOptions) error
	Remove(ctx context.Context, bucket, key string) error
	PublicURL(bucket, key string) string
}

// NewObjectStore 根据 storage.driver 创建对应的实现，并确保所需的存储桶存在。
func NewObjectStore(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	buckets := uniqueBuckets(cfg.DocumentsBucket, cfg.ScreenshotBucket)
	switch strings.ToLower(cfg.Driver) {
	case "", "minio":
		s, err := NewMinioStore(ctx, cfg.MinIO, cfg.PublicBaseURL, buckets...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "gcs":
		s, err := NewGCSStore(ctx, cfg.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func uniqueBuckets(names ...string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool)
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// joinURL 拼接 base/bucket/key，base 为空时返回空串。
func joinURL(base, bucket, key string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + bucket + "/" + strings.TrimLeft(key, "/")
}
