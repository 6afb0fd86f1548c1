package storage

import (
	"context"
	"fmt"
	"time"

	"cv-smart-go/internal/apperr"
	"cv-smart-go/internal/config"
	"cv-smart-go/pkg/log"
)

// RetryPolicy 描述上传失败后的重试方式：一次初次尝试加最多 MaxRetries 次重试，间隔固定为 Delay。
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetryPolicy 对应 3 次重试、1 秒固定间隔。
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, Delay: time.Second}

// PolicyFromConfig 把配置转换为 RetryPolicy，负值按 0 处理。
func PolicyFromConfig(cfg config.UploadConfig) RetryPolicy {
	p := RetryPolicy{MaxRetries: cfg.MaxRetries, Delay: cfg.Delay}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

// Uploader 在 ObjectStore 之上加了有界重试。
type Uploader struct {
	store  ObjectStore
	policy RetryPolicy
	// sleep 可在测试中替换，返回 ctx.Err() 表示等待被取消。
	sleep func(ctx context.Context, d time.Duration) error
}

func NewUploader(store ObjectStore, policy RetryPolicy) *Uploader {
	return &Uploader{store: store, policy: policy, sleep: sleepCtx}
}

// Upload 写入对象并返回 key。重试耗尽后返回 Upload 类错误，包装最后一次失败原因。
func (u *Uploader) Upload(ctx context.Context, bucket, key string, data []byte, opts UploadOptions) (string, error) {
	attempts := u.policy.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", apperr.Wrapf(apperr.Upload, "storage.Upload", err, "%s/%s cancelled before attempt %d", bucket, key, attempt)
		}

		err := u.store.Upload(ctx, bucket, key, data, opts)
		if err == nil {
			if attempt > 1 {
				log.Infof("[Uploader] 上传成功 %s/%s (第 %d 次尝试)", bucket, key, attempt)
			}
			return key, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		log.Warnw("[Uploader] 上传失败，准备重试",
			"bucket", bucket,
			"key", key,
			"attempt", attempt,
			"maxRetries", u.policy.MaxRetries,
			"delay", u.policy.Delay.String(),
			"error", err,
		)
		if err := u.sleep(ctx, u.policy.Delay); err != nil {
			return "", apperr.Wrapf(apperr.Upload, "storage.Upload", err, "%s/%s cancelled during retry delay", bucket, key)
		}
	}
	log.Errorw("[Uploader] 重试耗尽，上传失败", "bucket", bucket, "key", key, "attempts", attempts, "error", lastErr)
	return "", apperr.Wrapf(apperr.Upload, "storage.Upload", lastErr,
		"%s/%s failed after %d retries", bucket, key, u.policy.MaxRetries)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// String 便于日志输出。
func (p RetryPolicy) String() string {
	return fmt.Sprintf("retries=%d delay=%s", p.MaxRetries, p.Delay)
}
