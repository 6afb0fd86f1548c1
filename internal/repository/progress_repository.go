package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cv-smart-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// Progress 是分析过程中某一时刻的累计快照。
type Progress struct {
	DocumentID string           `json:"documentId"`
	Status     model.Status     `json:"status"`
	Completed  []model.Category `json:"completed"`
	Analysis   model.CVAnalysis `json:"analysis"`
	Error      string           `json:"error,omitempty"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// Done 报告快照是否处于终态。
func (p Progress) Done() bool {
	return p.Status == model.StatusAnalyzed || p.Status == model.StatusError
}

// ProgressRepository 在 Redis 中保存最新快照，并通过 pub/sub 推送快照。
type ProgressRepository interface {
	Save(ctx context.Context, p Progress) error
	Latest(ctx context.Context, documentID string) (*Progress, error)
	// Subscribe 返回的 channel 在 ctx 结束后关闭。
	Subscribe(ctx context.Context, documentID string) (<-chan Progress, error)
}

type redisProgressRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewProgressRepository 创建一个新的 ProgressRepository 实例。
func NewProgressRepository(redisClient *redis.Client, ttl time.Duration) ProgressRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &redisProgressRepository{redisClient: redisClient, ttl: ttl}
}

func progressKey(documentID string) string {
	return fmt.Sprintf("analysis:progress:%s", documentID)
}

func progressChannel(documentID string) string {
	return fmt.Sprintf("analysis:progress:events:%s", documentID)
}

// Save 覆盖最新快照并发布到该文档的频道。
func (r *redisProgressRepository) Save(ctx context.Context, p Progress) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	pipe := r.redisClient.TxPipeline()
	pipe.Set(ctx, progressKey(p.DocumentID), data, r.ttl)
	pipe.Publish(ctx, progressChannel(p.DocumentID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

// Latest 返回最新快照，不存在时返回 nil, nil。
func (r *redisProgressRepository) Latest(ctx context.Context, documentID string) (*Progress, error) {
	data, err := r.redisClient.Get(ctx, progressKey(documentID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	return &p, nil
}

func (r *redisProgressRepository) Subscribe(ctx context.Context, documentID string) (<-chan Progress, error) {
	sub := r.redisClient.Subscribe(ctx, progressChannel(documentID))
	// 等待订阅确认，保证之后发布的消息不会丢失
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe progress: %w", err)
	}

	out := make(chan Progress, 8)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var p Progress
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					continue
				}
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
