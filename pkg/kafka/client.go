// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cv-smart-go/internal/config"
	"cv-smart-go/pkg/log"
	"cv-smart-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// TaskProcessor defines the interface for any service that can process an analysis task.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.AnalysisTask) error
}

// Producer 发送分析任务到 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers(cfg.Brokers)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// ProduceAnalysisTask 发送一个分析任务，以文档 ID 作为消息 key 保证同一文档的任务有序。
func (p *Producer) ProduceAnalysisTask(ctx context.Context, task tasks.AnalysisTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.DocumentID),
		Value: taskBytes,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func brokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// messageReader 是 kafka.Reader 中消费循环用到的部分，便于测试。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer 消费分析任务。失败次数记录在 Redis 中，达到阈值后提交 offset 放弃该消息。
type Consumer struct {
	reader      messageReader
	processor   TaskProcessor
	rdb         *redis.Client
	maxAttempts int64
	backoff     time.Duration
}

// NewConsumer 创建一个 Kafka 消费者。
func NewConsumer(cfg config.KafkaConfig, processor TaskProcessor, rdb *redis.Client) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(r, processor, rdb, cfg.MaxAttempts)
}

func newConsumer(r messageReader, processor TaskProcessor, rdb *redis.Client, maxAttempts int64) *Consumer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Consumer{reader: r, processor: processor, rdb: rdb, maxAttempts: maxAttempts, backoff: 2 * time.Second}
}

func attemptsKey(documentID string) string {
	return fmt.Sprintf("kafka:attempts:%s", documentID)
}

// Run 阻塞消费直到 ctx 结束。
func (c *Consumer) Run(ctx context.Context) {
	log.Info("Kafka 消费者已启动")
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		c.handle(ctx, m)
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	log.Infof("收到 Kafka 消息: offset %d", m.Offset)

	var task tasks.AnalysisTask
	if err := json.Unmarshal(m.Value, &task); err != nil || task.DocumentID == "" {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		// 消息格式错误，直接提交，避免阻塞队列
		c.commit(m)
		return
	}

	log.Infof("开始处理分析任务: DocumentID=%s", task.DocumentID)
	key := attemptsKey(task.DocumentID)
	for {
		err := c.processor.Process(ctx, task)
		if err == nil {
			log.Infof("分析任务处理成功: DocumentID=%s", task.DocumentID)
			_ = c.rdb.Del(ctx, key).Err()
			c.commit(m)
			return
		}
		log.Errorf("处理分析任务失败: DocumentID=%s, Error: %v", task.DocumentID, err)
		if ctx.Err() != nil {
			// 关闭过程中被中断，不提交 offset，交给下一个消费者
			return
		}

		// 失败次数记在 Redis 中，进程重启后依然累计
		attempts, incErr := c.rdb.Incr(ctx, key).Result()
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset，让 Kafka 重新投递
			log.Errorf("记录失败次数失败: %v", incErr)
			return
		}
		_ = c.rdb.Expire(ctx, key, 24*time.Hour).Err()
		if attempts >= c.maxAttempts {
			log.Errorf("分析任务多次失败(>=%d)，提交 offset 终止重试: DocumentID=%s", c.maxAttempts, task.DocumentID)
			_ = c.rdb.Del(ctx, key).Err()
			c.commit(m)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.backoff):
		}
	}
}

func (c *Consumer) commit(m kafka.Message) {
	// offset 提交不跟随 ctx 取消，保证已完成的结果被确认
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}
