package database

import (
	"context"
	"time"

	"cv-smart-go/internal/config"
	"cv-smart-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// RDB 承载分析锁、进度快照和 Kafka 重试计数。
var RDB *redis.Client

// InitRedis 初始化 Redis 客户端，连接失败直接退出。
func InitRedis(cfg config.RedisConfig) {
	RDB = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		// 进度订阅会长期占用连接
		PoolSize:     20,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Fatal("Redis 连接失败", err)
	}
	log.Infof("Redis 连接成功, Addr: %s, DB: %d", cfg.Addr, cfg.DB)
}
