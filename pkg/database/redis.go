package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tipbot-core/pkg/logger"
)

// ConnectRedis 连接到 Redis
// addr: "localhost:6379"
func ConnectRedis(addr string, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("无法连接到 Redis: %w", err)
	}

	logger.Info("Redis 连接成功")
	return rdb, nil
}
