package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tipbot-core/pkg/logger"
)

// 每个 stream 大约保留的条数 (XADD MAXLEN ~)
const DefaultStreamMaxLen = 100000

// RedisProducer 基于 Redis Streams 的 Producer
type RedisProducer struct {
	client *redis.Client
	maxLen int64
}

func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client, maxLen: DefaultStreamMaxLen}
}

// Publish XADD 到以 topic 命名的 stream
func (p *RedisProducer) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	values := map[string]interface{}{"payload": payload}
	if key != "" {
		values["key"] = key
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		MaxLen: p.maxLen,
		Approx: true,
		Values: values,
	}).Err(); err != nil {
		logger.Error("[MQ] Publish Error", zap.String("topic", topic), zap.Error(err))
		return fmt.Errorf("redis xadd error: %w", err)
	}
	return nil
}

// RedisConsumer 消费者组模式读取，handler 成功后才 ACK
type RedisConsumer struct {
	client *redis.Client
	group  string
	name   string
	block  time.Duration
	batch  int64
}

func NewRedisConsumer(client *redis.Client, group, name string) *RedisConsumer {
	return &RedisConsumer{
		client: client,
		group:  group,
		name:   name,
		block:  2 * time.Second,
		batch:  10,
	}
}

// Subscribe 阻塞直到 ctx 取消。
// 先重新处理本消费者名下已投递但未 ACK 的消息 (上次进程退出前未处理完的)，再读取新消息。
func (c *RedisConsumer) Subscribe(ctx context.Context, topic string, handler func(msg *Message) error) error {
	err := c.client.XGroupCreateMkStream(ctx, topic, c.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("创建消费者组失败: %w", err)
	}
	logger.Info("[Redis MQ] 开始监听主题", zap.String("topic", topic), zap.String("group", c.group))

	// 从 "0" 开始按 ID 读取 PEL 中自己的消息，读空后切换到 ">" 只读新消息
	cursor, pending := "0", true
	for {
		if ctx.Err() != nil {
			return nil
		}

		block := c.block
		if pending {
			block = -1 // 读 PEL 不阻塞
		}
		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{topic, cursor},
			Count:    c.batch,
			Block:    block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("[Redis MQ] 读取消息错误", zap.String("topic", topic), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		lastID := ""
		for _, stream := range streams {
			for _, x := range stream.Messages {
				c.dispatch(ctx, topic, x, handler)
				lastID = x.ID
			}
		}
		if pending {
			// 处理失败的消息留在 PEL，游标越过它，避免反复读取同一条
			if lastID == "" {
				cursor, pending = ">", false
			} else {
				cursor = lastID
			}
		}
	}
}

func (c *RedisConsumer) dispatch(ctx context.Context, topic string, x redis.XMessage, handler func(msg *Message) error) {
	payload, ok := x.Values["payload"].(string)
	if !ok {
		// 格式错误的消息永远处理不了，直接 ACK 丢弃
		logger.Warn("[Redis MQ] 消息格式错误: payload 缺失", zap.String("id", x.ID))
		c.ack(ctx, topic, x.ID)
		return
	}
	key, _ := x.Values["key"].(string)

	if err := handler(&Message{ID: x.ID, Topic: topic, Key: key, Payload: []byte(payload)}); err != nil {
		logger.Warn("[Redis MQ] 消息处理失败", zap.String("id", x.ID), zap.Error(err))
		return
	}
	c.ack(ctx, topic, x.ID)
}

func (c *RedisConsumer) ack(ctx context.Context, topic, id string) {
	if err := c.client.XAck(ctx, topic, c.group, id).Err(); err != nil {
		logger.Warn("[Redis MQ] ACK 失败", zap.String("id", id), zap.Error(err))
	}
}

// Close 关闭底层连接
func (c *RedisConsumer) Close() error {
	return c.client.Close()
}
