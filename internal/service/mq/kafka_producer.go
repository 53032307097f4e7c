package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"tipbot-core/pkg/logger"
)

// KafkaProducer 实现 Producer 接口
type KafkaProducer struct {
	writer       *kafka.Writer
	defaultTopic string
}

// NewKafkaProducer 创建 Kafka 生产者
// brokers: Kafka 节点地址列表 (e.g. ["localhost:9092"])
// topic: 默认主题 (Publish 没有指定时使用)
func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},    // 按 Key 哈希，同一个 Key 的消息有序
		AllowAutoTopicCreation: true,             // 开发环境允许自动创建 Topic
		RequiredAcks:           kafka.RequireAll, // 强一致性: 等待所有 ISR 副本确认
		BatchSize:              100,              // 批量发送大小
		BatchTimeout:           10 * time.Millisecond,
	}

	return &KafkaProducer{
		writer:       writer,
		defaultTopic: topic,
	}
}

// Publish 发送消息到 Kafka
func (p *KafkaProducer) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	if topic == "" {
		topic = p.defaultTopic
	}
	// Writer 没有设置 Topic，每条消息自己指定
	msg := kafka.Message{
		Topic: topic,
		Value: payload,
		Key:   []byte(key), // 使用传入的 Key 保证分区有序
	}

	// 发送 (底层是异步批量的，但在 Writer 层面是阻塞等待 Ack)
	err := p.writer.WriteMessages(ctx, msg)
	if err != nil {
		logger.Error("[Kafka] Publish Error", zap.String("topic", topic), zap.Error(err))
		return fmt.Errorf("kafka write error: %w", err)
	}

	return nil
}

// Close 关闭连接
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
