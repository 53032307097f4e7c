package service

import (
	"context"
	"encoding/json"

	"tipbot-core/internal/service/mq"
)

// DirectPublisher 不经过 outbox，直接把事件写入 MQ (内存存储模式使用)
type DirectPublisher struct {
	producer mq.Producer
}

func NewDirectPublisher(producer mq.Producer) *DirectPublisher {
	return &DirectPublisher{producer: producer}
}

func (p *DirectPublisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, topic, "", data)
}
