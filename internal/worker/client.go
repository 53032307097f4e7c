package worker

import (
	"context"

	"github.com/hibiken/asynq"
)

// Client 封装 Asynq Client
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewClient 初始化 Client
// addr: "localhost:6379"
func NewClient(addr string, password string, db int) *Client {
	opt := asynq.RedisClientOpt{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
	return &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}
}

// EnqueueContext 将任务推送到队列
func (c *Client) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, task, opts...)
}

// DeleteTask 删除尚未执行的任务
func (c *Client) DeleteTask(queue, id string) error {
	return c.inspector.DeleteTask(queue, id)
}

// Close 关闭客户端连接
func (c *Client) Close() error {
	if err := c.inspector.Close(); err != nil {
		return err
	}
	return c.client.Close()
}
