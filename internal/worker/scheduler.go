package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"tipbot-core/internal/service/droptip"
	"tipbot-core/internal/worker/tasks"
	"tipbot-core/pkg/logger"
)

// Enqueuer asynq 客户端的子集
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
}

// AsynqScheduler 基于 Redis 的延迟任务实现 droptip.Scheduler，进程重启后任务不丢失，
// 多个实例中只有一个 worker 会执行同一个结算任务。
type AsynqScheduler struct {
	client Enqueuer

	mu      sync.RWMutex
	handler droptip.Handler
}

// runningTaskKey 标记 ctx 来自某个 droptip 的结算任务
type runningTaskKey struct{}

func NewAsynqScheduler(client Enqueuer) *AsynqScheduler {
	return &AsynqScheduler{client: client}
}

func (s *AsynqScheduler) Start(handler droptip.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
	return nil
}

func (s *AsynqScheduler) Schedule(ctx context.Context, droptipID uint64, at time.Time) error {
	task, err := tasks.NewDroptipSettleTask(droptipID)
	if err != nil {
		return err
	}
	// 正在执行的任务仍占用原来的 TaskID，提前到达时只能换一个 ID 重新入队
	taskID := tasks.SettleTaskID(droptipID)
	if running, ok := ctx.Value(runningTaskKey{}).(uint64); ok && running == droptipID {
		taskID = tasks.RetrySettleTaskID(droptipID, at)
	}
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(at),
		asynq.TaskID(taskID),
		asynq.Queue(tasks.QueueCritical),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// 重启恢复时重复注册
		logger.Debug("[Worker] 结算任务已存在", zap.String("task_id", taskID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue settle task: %w", err)
	}
	return nil
}

func (s *AsynqScheduler) Cancel(droptipID uint64) {
	err := s.client.DeleteTask(tasks.QueueCritical, tasks.SettleTaskID(droptipID))
	if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		logger.Debug("[Worker] 删除结算任务失败", zap.Uint64("droptip_id", droptipID), zap.Error(err))
	}
}

func (s *AsynqScheduler) Stop() {}

// Handler 注册到 worker.Server 的任务处理器
func (s *AsynqScheduler) Handler() asynq.Handler {
	return tasks.NewDroptipSettleHandler(func(ctx context.Context, droptipID uint64) {
		s.mu.RLock()
		h := s.handler
		s.mu.RUnlock()
		if h == nil {
			logger.Warn("[Worker] 结算任务到达时引擎尚未启动", zap.Uint64("droptip_id", droptipID))
			return
		}
		h(context.WithValue(ctx, runningTaskKey{}, droptipID), droptipID)
	})
}
