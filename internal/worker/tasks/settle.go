package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"tipbot-core/pkg/logger"
)

// 任务类型常量
const (
	TypeDroptipSettle = "droptip:settle"
	QueueCritical     = "critical"
)

// DroptipSettlePayload 到期结算任务参数
type DroptipSettlePayload struct {
	DroptipID uint64 `json:"droptip_id"`
}

// SettleTaskID 每个 droptip 只有一个结算任务，重复入队会被 asynq 拒绝
func SettleTaskID(droptipID uint64) string {
	return "droptip-settle-" + strconv.FormatUint(droptipID, 10)
}

// RetrySettleTaskID 结算任务执行中重新注册时使用，和正在执行的任务区分开
func RetrySettleTaskID(droptipID uint64, at time.Time) string {
	return SettleTaskID(droptipID) + "-" + strconv.FormatInt(at.Unix(), 10)
}

// NewDroptipSettleTask 创建到期结算任务
func NewDroptipSettleTask(droptipID uint64) (*asynq.Task, error) {
	payload, err := json.Marshal(DroptipSettlePayload{DroptipID: droptipID})
	if err != nil {
		return nil, err
	}
	// 结算失败不自动重试 (已支付的不会重复发送，但失败的需要人工对账)，
	// 数据库暂时不可用的情况由 cron 兜底扫描
	return asynq.NewTask(TypeDroptipSettle, payload, asynq.MaxRetry(0), asynq.Timeout(10*time.Minute)), nil
}

// NewDroptipSettleHandler 把结算回调包装成 asynq 处理器
func NewDroptipSettleHandler(settle func(ctx context.Context, droptipID uint64)) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p DroptipSettlePayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			// JSON 解析失败，重试也没用，直接跳过 (SkipRetry)
			return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
		}
		logger.Info("开始处理到期结算任务", zap.Uint64("droptip_id", p.DroptipID))
		settle(ctx, p.DroptipID)
		return nil
	}
}
