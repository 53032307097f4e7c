package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tipbot-core/internal/model"
	"tipbot-core/internal/service/mq"
	"tipbot-core/pkg/logger"
)

// 超过最大次数的消息标记为 FAILED，不再投递
const maxRelayAttempts = 10

// RelayService 负责将本地消息表的消息搬运到 MQ
type RelayService struct {
	db       *gorm.DB
	producer mq.Producer
	interval time.Duration
	batch    int
}

func NewRelayService(db *gorm.DB, producer mq.Producer) *RelayService {
	return &RelayService{
		db:       db,
		producer: producer,
		interval: 500 * time.Millisecond, // 500ms 轮询一次
		batch:    50,
	}
}

func (s *RelayService) Start(ctx context.Context) {
	logger.Info("[Relay] 启动消息中继服务...")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("[Relay] 停止服务")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

// ProcessPending 投递一批 PENDING 消息，返回成功条数
func (s *RelayService) ProcessPending(ctx context.Context) int {
	var messages []model.OutboxMessage
	// 按 ID 顺序投递，保证同一 droptip 的事件先后顺序
	if err := s.db.WithContext(ctx).
		Where("status = ?", model.OutboxPending).
		Order("id ASC").
		Limit(s.batch).
		Find(&messages).Error; err != nil {
		logger.Error("[Relay] 查询消息失败", zap.Error(err))
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if err := s.producer.Publish(ctx, msg.Topic, "", msg.Payload); err != nil {
			s.recordFailure(ctx, &msg, err)
			continue
		}

		// 只有发送成功了才更新状态 => At-least-once (至少一次投递)
		// 如果这里更新失败，下次还会发，Consumer 需做好幂等
		if err := s.db.WithContext(ctx).Model(&msg).Update("status", model.OutboxSent).Error; err != nil {
			logger.Error("[Relay] 更新状态失败", zap.Uint64("id", msg.ID), zap.Error(err))
			continue
		}
		sent++
	}
	if sent > 0 {
		logger.Debug("[Relay] 消息已投递", zap.Int("count", sent))
	}
	return sent
}

func (s *RelayService) recordFailure(ctx context.Context, msg *model.OutboxMessage, cause error) {
	attempts := msg.Attempts + 1
	status := model.OutboxPending
	if attempts >= maxRelayAttempts {
		status = model.OutboxFailed
	}
	logger.Warn("[Relay] 发送消息失败",
		zap.Uint64("id", msg.ID),
		zap.String("topic", msg.Topic),
		zap.Int("attempts", attempts),
		zap.Error(cause))
	if err := s.db.WithContext(ctx).Model(msg).Updates(map[string]interface{}{
		"attempts": attempts,
		"status":   status,
	}).Error; err != nil {
		logger.Error("[Relay] 更新重试次数失败", zap.Uint64("id", msg.ID), zap.Error(err))
	}
}
