package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"tipbot-core/pkg/amount"
	"tipbot-core/pkg/logger"
	"tipbot-core/pkg/monitor"
	"tipbot-core/pkg/utils/lock"
)

// Sweeper 兜底结算已到期的 droptip
type Sweeper interface {
	SettleExpired(ctx context.Context) (int, error)
}

// ReserveReporter 读取 gas 储备钱包余额
type ReserveReporter interface {
	ReserveBalance(ctx context.Context) (amount.Amount, error)
}

const sweepLockKey = "cron:lock:droptip_sweep"

type CronService struct {
	cron     *cron.Cron
	schedule string
	sweeper  Sweeper
	reserve  ReserveReporter
	locker   lock.DistributedLock // 为空表示单实例部署
	metrics  *monitor.BusinessMetrics
}

func NewCronService(schedule string, sweeper Sweeper, reserve ReserveReporter, locker lock.DistributedLock, metrics *monitor.BusinessMetrics) *CronService {
	if schedule == "" {
		schedule = "@every 1m"
	}
	// 任务 panic 时恢复，上一次还没跑完时跳过
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	return &CronService{
		cron:     c,
		schedule: schedule,
		sweeper:  sweeper,
		reserve:  reserve,
		locker:   locker,
		metrics:  metrics,
	}
}

func (s *CronService) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.SweepExpired); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.schedule, s.ReportReserve); err != nil {
		return err
	}

	s.cron.Start()
	logger.Info("Cron Service started", zap.String("schedule", s.schedule))
	return nil
}

func (s *CronService) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("Cron Service stopped")
}

// SweepExpired 结算定时器丢失的到期 droptip
func (s *CronService) SweepExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if s.locker != nil {
		// 防止多实例同时执行
		locked, err := s.locker.Acquire(ctx, sweepLockKey, 5*time.Minute)
		if err != nil || !locked {
			logger.Debug("SweepExpired: 获取锁失败或已有实例在运行", zap.Error(err))
			return
		}
		defer s.locker.Release(context.Background(), sweepLockKey)
	}

	n, err := s.sweeper.SettleExpired(ctx)
	if err != nil {
		logger.Error("SweepExpired 失败", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Info("SweepExpired: 已兜底结算", zap.Int("count", n))
	}
}

// ReportReserve 刷新储备钱包余额指标，余额为零时告警
func (s *CronService) ReportReserve() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	bal, err := s.reserve.ReserveBalance(ctx)
	if err != nil {
		logger.Warn("ReportReserve: 读取储备余额失败", zap.Error(err))
		return
	}
	f, _ := bal.Big().Float64()
	s.metrics.SetReserveBalance(f)
	if bal.IsZero() {
		logger.Warn("ReportReserve: gas 储备钱包余额为零，补贴将失败")
	}
}
