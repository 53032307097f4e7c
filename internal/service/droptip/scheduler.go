package droptip

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrSchedulerStopped = errors.New("droptip: scheduler stopped")

// Handler 到期回调，在独立的 goroutine 中执行
type Handler func(ctx context.Context, droptipID uint64)

// Scheduler 按 droptip id 管理到期任务。同一个 id 重复 Schedule 只保留最后一次。
type Scheduler interface {
	Start(handler Handler) error
	Schedule(ctx context.Context, droptipID uint64, at time.Time) error
	Cancel(droptipID uint64)
	Stop()
}

// TimerScheduler 进程内实现，每个 droptip 一个 time.Timer。
// 进程重启后定时器丢失，由 Engine.Start 从数据库恢复。
type TimerScheduler struct {
	mu      sync.Mutex
	timers  map[uint64]*timerEntry
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
	now     func() time.Time
}

type timerEntry struct {
	timer *time.Timer
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{
		timers: make(map[uint64]*timerEntry),
		now:    time.Now,
	}
}

func (s *TimerScheduler) Start(handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	s.handler = handler
	if s.ctx == nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
	return nil
}

func (s *TimerScheduler) Schedule(_ context.Context, droptipID uint64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	if old, ok := s.timers[droptipID]; ok {
		old.timer.Stop()
	}

	entry := &timerEntry{}
	s.timers[droptipID] = entry
	entry.timer = time.AfterFunc(at.Sub(s.now()), func() { s.fire(droptipID, entry) })
	return nil
}

func (s *TimerScheduler) fire(droptipID uint64, entry *timerEntry) {
	s.mu.Lock()
	// 已被替换或取消
	if s.timers[droptipID] != entry || s.stopped || s.handler == nil {
		s.mu.Unlock()
		return
	}
	delete(s.timers, droptipID)
	handler, ctx := s.handler, s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	handler(ctx, droptipID)
}

func (s *TimerScheduler) Cancel(droptipID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.timers[droptipID]; ok {
		entry.timer.Stop()
		delete(s.timers, droptipID)
	}
}

// Pending 还在等待的定时器数量
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop 取消所有定时器，并等待正在执行的回调结束
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for id, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, id)
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
}
