// Package droptip 实现限时红包的托管引擎: 创建 (资金进入托管地址)、领取登记、到期结算 (平分或退款)。
package droptip

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tipbot-core/internal/event"
	"tipbot-core/internal/ledger"
	"tipbot-core/internal/model"
	"tipbot-core/internal/service/wallet"
	"tipbot-core/internal/store"
	"tipbot-core/pkg/amount"
	"tipbot-core/pkg/errno"
	"tipbot-core/pkg/logger"
	"tipbot-core/pkg/monitor"
	"tipbot-core/pkg/utils/lock"
)

const (
	DefaultFeeBps        = 100
	DefaultSettleTimeout = 10 * time.Minute

	insertAttempts = 3
)

// DefaultDurations 允许的持续时间 (分钟)
var DefaultDurations = []int{1, 3, 5, 10, 15, 30}

// ErrSettlementInProgress 另一个实例正在结算同一个 droptip
var ErrSettlementInProgress = errors.New("droptip: settlement in progress")

// ErrNotExpired 还没到期
var ErrNotExpired = errors.New("droptip: not expired yet")

// Wallets 托管钱包
type Wallets interface {
	ResolveIdentity(ctx context.Context, userID string) (*model.Identity, error)
	Address(ctx context.Context, userID string) (common.Address, error)
	SignerFor(ctx context.Context, userID string) (*wallet.ScopedSigner, error)
}

// GasGuard 转账前保证 gas
type GasGuard interface {
	EnsureFor(ctx context.Context, addr common.Address, op ledger.Operation) error
}

type Options struct {
	Store     store.Store
	Ledger    ledger.Ledger
	Wallets   Wallets
	Gas       GasGuard
	Scheduler Scheduler            // 默认 TimerScheduler
	Publisher event.Publisher      // 默认丢弃
	Locker    lock.DistributedLock // 可选，多实例部署时防止重复结算
	Metrics   *monitor.BusinessMetrics

	FeeBps           *uint64 // nil 时使用 DefaultFeeBps，0 表示免手续费
	AllowedDurations []int
	SettleTimeout    time.Duration
	Now              func() time.Time
}

// Engine 红包托管引擎
type Engine struct {
	store     store.Store
	ledger    ledger.Ledger
	wallets   Wallets
	gas       GasGuard
	journal   *store.Journal
	scheduler Scheduler
	publisher event.Publisher
	locker    lock.DistributedLock
	metrics   *monitor.BusinessMetrics

	feeBps        uint64
	durations     map[int]struct{}
	settleTimeout time.Duration
	now           func() time.Time

	// 同一个 droptip 的领取与结算串行
	droptips *lock.KeyedMutex
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Scheduler == nil {
		opts.Scheduler = NewTimerScheduler()
	}
	if opts.Publisher == nil {
		opts.Publisher = event.Nop{}
	}
	feeBps := uint64(DefaultFeeBps)
	if opts.FeeBps != nil {
		feeBps = *opts.FeeBps
	}
	if err := amount.CheckBps(feeBps); err != nil {
		return nil, fmt.Errorf("droptip fee: %w", err)
	}
	if len(opts.AllowedDurations) == 0 {
		opts.AllowedDurations = DefaultDurations
	}
	if opts.SettleTimeout == 0 {
		opts.SettleTimeout = DefaultSettleTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	durations := make(map[int]struct{}, len(opts.AllowedDurations))
	for _, d := range opts.AllowedDurations {
		durations[d] = struct{}{}
	}

	return &Engine{
		store:         opts.Store,
		ledger:        opts.Ledger,
		wallets:       opts.Wallets,
		gas:           opts.Gas,
		journal:       store.NewJournal(opts.Store),
		scheduler:     opts.Scheduler,
		publisher:     opts.Publisher,
		locker:        opts.Locker,
		metrics:       opts.Metrics,
		feeBps:        feeBps,
		durations:     durations,
		settleTimeout: opts.SettleTimeout,
		now:           opts.Now,
		droptips:      lock.NewKeyedMutex(),
	}, nil
}

// AllowedDurations 升序返回允许的持续时间
func (e *Engine) AllowedDurations() []int {
	out := make([]int, 0, len(e.durations))
	for d := range e.durations {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

// Fee 计算手续费
func (e *Engine) Fee(gross amount.Amount) amount.Amount {
	return gross.MulBps(e.feeBps)
}

// CreateRequest 创建红包的参数
type CreateRequest struct {
	SenderID        string
	ChannelID       string
	Gross           amount.Amount
	DurationMinutes int
}

// Create 从发送者钱包一次性转入 gross + fee 到托管地址，确认后才写入 droptip 记录并注册到期任务。
// 资金转账失败时不会留下任何 droptip 记录，调用方可以安全重试。
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*model.Droptip, error) {
	if req.Gross.IsZero() {
		return nil, errno.ErrInvalidAmount
	}
	if _, ok := e.durations[req.DurationMinutes]; !ok {
		return nil, errno.ErrInvalidDuration
	}
	fee := e.Fee(req.Gross)
	total, err := req.Gross.Add(fee)
	if err != nil {
		return nil, errno.ErrInvalidAmount.WithMessage(err.Error())
	}

	sender, err := e.wallets.ResolveIdentity(ctx, req.SenderID)
	if err != nil {
		return nil, err
	}
	from := common.HexToAddress(sender.Address)
	escrow, err := e.wallets.Address(ctx, wallet.EscrowUserID)
	if err != nil {
		return nil, err
	}

	balance, err := e.ledger.BalanceOf(ctx, from)
	if err != nil {
		return nil, fundingFailed(fmt.Errorf("read balance: %w", err))
	}
	if balance.LessThan(total) {
		return nil, fundingFailed(fmt.Errorf("%w: have %s, need %s", ledger.ErrInsufficientBalance, balance, total))
	}
	if err := e.gas.EnsureFor(ctx, from, ledger.OpTokenTransfer); err != nil {
		return nil, err
	}

	signer, err := e.wallets.SignerFor(ctx, req.SenderID)
	if err != nil {
		return nil, err
	}
	defer signer.Release()

	entry, err := e.journal.Submitted(ctx, store.Entry{
		Kind:      model.TransferEscrowFunding,
		Reference: "sender:" + req.SenderID,
		From:      from,
		To:        escrow,
		Amount:    total,
	})
	if err != nil {
		return nil, fundingFailed(fmt.Errorf("journal: %w", err))
	}

	started := time.Now()
	receipt, err := e.ledger.Transfer(ctx, signer, escrow, total)
	if err != nil {
		e.journal.Failed(ctx, entry, err)
		logger.Warn("[Droptip] 托管转账失败", zap.String("sender_id", req.SenderID), zap.Error(err))
		return nil, fundingFailed(err)
	}
	e.journal.Confirmed(ctx, entry, receipt.TxHash)
	e.metrics.ObserveTransfer(model.TransferEscrowFunding, started)

	now := e.now()
	d := &model.Droptip{
		SenderID:        req.SenderID,
		ChannelID:       req.ChannelID,
		GrossAmount:     req.Gross,
		FeeAmount:       fee,
		DurationMinutes: req.DurationMinutes,
		EscrowTxHash:    receipt.TxHash,
		State:           model.DroptipOpen,
		CreatedAt:       now,
		ExpiresAt:       now.Add(time.Duration(req.DurationMinutes) * time.Minute),
	}
	if err := e.insert(ctx, d); err != nil {
		// 资金已在托管地址，流水里有 tx hash 可以对账
		logger.Error("[Droptip] 托管已到账但记录写入失败",
			zap.String("sender_id", req.SenderID),
			zap.String("escrow_tx_hash", receipt.TxHash),
			zap.String("amount", total.String()),
			zap.Error(err))
		return nil, fmt.Errorf("record droptip: %w", errno.ErrDatabase.WithMessage(err.Error()))
	}

	if err := e.scheduler.Schedule(ctx, d.ID, d.ExpiresAt); err != nil {
		// 定时任务丢失时由 cron 扫描兜底
		logger.Warn("[Droptip] 注册到期任务失败", zap.Uint64("droptip_id", d.ID), zap.Error(err))
	}

	e.metrics.DroptipCreated()
	e.publish(ctx, event.TopicDroptipCreated, event.DroptipCreatedEvent{
		DroptipID:       d.ID,
		SenderID:        d.SenderID,
		ChannelID:       d.ChannelID,
		GrossAmount:     d.GrossAmount.String(),
		FeeAmount:       d.FeeAmount.String(),
		DurationMinutes: d.DurationMinutes,
		ExpiresAt:       d.ExpiresAt,
		EscrowTxHash:    d.EscrowTxHash,
	})
	logger.Info("[Droptip] 已创建",
		zap.Uint64("droptip_id", d.ID),
		zap.String("sender_id", d.SenderID),
		zap.String("gross", d.GrossAmount.String()),
		zap.String("fee", d.FeeAmount.String()),
		zap.Time("expires_at", d.ExpiresAt))
	return d, nil
}

// insert 有限次重试，链上资金已经转出，不能因为一次数据库抖动就放弃
func (e *Engine) insert(ctx context.Context, d *model.Droptip) error {
	ctx = context.WithoutCancel(ctx)
	var err error
	for attempt := 1; attempt <= insertAttempts; attempt++ {
		if err = e.store.CreateDroptip(ctx, d); err == nil {
			return nil
		}
		d.ID = 0
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	return err
}

// Get 查询 droptip 及领取记录
func (e *Engine) Get(ctx context.Context, id uint64) (*model.Droptip, error) {
	d, err := e.store.GetDroptip(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errno.ErrDroptipNotFound
	}
	return d, err
}

func (e *Engine) publish(ctx context.Context, topic string, payload interface{}) {
	if err := e.publisher.Publish(ctx, topic, payload); err != nil {
		logger.Warn("[Droptip] 事件发布失败", zap.String("topic", topic), zap.Error(err))
	}
}

func fundingFailed(cause error) error {
	return fmt.Errorf("%w: %w", errno.ErrEscrowFundingFailed, cause)
}

func droptipKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}
