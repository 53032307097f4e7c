// Package tipping 是分发层调用的入口: 打赏、红包、余额、充值地址和提现。
package tipping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tipbot-core/internal/event"
	"tipbot-core/internal/ledger"
	"tipbot-core/internal/model"
	"tipbot-core/internal/service/droptip"
	"tipbot-core/internal/service/wallet"
	"tipbot-core/internal/store"
	"tipbot-core/pkg/amount"
	"tipbot-core/pkg/errno"
	"tipbot-core/pkg/logger"
	"tipbot-core/pkg/monitor"
)

const DefaultTipFeeBps = 100

// GasGuard 转账前保证 gas
type GasGuard interface {
	EnsureFeasible(ctx context.Context, addr common.Address, cost ledger.GasCost) error
}

type Options struct {
	Engine    *droptip.Engine
	Wallets   droptip.Wallets
	Ledger    ledger.Ledger
	Gas       GasGuard
	Journal   *store.Journal
	Publisher event.Publisher
	Metrics   *monitor.BusinessMetrics
	TipFeeBps *uint64 // nil 时使用 DefaultTipFeeBps
	Decimals  int32
	Symbol    string
}

type Service struct {
	engine    *droptip.Engine
	wallets   droptip.Wallets
	ledger    ledger.Ledger
	gas       GasGuard
	journal   *store.Journal
	publisher event.Publisher
	metrics   *monitor.BusinessMetrics
	tipFeeBps uint64
	decimals  int32
	symbol    string
}

func NewService(opts Options) (*Service, error) {
	if opts.Publisher == nil {
		opts.Publisher = event.Nop{}
	}
	tipFeeBps := uint64(DefaultTipFeeBps)
	if opts.TipFeeBps != nil {
		tipFeeBps = *opts.TipFeeBps
	}
	if err := amount.CheckBps(tipFeeBps); err != nil {
		return nil, fmt.Errorf("tip fee: %w", err)
	}
	return &Service{
		engine:    opts.Engine,
		wallets:   opts.Wallets,
		ledger:    opts.Ledger,
		gas:       opts.Gas,
		journal:   opts.Journal,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		tipFeeBps: tipFeeBps,
		decimals:  opts.Decimals,
		symbol:    opts.Symbol,
	}, nil
}

// Decimals 代币精度，分发层据此解析和显示金额
func (s *Service) Decimals() int32 { return s.decimals }

func (s *Service) Symbol() string { return s.symbol }

// TipResult 打赏结果
type TipResult struct {
	TxHash       string        `json:"tx_hash"`
	Amount       amount.Amount `json:"amount"`
	Fee          amount.Amount `json:"fee"`
	FeeTxHash    string        `json:"fee_tx_hash,omitempty"`
	FeeCollected bool          `json:"fee_collected"`
}

// CreateTip 从 sender 直接转给 recipient，随后把手续费转到托管 (运营) 地址。
// 手续费转账失败只记录，不影响已经成功的打赏。
func (s *Service) CreateTip(ctx context.Context, senderID, recipientID string, amt amount.Amount) (*TipResult, error) {
	if senderID == recipientID {
		return nil, errno.ErrSelfTip
	}
	if amt.IsZero() {
		return nil, errno.ErrInvalidAmount
	}
	fee := amt.MulBps(s.tipFeeBps)
	total, err := amt.Add(fee)
	if err != nil {
		return nil, errno.ErrInvalidAmount.WithMessage(err.Error())
	}

	sender, err := s.wallets.ResolveIdentity(ctx, senderID)
	if err != nil {
		return nil, err
	}
	recipient, err := s.wallets.ResolveIdentity(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	from, to := common.HexToAddress(sender.Address), common.HexToAddress(recipient.Address)

	if err := s.ensureBalance(ctx, from, total); err != nil {
		return nil, err
	}

	transfers := uint64(1)
	if !fee.IsZero() {
		transfers = 2
	}
	if err := s.ensureGas(ctx, from, transfers); err != nil {
		return nil, err
	}

	txHash, err := s.send(ctx, senderID, model.TransferTip, "tip:"+recipientID, from, to, amt)
	if err != nil {
		s.metrics.Tip("failed")
		return nil, err
	}
	result := &TipResult{TxHash: txHash, Amount: amt, Fee: fee, FeeCollected: fee.IsZero()}

	if !fee.IsZero() {
		treasury, err := s.wallets.Address(ctx, wallet.EscrowUserID)
		if err == nil {
			result.FeeTxHash, err = s.send(ctx, senderID, model.TransferTipFee, "tip:"+recipientID, from, treasury, fee)
		}
		if err != nil {
			logger.Warn("[Tip] 手续费转账失败",
				zap.String("sender_id", senderID),
				zap.String("fee", fee.String()),
				zap.Error(err))
		} else {
			result.FeeCollected = true
		}
	}

	s.metrics.Tip("ok")
	if err := s.publisher.Publish(ctx, event.TopicTipCreated, event.TipCreatedEvent{
		SenderID:     senderID,
		RecipientID:  recipientID,
		Amount:       amt.String(),
		FeeAmount:    fee.String(),
		TxHash:       txHash,
		FeeCollected: result.FeeCollected,
	}); err != nil {
		logger.Warn("[Tip] 事件发布失败", zap.Error(err))
	}
	return result, nil
}

// CreateDroptip 创建红包
func (s *Service) CreateDroptip(ctx context.Context, req droptip.CreateRequest) (*model.Droptip, error) {
	return s.engine.Create(ctx, req)
}

// ClaimDroptip 领取红包
func (s *Service) ClaimDroptip(ctx context.Context, droptipID uint64, claimant droptip.Claimant) (*model.Attendee, error) {
	return s.engine.Claim(ctx, droptipID, claimant)
}

func (s *Service) GetDroptip(ctx context.Context, droptipID uint64) (*model.Droptip, error) {
	return s.engine.Get(ctx, droptipID)
}

// Balance 用户余额
type Balance struct {
	UserID  string        `json:"user_id"`
	Address string        `json:"address"`
	Token   amount.Amount `json:"token"`
	Native  amount.Amount `json:"native"`
}

func (s *Service) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	identity, err := s.wallets.ResolveIdentity(ctx, userID)
	if err != nil {
		return nil, err
	}
	addr := common.HexToAddress(identity.Address)
	token, err := s.ledger.BalanceOf(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("read token balance: %w", err)
	}
	native, err := s.ledger.NativeBalanceOf(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("read native balance: %w", err)
	}
	return &Balance{UserID: userID, Address: identity.Address, Token: token, Native: native}, nil
}

// GetDepositAddress 充值地址，首次调用时创建托管身份
func (s *Service) GetDepositAddress(ctx context.Context, userID string) (string, error) {
	identity, err := s.wallets.ResolveIdentity(ctx, userID)
	if err != nil {
		return "", err
	}
	return identity.Address, nil
}

// Withdraw 提现到外部地址
func (s *Service) Withdraw(ctx context.Context, userID, destination string, amt amount.Amount) (string, error) {
	if !common.IsHexAddress(destination) {
		return "", errno.ErrInvalidAddress
	}
	to := common.HexToAddress(destination)
	if to == (common.Address{}) {
		return "", errno.ErrInvalidAddress
	}
	if amt.IsZero() {
		return "", errno.ErrInvalidAmount
	}

	identity, err := s.wallets.ResolveIdentity(ctx, userID)
	if err != nil {
		return "", err
	}
	from := common.HexToAddress(identity.Address)
	if err := s.ensureBalance(ctx, from, amt); err != nil {
		return "", err
	}
	if err := s.ensureGas(ctx, from, 1); err != nil {
		return "", err
	}

	txHash, err := s.send(ctx, userID, model.TransferWithdrawal, "withdraw:"+userID, from, to, amt)
	if err != nil {
		return "", err
	}
	logger.Info("[Withdraw] 提现成功",
		zap.String("user_id", userID),
		zap.String("to", to.Hex()),
		zap.String("amount", amt.String()),
		zap.String("tx_hash", txHash))
	return txHash, nil
}

func (s *Service) ensureBalance(ctx context.Context, addr common.Address, need amount.Amount) error {
	balance, err := s.ledger.BalanceOf(ctx, addr)
	if err != nil {
		return fmt.Errorf("read token balance: %w", err)
	}
	if balance.LessThan(need) {
		return errno.ErrInsufficientFunds.WithMessage(fmt.Sprintf("%s: have %s %s, need %s %s",
			errno.ErrInsufficientFunds.Message, balance.Format(s.decimals), s.symbol, need.Format(s.decimals), s.symbol))
	}
	return nil
}

// ensureGas 一次补足 n 笔代币转账的 gas
func (s *Service) ensureGas(ctx context.Context, addr common.Address, n uint64) error {
	cost, err := s.ledger.EstimateGas(ctx, ledger.OpTokenTransfer)
	if err != nil {
		return fmt.Errorf("estimate gas: %w", err)
	}
	cost.Limit *= n
	return s.gas.EnsureFeasible(ctx, addr, cost)
}

// send 每笔转账使用新的一次性签名器
func (s *Service) send(ctx context.Context, userID, kind, ref string, from, to common.Address, amt amount.Amount) (string, error) {
	signer, err := s.wallets.SignerFor(ctx, userID)
	if err != nil {
		return "", err
	}
	defer signer.Release()

	entry, err := s.journal.Submitted(ctx, store.Entry{Kind: kind, Reference: ref, From: from, To: to, Amount: amt})
	if err != nil {
		return "", fmt.Errorf("journal %s: %w", kind, err)
	}

	started := time.Now()
	receipt, err := s.ledger.Transfer(ctx, signer, to, amt)
	if err != nil {
		s.journal.Failed(ctx, entry, err)
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			return "", errno.ErrInsufficientFunds
		}
		return "", fmt.Errorf("%s: %w", kind, errno.ErrTransferFailed.WithMessage(err.Error()))
	}
	s.journal.Confirmed(ctx, entry, receipt.TxHash)
	s.metrics.ObserveTransfer(kind, started)
	return receipt.TxHash, nil
}
