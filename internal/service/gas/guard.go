// Package gas 保证托管钱包在转账前有足够的原生币支付 gas，不足时从运营储备钱包补贴。
package gas

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

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

// Wallets 储备钱包的地址和签名器
type Wallets interface {
	Address(ctx context.Context, userID string) (common.Address, error)
	SignerFor(ctx context.Context, userID string) (*wallet.ScopedSigner, error)
}

// Guard gas 补贴守卫
type Guard struct {
	ledger    ledger.Ledger
	wallets   Wallets
	journal   *store.Journal
	reserveID string
	metrics   *monitor.BusinessMetrics
	targets   *lock.KeyedMutex
}

func NewGuard(l ledger.Ledger, wallets Wallets, journal *store.Journal, metrics *monitor.BusinessMetrics) *Guard {
	return &Guard{
		ledger:    l,
		wallets:   wallets,
		journal:   journal,
		reserveID: wallet.ReserveUserID,
		metrics:   metrics,
		targets:   lock.NewKeyedMutex(),
	}
}

// EnsureFeasible 保证 addr 的原生币余额 >= cost.Total()。
// 余额足够时没有副作用；不足时从储备钱包转入差额并等待确认；
// 储备钱包付不起 (差额 + 自身 gas) 时返回 SubsidyExhausted。
func (g *Guard) EnsureFeasible(ctx context.Context, addr common.Address, cost ledger.GasCost) error {
	need := cost.Total()

	// 同一个地址的补贴串行，避免并发请求重复补贴
	unlock := g.targets.Lock(addr.Hex())
	defer unlock()

	bal, err := g.ledger.NativeBalanceOf(ctx, addr)
	if err != nil {
		return fmt.Errorf("read native balance of %s: %w", addr.Hex(), err)
	}
	if !bal.LessThan(need) {
		return nil
	}
	topUp, _ := need.Sub(bal)

	reserve, err := g.wallets.Address(ctx, g.reserveID)
	if err != nil {
		return err
	}
	if reserve == addr {
		return exhausted("reserve wallet cannot subsidize itself")
	}

	reserveCost, err := g.ledger.EstimateGas(ctx, ledger.OpNativeTransfer)
	if err != nil {
		return fmt.Errorf("estimate subsidy gas: %w", err)
	}
	required, err := topUp.Add(reserveCost.Total())
	if err != nil {
		return exhausted(err.Error())
	}
	reserveBal, err := g.ledger.NativeBalanceOf(ctx, reserve)
	if err != nil {
		return fmt.Errorf("read reserve balance: %w", err)
	}
	if reserveBal.LessThan(required) {
		logger.Error("[Gas] 储备钱包余额不足",
			zap.String("reserve", reserve.Hex()),
			zap.String("balance", reserveBal.String()),
			zap.String("required", required.String()))
		return exhausted(fmt.Sprintf("reserve has %s wei, needs %s wei", reserveBal, required))
	}

	signer, err := g.wallets.SignerFor(ctx, g.reserveID)
	if err != nil {
		return err
	}
	defer signer.Release()

	entry, err := g.journal.Submitted(ctx, store.Entry{
		Kind:   model.TransferGasSubsidy,
		From:   reserve,
		To:     addr,
		Amount: topUp,
		Native: true,
	})
	if err != nil {
		return fmt.Errorf("journal gas subsidy: %w", err)
	}

	started := time.Now()
	receipt, err := g.ledger.TransferNative(ctx, signer, addr, topUp)
	if err != nil {
		g.journal.Failed(ctx, entry, err)
		if errors.Is(err, ledger.ErrInsufficientGas) {
			return exhausted(err.Error())
		}
		return fmt.Errorf("gas subsidy transfer: %w", errno.ErrTransferFailed.WithMessage(err.Error()))
	}
	g.journal.Confirmed(ctx, entry, receipt.TxHash)
	g.metrics.ObserveTransfer(model.TransferGasSubsidy, started)
	f, _ := topUp.Big().Float64()
	g.metrics.GasSubsidy(f)

	logger.Info("[Gas] 已补贴 gas",
		zap.String("to", addr.Hex()),
		zap.String("amount_wei", topUp.String()),
		zap.String("tx_hash", receipt.TxHash))
	return nil
}

// EnsureFor 估算 op 的 gas 后调用 EnsureFeasible
func (g *Guard) EnsureFor(ctx context.Context, addr common.Address, op ledger.Operation) error {
	cost, err := g.ledger.EstimateGas(ctx, op)
	if err != nil {
		return fmt.Errorf("estimate gas: %w", err)
	}
	return g.EnsureFeasible(ctx, addr, cost)
}

// ReserveBalance 储备钱包的原生币余额
func (g *Guard) ReserveBalance(ctx context.Context) (amount.Amount, error) {
	reserve, err := g.wallets.Address(ctx, g.reserveID)
	if err != nil {
		return amount.Zero(), err
	}
	return g.ledger.NativeBalanceOf(ctx, reserve)
}

func exhausted(detail string) error {
	return errno.ErrSubsidyExhausted.WithMessage(errno.ErrSubsidyExhausted.Message + ": " + detail)
}
