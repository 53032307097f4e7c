package droptip

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
	"tipbot-core/internal/service/wallet"
	"tipbot-core/internal/store"
	"tipbot-core/pkg/amount"
	"tipbot-core/pkg/errno"
	"tipbot-core/pkg/logger"
)

// 上次结算中断时处于 sending 的转账，链上结果未知，需要人工对账
const interruptedError = "settlement interrupted while sending; outcome unknown"

// Start 启动调度器并恢复未结算的 droptip: 已到期的立即同步结算，其余重新注册定时器。
// 必须在对外提供服务之前调用。
func (e *Engine) Start(ctx context.Context) error {
	if err := e.scheduler.Start(e.onExpire); err != nil {
		return err
	}

	open, err := e.store.ListOpenDroptips(ctx)
	if err != nil {
		return fmt.Errorf("list open droptips: %w", err)
	}

	var settled, armed int
	now := e.now()
	for i := range open {
		d := &open[i]
		if now.Before(d.ExpiresAt) {
			if err := e.scheduler.Schedule(ctx, d.ID, d.ExpiresAt); err != nil {
				return fmt.Errorf("schedule droptip %d: %w", d.ID, err)
			}
			armed++
			continue
		}
		if _, err := e.Settle(ctx, d.ID); err != nil {
			logger.Error("[Droptip] 恢复结算失败", zap.Uint64("droptip_id", d.ID), zap.Error(err))
			continue
		}
		settled++
	}
	logger.Info("[Droptip] 引擎已启动", zap.Int("recovered_settled", settled), zap.Int("rearmed", armed))
	return nil
}

// Stop 停止调度器，等待正在执行的结算结束
func (e *Engine) Stop() {
	e.scheduler.Stop()
}

// SettleExpired 结算所有已到期但仍未结算的 droptip (定时器丢失时的兜底)，返回结算数量
func (e *Engine) SettleExpired(ctx context.Context) (int, error) {
	open, err := e.store.ListOpenDroptips(ctx)
	if err != nil {
		return 0, err
	}
	now := e.now()
	count := 0
	for i := range open {
		d := &open[i]
		if now.Before(d.ExpiresAt) {
			// 按 ExpiresAt 升序
			break
		}
		_, err := e.Settle(ctx, d.ID)
		switch {
		case err == nil:
			count++
		case errors.Is(err, ErrSettlementInProgress):
		case errors.Is(err, errno.ErrSettlementPartialFailure):
			count++
		default:
			logger.Error("[Droptip] 兜底结算失败", zap.Uint64("droptip_id", d.ID), zap.Error(err))
		}
	}
	return count, nil
}

func (e *Engine) onExpire(ctx context.Context, droptipID uint64) {
	ctx, cancel := context.WithTimeout(ctx, e.settleTimeout)
	defer cancel()

	d, err := e.Settle(ctx, droptipID)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotExpired):
		if err := e.scheduler.Schedule(ctx, droptipID, d.ExpiresAt); err != nil {
			logger.Warn("[Droptip] 重新注册到期任务失败", zap.Uint64("droptip_id", droptipID), zap.Error(err))
		}
	case errors.Is(err, ErrSettlementInProgress):
		logger.Debug("[Droptip] 其他实例正在结算", zap.Uint64("droptip_id", droptipID))
	case errors.Is(err, errno.ErrSettlementPartialFailure):
		logger.Warn("[Droptip] 结算部分失败", zap.Uint64("droptip_id", droptipID), zap.Error(err))
	default:
		logger.Error("[Droptip] 结算失败", zap.Uint64("droptip_id", droptipID), zap.Error(err))
	}
}

// Settle 到期结算，只由到期机制调用。已结算时是空操作。
// 无人领取时把 gross 退还给发送者 (手续费不退)；否则 gross 按人数整除平分，余数留在托管地址。
// 单笔转账失败不会中断其他转账，失败金额记录在 UnpaidAmount 上，返回 ErrSettlementPartialFailure。
func (e *Engine) Settle(ctx context.Context, droptipID uint64) (*model.Droptip, error) {
	if e.locker != nil {
		key := "droptip:settle:" + droptipKey(droptipID)
		ok, err := e.locker.Acquire(ctx, key, e.settleTimeout)
		if err != nil {
			return nil, fmt.Errorf("acquire settle lock: %w", err)
		}
		if !ok {
			return nil, ErrSettlementInProgress
		}
		defer e.locker.Release(context.WithoutCancel(ctx), key)
	}

	unlock := e.droptips.Lock(droptipKey(droptipID))
	defer unlock()

	current, err := e.Get(ctx, droptipID)
	if err != nil {
		return nil, err
	}
	if current.State == model.DroptipSettled {
		return current, nil
	}
	if e.now().Before(current.ExpiresAt) {
		return current, ErrNotExpired
	}

	// 从这里开始不再接受领取，领取快照固定
	d, err := e.store.BeginSettlement(ctx, droptipID, e.now())
	if errors.Is(err, store.ErrSettled) {
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("begin settlement: %w", err)
	}

	escrow, err := e.wallets.Address(ctx, wallet.EscrowUserID)
	if err != nil {
		return nil, err
	}

	var payouts []event.Payout
	var failed int
	if len(d.Attendees) == 0 {
		failed, err = e.refund(ctx, d, escrow)
		payouts = append(payouts, event.Payout{
			UserID: d.SenderID,
			Amount: d.GrossAmount.String(),
			Status: d.RefundStatus,
			TxHash: d.RefundTxHash,
		})
	} else {
		failed, err = e.split(ctx, d, escrow)
		for _, a := range d.Attendees {
			payouts = append(payouts, event.Payout{
				UserID: a.ClaimantID,
				Amount: a.PayoutAmount.String(),
				Status: a.PayoutStatus,
				TxHash: a.PayoutTxHash,
			})
		}
	}
	if err != nil {
		// 存储错误，保持未结算，下一次调用会从已保存的状态继续
		return nil, err
	}

	now := e.now()
	d.State = model.DroptipSettled
	d.SettledAt = &now
	if err := e.store.SaveSettlement(context.WithoutCancel(ctx), d); err != nil {
		return nil, fmt.Errorf("save settlement: %w", err)
	}
	e.scheduler.Cancel(droptipID)

	e.metrics.DroptipSettled(d.Outcome, failed)
	e.publish(ctx, event.TopicDroptipSettled, event.DroptipSettledEvent{
		DroptipID:   d.ID,
		SenderID:    d.SenderID,
		ChannelID:   d.ChannelID,
		Outcome:     d.Outcome,
		Share:       d.ShareAmount.String(),
		Remainder:   d.RemainderAmount.String(),
		Unpaid:      d.UnpaidAmount.String(),
		Payouts:     payouts,
		FailedCount: failed,
	})
	logger.Info("[Droptip] 结算完成",
		zap.Uint64("droptip_id", d.ID),
		zap.String("outcome", d.Outcome),
		zap.Int("attendees", len(d.Attendees)),
		zap.String("share", d.ShareAmount.String()),
		zap.String("remainder", d.RemainderAmount.String()),
		zap.String("unpaid", d.UnpaidAmount.String()),
		zap.Int("failed", failed))

	if failed > 0 {
		return d, fmt.Errorf("droptip %d: %d transfer(s) failed: %w", d.ID, failed, errno.ErrSettlementPartialFailure)
	}
	return d, nil
}

// refund 无人领取，退还 gross。返回失败笔数。
func (e *Engine) refund(ctx context.Context, d *model.Droptip, escrow common.Address) (int, error) {
	d.Outcome = model.OutcomeRefund
	d.ShareAmount = amount.Zero()
	d.RemainderAmount = amount.Zero()

	switch d.RefundStatus {
	case model.PayoutPaid:
		d.UnpaidAmount = amount.Zero()
		return 0, nil
	case model.PayoutFailed:
		d.UnpaidAmount = d.GrossAmount
		return 1, nil
	case model.PayoutSending:
		d.RefundStatus = model.PayoutFailed
		d.RefundError = interruptedError
		d.UnpaidAmount = d.GrossAmount
		return 1, nil
	}

	to, err := e.wallets.Address(ctx, d.SenderID)
	if err != nil {
		return 0, err
	}

	// 先持久化 sending，崩溃恢复时不会重复发送
	d.RefundStatus = model.PayoutSending
	if err := e.store.SaveSettlement(ctx, d); err != nil {
		return 0, fmt.Errorf("save refund intent: %w", err)
	}

	txHash, sendErr := e.sendFromEscrow(ctx, model.TransferRefund, d.ID, escrow, to, d.GrossAmount)
	if sendErr != nil {
		d.RefundStatus = model.PayoutFailed
		d.RefundError = sendErr.Error()
		d.UnpaidAmount = d.GrossAmount
		logger.Error("[Droptip] 退款失败", zap.Uint64("droptip_id", d.ID), zap.String("sender_id", d.SenderID), zap.Error(sendErr))
		return 1, e.store.SaveSettlement(context.WithoutCancel(ctx), d)
	}
	d.RefundStatus = model.PayoutPaid
	d.RefundTxHash = txHash
	d.UnpaidAmount = amount.Zero()
	return 0, e.store.SaveSettlement(context.WithoutCancel(ctx), d)
}

// split 平分给所有领取人。返回失败笔数。
func (e *Engine) split(ctx context.Context, d *model.Droptip, escrow common.Address) (int, error) {
	share, rem := d.GrossAmount.DivMod(uint64(len(d.Attendees)))
	d.Outcome = model.OutcomeSplit
	d.ShareAmount = share
	d.RemainderAmount = rem

	unpaid := amount.Zero()
	failed := 0
	markFailed := func(a *model.Attendee) {
		failed++
		unpaid, _ = unpaid.Add(a.PayoutAmount)
	}

	for i := range d.Attendees {
		a := &d.Attendees[i]
		switch a.PayoutStatus {
		case model.PayoutPaid:
			continue
		case model.PayoutFailed:
			markFailed(a)
			continue
		case model.PayoutSending:
			a.PayoutStatus = model.PayoutFailed
			a.PayoutError = interruptedError
			if err := e.store.SaveAttendee(ctx, a); err != nil {
				return 0, fmt.Errorf("save attendee %s: %w", a.ClaimantID, err)
			}
			markFailed(a)
			continue
		}

		a.PayoutAmount = share
		if share.IsZero() {
			// gross 小于人数，全部作为余数留在托管地址
			a.PayoutStatus = model.PayoutPaid
			if err := e.store.SaveAttendee(ctx, a); err != nil {
				return 0, fmt.Errorf("save attendee %s: %w", a.ClaimantID, err)
			}
			continue
		}

		a.PayoutStatus = model.PayoutSending
		if err := e.store.SaveAttendee(ctx, a); err != nil {
			return 0, fmt.Errorf("save attendee %s: %w", a.ClaimantID, err)
		}

		txHash, sendErr := e.sendFromEscrow(ctx, model.TransferPayout, d.ID, escrow, common.HexToAddress(a.Address), share)
		if sendErr != nil {
			a.PayoutStatus = model.PayoutFailed
			a.PayoutError = sendErr.Error()
			markFailed(a)
			logger.Error("[Droptip] 分账失败",
				zap.Uint64("droptip_id", d.ID),
				zap.String("claimant_id", a.ClaimantID),
				zap.Error(sendErr))
		} else {
			a.PayoutStatus = model.PayoutPaid
			a.PayoutTxHash = txHash
		}
		if err := e.store.SaveAttendee(context.WithoutCancel(ctx), a); err != nil {
			return 0, fmt.Errorf("save attendee %s: %w", a.ClaimantID, err)
		}
	}

	d.UnpaidAmount = unpaid
	return failed, nil
}

// sendFromEscrow 从托管地址转出一笔，每笔使用新的一次性签名器
func (e *Engine) sendFromEscrow(ctx context.Context, kind string, droptipID uint64, escrow, to common.Address, amt amount.Amount) (string, error) {
	if err := e.gas.EnsureFor(ctx, escrow, ledger.OpTokenTransfer); err != nil {
		return "", err
	}
	signer, err := e.wallets.SignerFor(ctx, wallet.EscrowUserID)
	if err != nil {
		return "", err
	}
	defer signer.Release()

	entry, err := e.journal.Submitted(ctx, store.Entry{
		Kind:      kind,
		Reference: "droptip:" + droptipKey(droptipID),
		From:      escrow,
		To:        to,
		Amount:    amt,
	})
	if err != nil {
		return "", fmt.Errorf("journal: %w", err)
	}

	started := time.Now()
	receipt, err := e.ledger.Transfer(ctx, signer, to, amt)
	if err != nil {
		e.journal.Failed(ctx, entry, err)
		return "", err
	}
	e.journal.Confirmed(ctx, entry, receipt.TxHash)
	e.metrics.ObserveTransfer(kind, started)
	return receipt.TxHash, nil
}
