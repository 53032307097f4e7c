package store

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tipbot-core/internal/model"
	"tipbot-core/pkg/amount"
	"tipbot-core/pkg/logger"
)

// TransferRecorder 转账流水的持久化
type TransferRecorder interface {
	RecordTransfer(ctx context.Context, t *model.Transfer) error
	UpdateTransfer(ctx context.Context, t *model.Transfer) error
}

// Journal 在链上转账前后写流水。Submitted 必须在转账之前成功，
// Confirmed/Failed 写失败只记日志 (链上结果已经确定)。
type Journal struct {
	rec TransferRecorder
}

func NewJournal(rec TransferRecorder) *Journal {
	return &Journal{rec: rec}
}

// Entry 一次转账的参数
type Entry struct {
	Kind      string
	Reference string
	From      common.Address
	To        common.Address
	Amount    amount.Amount
	Native    bool
}

func (j *Journal) Submitted(ctx context.Context, e Entry) (*model.Transfer, error) {
	t := &model.Transfer{
		Kind:        e.Kind,
		Reference:   e.Reference,
		FromAddress: e.From.Hex(),
		ToAddress:   e.To.Hex(),
		Amount:      e.Amount,
		Native:      e.Native,
		Status:      model.TransferSubmitted,
	}
	if err := j.rec.RecordTransfer(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (j *Journal) Confirmed(ctx context.Context, t *model.Transfer, txHash string) {
	t.Status = model.TransferConfirmed
	t.TxHash = txHash
	j.update(ctx, t)
}

func (j *Journal) Failed(ctx context.Context, t *model.Transfer, cause error) {
	t.Status = model.TransferFailed
	t.Error = cause.Error()
	j.update(ctx, t)
}

func (j *Journal) update(ctx context.Context, t *model.Transfer) {
	// 调用方的 ctx 可能已经超时，流水仍然要写
	if err := j.rec.UpdateTransfer(context.WithoutCancel(ctx), t); err != nil {
		logger.Error("[Journal] 更新转账流水失败",
			zap.Uint64("transfer_id", t.ID),
			zap.String("kind", t.Kind),
			zap.String("status", t.Status),
			zap.String("tx_hash", t.TxHash),
			zap.Error(err))
	}
}
