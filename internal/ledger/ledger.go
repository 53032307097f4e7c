// Package ledger 链上转账和余额查询。所有转账都等待回执后才返回。
package ledger

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"tipbot-core/pkg/amount"
)

var (
	ErrInsufficientBalance = errors.New("ledger: insufficient token balance")
	ErrInsufficientGas     = errors.New("ledger: insufficient native balance for gas")
	ErrTransferReverted    = errors.New("ledger: transfer reverted")
	ErrConfirmationTimeout = errors.New("ledger: confirmation timeout")
)

// Signer 对一笔交易签名的能力。托管钱包提供的实现只能签一次。
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Operation 需要估算 gas 的操作类型
type Operation int

const (
	OpTokenTransfer Operation = iota
	OpNativeTransfer
)

func (o Operation) String() string {
	switch o {
	case OpTokenTransfer:
		return "token_transfer"
	case OpNativeTransfer:
		return "native_transfer"
	default:
		return "unknown"
	}
}

// GasCost 一笔交易的 gas 上限和价格 (wei)
type GasCost struct {
	Limit uint64
	Price amount.Amount
}

// Total = Limit * Price
func (g GasCost) Total() amount.Amount {
	total, err := g.Price.MulUint64(g.Limit)
	if err != nil {
		panic("ledger: gas cost overflow")
	}
	return total
}

// Receipt 已确认的交易
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
}

// Ledger 链上能力。同一个 from 地址的转账在实现内部串行 (nonce 不会冲突)。
type Ledger interface {
	// Transfer 代币转账，等待确认
	Transfer(ctx context.Context, from Signer, to common.Address, amt amount.Amount) (*Receipt, error)
	// TransferNative 原生币转账 (gas 补贴)，等待确认
	TransferNative(ctx context.Context, from Signer, to common.Address, amt amount.Amount) (*Receipt, error)
	BalanceOf(ctx context.Context, addr common.Address) (amount.Amount, error)
	NativeBalanceOf(ctx context.Context, addr common.Address) (amount.Amount, error)
	EstimateGas(ctx context.Context, op Operation) (GasCost, error)
}
