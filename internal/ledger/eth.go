package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"tipbot-core/pkg/amount"
	"tipbot-core/pkg/logger"
	"tipbot-core/pkg/utils/lock"
)

const (
	DefaultTokenTransferGas  uint64 = 65000
	DefaultNativeTransferGas uint64 = 21000
)

// chainClient 是 EthLedger 用到的 ethclient 子集，测试中可以替换
type chainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type EthConfig struct {
	TokenAddress   common.Address
	ChainID        *big.Int // 为 nil 时从节点读取
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	// Locker 多实例部署时跨进程串行同一个 from 地址，为 nil 时只在进程内串行
	Locker lock.DistributedLock
}

// signerLockMargin 锁的 TTL 在确认超时之外多出的时间，覆盖 nonce 查询和广播
const signerLockMargin = time.Minute

// EthLedger ERC-20 代币 + 原生币 (gas) 的 EVM 实现，使用 legacy EIP-155 交易
type EthLedger struct {
	client  chainClient
	token   common.Address
	chainID *big.Int
	timeout time.Duration
	poll    time.Duration
	signers *lock.KeyedMutex // 每个 from 地址一个写者: nonce -> 发送 -> 回执
	locker  lock.DistributedLock
}

// DialEth 连接 RPC 节点
func DialEth(ctx context.Context, rpcURL string, cfg EthConfig) (*EthLedger, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("无法连接 ETH RPC (%s): %w", rpcURL, err)
	}
	return newEthLedger(ctx, client, cfg)
}

func newEthLedger(ctx context.Context, client chainClient, cfg EthConfig) (*EthLedger, error) {
	chainID := cfg.ChainID
	if chainID == nil {
		cid, err := client.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("read chain id: %w", err)
		}
		chainID = cid
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	logger.Info("[Ledger] 已连接 ETH 节点", zap.String("chain_id", chainID.String()), zap.String("token", cfg.TokenAddress.Hex()))
	return &EthLedger{
		client:  client,
		token:   cfg.TokenAddress,
		chainID: chainID,
		timeout: cfg.ConfirmTimeout,
		poll:    cfg.PollInterval,
		signers: lock.NewKeyedMutex(),
		locker:  cfg.Locker,
	}, nil
}

func (l *EthLedger) Transfer(ctx context.Context, from Signer, to common.Address, amt amount.Amount) (*Receipt, error) {
	data, err := packTransfer(to, amt.Big())
	if err != nil {
		return nil, err
	}

	unlock, err := l.lockSigner(ctx, from.Address())
	if err != nil {
		return nil, err
	}
	defer unlock()

	bal, err := l.BalanceOf(ctx, from.Address())
	if err != nil {
		return nil, err
	}
	if bal.LessThan(amt) {
		return nil, ErrInsufficientBalance
	}
	return l.send(ctx, from, l.token, big.NewInt(0), DefaultTokenTransferGas, data)
}

func (l *EthLedger) TransferNative(ctx context.Context, from Signer, to common.Address, amt amount.Amount) (*Receipt, error) {
	unlock, err := l.lockSigner(ctx, from.Address())
	if err != nil {
		return nil, err
	}
	defer unlock()
	return l.send(ctx, from, to, amt.Big(), DefaultNativeTransferGas, nil)
}

// lockSigner 先拿进程内的锁，再等分布式锁，直到 ctx 结束
func (l *EthLedger) lockSigner(ctx context.Context, from common.Address) (func(), error) {
	unlock := l.signers.Lock(from.Hex())
	if l.locker == nil {
		return unlock, nil
	}

	key := "ledger:signer:" + from.Hex()
	ttl := l.timeout + signerLockMargin
	for {
		ok, err := l.locker.Acquire(ctx, key, ttl)
		if err != nil {
			unlock()
			return nil, fmt.Errorf("signer lock %s: %w", from.Hex(), err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			unlock()
			return nil, fmt.Errorf("signer lock %s: %w", from.Hex(), ctx.Err())
		case <-time.After(l.poll):
		}
	}

	return func() {
		if err := l.locker.Release(context.WithoutCancel(ctx), key); err != nil {
			logger.Warn("[Ledger] 释放 signer 锁失败", zap.String("from", from.Hex()), zap.Error(err))
		}
		unlock()
	}, nil
}

// send 调用方必须持有 from 的锁
func (l *EthLedger) send(ctx context.Context, from Signer, to common.Address, value *big.Int, gasLimit uint64, data []byte) (*Receipt, error) {
	nonce, err := l.client.PendingNonceAt(ctx, from.Address())
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := l.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signed, err := from.SignTx(tx, l.chainID)
	if err != nil {
		return nil, fmt.Errorf("签名失败: %w", err)
	}

	if err := l.client.SendTransaction(ctx, signed); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "insufficient funds") {
			return nil, fmt.Errorf("%w: %w", ErrInsufficientGas, err)
		}
		return nil, fmt.Errorf("广播失败: %w", err)
	}
	logger.Debug("[Ledger] 交易已广播", zap.String("tx_hash", signed.Hash().Hex()), zap.Uint64("nonce", nonce))

	return l.waitMined(ctx, signed.Hash())
}

// waitMined 轮询回执直到确认或超时
func (l *EthLedger) waitMined(ctx context.Context, hash common.Hash) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		receipt, err := l.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return nil, fmt.Errorf("%w: %s", ErrTransferReverted, hash.Hex())
			}
			out := &Receipt{TxHash: hash.Hex(), GasUsed: receipt.GasUsed}
			if receipt.BlockNumber != nil {
				out.BlockNumber = receipt.BlockNumber.Uint64()
			}
			return out, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			logger.Warn("[Ledger] 查询回执失败", zap.String("tx_hash", hash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrConfirmationTimeout, hash.Hex())
		case <-ticker.C:
		}
	}
}

func (l *EthLedger) BalanceOf(ctx context.Context, addr common.Address) (amount.Amount, error) {
	data, err := packBalanceOf(addr)
	if err != nil {
		return amount.Zero(), err
	}
	token := l.token
	out, err := l.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return amount.Zero(), fmt.Errorf("balanceOf: %w", err)
	}
	bal, err := unpackBalance(out)
	if err != nil {
		return amount.Zero(), err
	}
	return amount.FromBig(bal)
}

func (l *EthLedger) NativeBalanceOf(ctx context.Context, addr common.Address) (amount.Amount, error) {
	bal, err := l.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return amount.Zero(), fmt.Errorf("查询余额失败: %w", err)
	}
	return amount.FromBig(bal)
}

func (l *EthLedger) EstimateGas(ctx context.Context, op Operation) (GasCost, error) {
	price, err := l.client.SuggestGasPrice(ctx)
	if err != nil {
		return GasCost{}, fmt.Errorf("suggest gas price: %w", err)
	}
	p, err := amount.FromBig(price)
	if err != nil {
		return GasCost{}, err
	}
	limit := DefaultTokenTransferGas
	if op == OpNativeTransfer {
		limit = DefaultNativeTransferGas
	}
	return GasCost{Limit: limit, Price: p}, nil
}
