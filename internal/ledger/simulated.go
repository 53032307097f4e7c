package ledger

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"tipbot-core/pkg/amount"
	"tipbot-core/pkg/logger"
	"tipbot-core/pkg/utils/lock"
)

// SimulatedChainID 模拟链的 chain id
var SimulatedChainID = big.NewInt(1337)

// SimTransfer 模拟链上的一笔已确认转账
type SimTransfer struct {
	TxHash string
	From   common.Address
	To     common.Address
	Amount amount.Amount
	Native bool
}

// Simulated 内存中的模拟链: 没有配置 RPC 时使用 (模拟模式)，也用于测试。
// 每笔交易都会真正调用 Signer 签名，并按 GasCost 扣除原生币。
type Simulated struct {
	mu       sync.Mutex
	token    map[common.Address]amount.Amount
	native   map[common.Address]amount.Amount
	nonces   map[common.Address]uint64
	history  []SimTransfer
	failTo   map[common.Address]error
	gasPrice amount.Amount
	delay    time.Duration

	signers  *lock.KeyedMutex
	inFlight map[common.Address]int
	maxIn    map[common.Address]int
}

func NewSimulated() *Simulated {
	return &Simulated{
		token:    make(map[common.Address]amount.Amount),
		native:   make(map[common.Address]amount.Amount),
		nonces:   make(map[common.Address]uint64),
		failTo:   make(map[common.Address]error),
		gasPrice: amount.FromUint64(1),
		signers:  lock.NewKeyedMutex(),
		inFlight: make(map[common.Address]int),
		maxIn:    make(map[common.Address]int),
	}
}

// Mint 凭空给地址增加代币 (测试/开发充值)
func (s *Simulated) Mint(addr common.Address, amt amount.Amount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token[addr] = mustAdd(s.token[addr], amt)
}

// MintNative 凭空给地址增加原生币
func (s *Simulated) MintNative(addr common.Address, amt amount.Amount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.native[addr] = mustAdd(s.native[addr], amt)
}

// SetGasPrice 设置每单位 gas 的价格 (wei)，默认 1
func (s *Simulated) SetGasPrice(p amount.Amount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gasPrice = p
}

// SetConfirmDelay 每笔交易确认前等待的时间
func (s *Simulated) SetConfirmDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// FailTransfersTo 之后所有转给 addr 的交易都返回 err；err 为 nil 时取消
func (s *Simulated) FailTransfersTo(addr common.Address, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failTo, addr)
		return
	}
	s.failTo[addr] = err
}

// History 已确认的转账
func (s *Simulated) History() []SimTransfer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SimTransfer(nil), s.history...)
}

// MaxInFlight 某个 from 地址同时在途交易数的历史最大值
func (s *Simulated) MaxInFlight(addr common.Address) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxIn[addr]
}

func (s *Simulated) Transfer(ctx context.Context, from Signer, to common.Address, amt amount.Amount) (*Receipt, error) {
	return s.transfer(ctx, from, to, amt, false)
}

func (s *Simulated) TransferNative(ctx context.Context, from Signer, to common.Address, amt amount.Amount) (*Receipt, error) {
	return s.transfer(ctx, from, to, amt, true)
}

func (s *Simulated) transfer(ctx context.Context, from Signer, to common.Address, amt amount.Amount, native bool) (*Receipt, error) {
	addr := from.Address()
	unlock := s.signers.Lock(addr.Hex())
	defer unlock()

	s.mu.Lock()
	s.inFlight[addr]++
	if s.inFlight[addr] > s.maxIn[addr] {
		s.maxIn[addr] = s.inFlight[addr]
	}
	nonce := s.nonces[addr]
	gasLimit := DefaultTokenTransferGas
	if native {
		gasLimit = DefaultNativeTransferGas
	}
	gas := GasCost{Limit: gasLimit, Price: s.gasPrice}
	delay := s.delay
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight[addr]--
		s.mu.Unlock()
	}()

	value := big.NewInt(0)
	if native {
		value = amt.Big()
	}
	tx := types.NewTransaction(nonce, to, value, gasLimit, gas.Price.Big(), nil)
	signed, err := from.SignTx(tx, SimulatedChainID)
	if err != nil {
		return nil, err
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ErrConfirmationTimeout
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if failErr, ok := s.failTo[to]; ok {
		return nil, failErr
	}

	fee := gas.Total()
	nativeBal := s.native[addr]
	needNative := fee
	if native {
		needNative = mustAdd(fee, amt)
	}
	if nativeBal.LessThan(needNative) {
		return nil, ErrInsufficientGas
	}
	if !native && s.token[addr].LessThan(amt) {
		return nil, ErrInsufficientBalance
	}

	s.native[addr], _ = nativeBal.Sub(needNative)
	if native {
		s.native[to] = mustAdd(s.native[to], amt)
	} else {
		s.token[addr], _ = s.token[addr].Sub(amt)
		s.token[to] = mustAdd(s.token[to], amt)
	}
	s.nonces[addr] = nonce + 1

	hash := signed.Hash().Hex()
	s.history = append(s.history, SimTransfer{TxHash: hash, From: addr, To: to, Amount: amt, Native: native})
	logger.Debug("[Ledger] 模拟交易已确认", zap.String("tx_hash", hash), zap.String("from", addr.Hex()), zap.String("to", to.Hex()))
	return &Receipt{TxHash: hash, BlockNumber: uint64(len(s.history)), GasUsed: gasLimit}, nil
}

func (s *Simulated) BalanceOf(ctx context.Context, addr common.Address) (amount.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token[addr], nil
}

func (s *Simulated) NativeBalanceOf(ctx context.Context, addr common.Address) (amount.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.native[addr], nil
}

func (s *Simulated) EstimateGas(ctx context.Context, op Operation) (GasCost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := DefaultTokenTransferGas
	if op == OpNativeTransfer {
		limit = DefaultNativeTransferGas
	}
	return GasCost{Limit: limit, Price: s.gasPrice}, nil
}

func mustAdd(a, b amount.Amount) amount.Amount {
	sum, err := a.Add(b)
	if err != nil {
		panic(err)
	}
	return sum
}
