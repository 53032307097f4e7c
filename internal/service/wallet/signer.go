package wallet

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrSignerSpent = errors.New("wallet: signer already used or released")

// ScopedSigner 只能签一笔交易。签名后 (无论成功与否) 或 Release 时私钥被清零。
// 调用方应 defer Release()，覆盖提前返回的路径。
type ScopedSigner struct {
	mu      sync.Mutex
	address common.Address
	key     *ecdsa.PrivateKey
}

func newScopedSigner(key *ecdsa.PrivateKey) *ScopedSigner {
	return &ScopedSigner{
		address: crypto.PubkeyToAddress(key.PublicKey),
		key:     key,
	}
}

func (s *ScopedSigner) Address() common.Address {
	return s.address
}

// SignTx 使用 EIP-155 签名，随后立即销毁私钥
func (s *ScopedSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return nil, ErrSignerSpent
	}
	defer s.wipeLocked()
	return types.SignTx(tx, types.NewEIP155Signer(chainID), s.key)
}

// Release 清除私钥，可以重复调用
func (s *ScopedSigner) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wipeLocked()
}

// Spent 私钥是否已经销毁
func (s *ScopedSigner) Spent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key == nil
}

func (s *ScopedSigner) wipeLocked() {
	if s.key == nil {
		return
	}
	wipeKey(s.key)
	s.key = nil
}

// wipeKey 清零 big.Int 的底层字
func wipeKey(key *ecdsa.PrivateKey) {
	if key == nil || key.D == nil {
		return
	}
	words := key.D.Bits()
	for i := range words {
		words[i] = 0
	}
	key.D.SetInt64(0)
}
