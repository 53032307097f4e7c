package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"go.uber.org/zap"

	"tipbot-core/pkg/bip32"
	"tipbot-core/pkg/bip39"
	"tipbot-core/pkg/logger"
)

// 运营钱包在 HD 路径上的索引
const (
	EscrowIndex  uint32 = 0
	ReserveIndex uint32 = 1
)

// OperatorKeys 从运营方助记词派生的托管钱包和 gas 储备钱包
type OperatorKeys struct {
	Escrow  *ecdsa.PrivateKey
	Reserve *ecdsa.PrivateKey
}

// Wipe 清除派生出的私钥
func (k *OperatorKeys) Wipe() {
	wipeKey(k.Escrow)
	wipeKey(k.Reserve)
}

// DeriveOperatorKeys BIP-39 -> BIP-32 m/44'/60'/0'/0/{0,1}
func DeriveOperatorKeys(mnemonic string) (*OperatorKeys, error) {
	seed, err := bip39.NewMnemonicService().Seed(mnemonic, "")
	if err != nil {
		return nil, err
	}
	hd, err := bip32.NewMasterKeyFromSeed(seed)
	if err != nil {
		return nil, err
	}

	derive := func(index uint32) (*ecdsa.PrivateKey, error) {
		key, err := hd.DerivePath(bip32.EthereumPath(index))
		if err != nil {
			return nil, err
		}
		return key.ECDSA()
	}

	escrow, err := derive(EscrowIndex)
	if err != nil {
		return nil, fmt.Errorf("derive escrow key: %w", err)
	}
	reserve, err := derive(ReserveIndex)
	if err != nil {
		wipeKey(escrow)
		return nil, fmt.Errorf("derive reserve key: %w", err)
	}
	return &OperatorKeys{Escrow: escrow, Reserve: reserve}, nil
}

// ImportOperator 启动时把运营钱包写入 Vault/Store
func (m *Manager) ImportOperator(ctx context.Context, mnemonic string) error {
	keys, err := DeriveOperatorKeys(mnemonic)
	if err != nil {
		return err
	}
	defer keys.Wipe()

	escrow, err := m.ImportIdentity(ctx, EscrowUserID, keys.Escrow)
	if err != nil {
		return err
	}
	reserve, err := m.ImportIdentity(ctx, ReserveUserID, keys.Reserve)
	if err != nil {
		return err
	}
	logger.Info("[Wallet] 运营钱包已加载",
		zap.String("escrow", escrow.Address),
		zap.String("reserve", reserve.Address))
	return nil
}
