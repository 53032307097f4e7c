package bip32

import (
	"crypto/ecdsa"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
)

// EthereumPath 返回 BIP-44 以太坊路径 m/44'/60'/0'/0/<index>
func EthereumPath(index uint32) string {
	return fmt.Sprintf("m/44'/60'/0'/0/%d", index)
}

// HDKey 实现了 ExtendedKey 接口，封装了 hdkeychain.ExtendedKey
type HDKey struct {
	key *hdkeychain.ExtendedKey
}

func (k *HDKey) String() string {
	return k.key.String()
}

func (k *HDKey) Derive(index uint32) (ExtendedKey, error) {
	childKey, err := k.key.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("派生子密钥失败: %w", err)
	}
	return &HDKey{key: childKey}, nil
}

func (k *HDKey) IsPrivate() bool {
	return k.key.IsPrivate()
}

func (k *HDKey) ECDSA() (*ecdsa.PrivateKey, error) {
	if !k.key.IsPrivate() {
		return nil, ErrPublicOnly
	}
	priv, err := k.key.ECPrivKey()
	if err != nil {
		return nil, err
	}
	return priv.ToECDSA(), nil
}

func (k *HDKey) Address() (string, error) {
	pub, err := k.key.ECPubKey()
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(*pub.ToECDSA()).Hex(), nil
}

// Wallet 实现 HDWallet 接口
type Wallet struct {
	masterKey *HDKey
}

// NewMasterKeyFromSeed 使用 BIP-39 种子生成主密钥
func NewMasterKeyFromSeed(seed []byte) (*Wallet, error) {
	if len(seed) < 16 || len(seed) > 64 {
		return nil, ErrInvalidSeed
	}

	// 版本字节只影响 xprv 的序列化形式，不影响派生结果
	masterKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("生成主密钥失败: %w", err)
	}

	return &Wallet{masterKey: &HDKey{key: masterKey}}, nil
}

func (w *Wallet) MasterKey() ExtendedKey {
	return w.masterKey
}

// DerivePath 解析路径并派生密钥
// 支持格式: m/44'/60'/0'/0/0 或 m/44h/60h/0h/0/0
func (w *Wallet) DerivePath(path string) (ExtendedKey, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "m" {
		return w.masterKey, nil
	}
	if !strings.HasPrefix(path, "m/") {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}

	var current ExtendedKey = w.masterKey
	for _, segment := range strings.Split(path[2:], "/") {
		hardened := false
		if strings.HasSuffix(segment, "'") || strings.HasSuffix(segment, "h") {
			hardened = true
			segment = segment[:len(segment)-1]
		}

		val, err := strconv.ParseUint(segment, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: 无效的路径段 '%s'", ErrInvalidPath, segment)
		}
		index := uint32(val)
		if hardened {
			if index >= hdkeychain.HardenedKeyStart {
				return nil, fmt.Errorf("%w: 索引越界 '%s'", ErrInvalidPath, segment)
			}
			index += hdkeychain.HardenedKeyStart
		}

		current, err = current.Derive(index)
		if err != nil {
			return nil, err
		}
	}
	return current, nil
}
