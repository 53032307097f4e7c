package bip32

import (
	"crypto/ecdsa"
	"errors"
)

// ExtendedKey 包装了 BIP-32 扩展密钥
type ExtendedKey interface {
	// String 返回 Base58 编码的密钥字符串 (xprv... / xpub...)
	String() string
	// Derive 根据索引派生子密钥
	Derive(index uint32) (ExtendedKey, error)
	// IsPrivate 返回是否包含私钥
	IsPrivate() bool
	// ECDSA 返回 secp256k1 私钥 (用于 EVM 签名)，调用方负责用完后清除
	ECDSA() (*ecdsa.PrivateKey, error)
	// Address 返回 EIP-55 格式的 EVM 地址
	Address() (string, error)
}

// HDWallet 定义了分层确定性钱包的基本行为
type HDWallet interface {
	// MasterKey 返回主扩展密钥
	MasterKey() ExtendedKey
	// DerivePath 根据路径 (如 "m/44'/60'/0'/0/0") 派生密钥
	DerivePath(path string) (ExtendedKey, error)
}

var (
	ErrInvalidSeed = errors.New("无效的种子")
	ErrInvalidPath = errors.New("无效的派生路径")
	ErrPublicOnly  = errors.New("扩展公钥不包含私钥")
)
