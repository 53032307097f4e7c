package bip39

import (
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

// OperatorEntropyBits 运营方助记词使用 24 个单词
const OperatorEntropyBits = 256

// MnemonicService 提供助记词相关的功能
type MnemonicService struct{}

// NewMnemonicService 创建一个新的助记词服务实例
func NewMnemonicService() *MnemonicService {
	return &MnemonicService{}
}

// GenerateMnemonic 生成一个新的随机助记词 (BIP-39)。
// bitSize: 熵的位数，128 (12个单词) 或 256 (24个单词)。
func (s *MnemonicService) GenerateMnemonic(bitSize int) (string, error) {
	entropy, err := bip39.NewEntropy(bitSize)
	if err != nil {
		return "", fmt.Errorf("生成熵失败: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("生成助记词失败: %w", err)
	}
	return mnemonic, nil
}

// ValidateMnemonic 验证助记词是否有效 (单词表 + 校验和)。
func (s *MnemonicService) ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// Seed 校验助记词后转换为 BIP-39 种子。passphrase 可以为空。
// 从 keystore 解出的助记词如果损坏，这里会报错而不是派生出错误的运营钱包。
func (s *MnemonicService) Seed(mnemonic string, passphrase string) ([]byte, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("无效的助记词: %w", err)
	}
	return seed, nil
}
