package bip39

import (
	"encoding/hex"
	"strings"
	"testing"
)

func TestGenerateMnemonic(t *testing.T) {
	service := NewMnemonicService()

	mnemonic, err := service.GenerateMnemonic(OperatorEntropyBits)
	if err != nil {
		t.Fatalf("生成 24 词助记词失败: %v", err)
	}
	if n := len(strings.Fields(mnemonic)); n != 24 {
		t.Errorf("期望 24 个单词, 得到 %d", n)
	}
	if !service.ValidateMnemonic(mnemonic) {
		t.Errorf("生成的助记词无效")
	}
}

func TestSeedVector(t *testing.T) {
	service := NewMnemonicService()

	// 已知的测试向量 (Test Vector)
	mnemonic := "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	expectedSeedHex := "5eb00bbddcf069084889a8ab9155568165f5c453ccb85e70811aaed6f6da5fc19a5ac40b389cd370d086206dec8aa6c43daea6690f20ad3d8d48b2d2ce9e38e4"

	seed, err := service.Seed(mnemonic, "")
	if err != nil {
		t.Fatalf("Seed 失败: %v", err)
	}
	if got := hex.EncodeToString(seed); got != expectedSeedHex {
		t.Errorf("Seed 生成不匹配。\n预期: %s\n实际: %s", expectedSeedHex, got)
	}
}

func TestSeedRejectsInvalid(t *testing.T) {
	service := NewMnemonicService()

	invalidMnemonic := "hello world invalid mnemonic phrase designed to fail validation check"
	if service.ValidateMnemonic(invalidMnemonic) {
		t.Errorf("期望验证失败，但验证通过了")
	}
	if _, err := service.Seed(invalidMnemonic, ""); err == nil {
		t.Errorf("期望 Seed 返回错误")
	}
}
