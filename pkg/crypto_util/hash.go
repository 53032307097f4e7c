package crypto_util

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// CalculateBlake3 计算输入的 Blake3 哈希值。
// FileVault 用它把用户 ID 映射为文件名。
func CalculateBlake3(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}
