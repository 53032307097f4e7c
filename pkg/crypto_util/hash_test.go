package crypto_util

import (
	"testing"
)

func TestBlake3(t *testing.T) {
	blake3Hash := CalculateBlake3([]byte("hello world"))
	if len(blake3Hash) != 64 {
		t.Errorf("Blake3 哈希长度不匹配: 得到 %d, 期望 64", len(blake3Hash))
	}
	if blake3Hash != CalculateBlake3([]byte("hello world")) {
		t.Error("同一输入的 Blake3 哈希不稳定")
	}
	if CalculateBlake3([]byte("user-1")) == CalculateBlake3([]byte("user-2")) {
		t.Error("不同输入得到了相同的 Blake3 哈希")
	}
}
