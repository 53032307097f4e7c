package crypto_util

import (
	"bytes"
	"testing"
)

func TestAESGCM(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef") // 32 字节用于 AES-256
	plaintext := []byte("这是一条用于 AES-GCM 测试的秘密消息")

	ciphertext, err := EncryptAESGCM(key, plaintext)
	if err != nil {
		t.Fatalf("EncryptAESGCM 失败: %v", err)
	}

	decrypted, err := DecryptAESGCM(key, ciphertext)
	if err != nil {
		t.Fatalf("DecryptAESGCM 失败: %v", err)
	}

	if !bytes.Equal(plaintext, decrypted) {
		t.Errorf("解密后的消息与明文不匹配。\n得到: %s\n期望: %s", decrypted, plaintext)
	}
}

func TestAESGCM_InvalidKey(t *testing.T) {
	_, err := EncryptAESGCM([]byte("shortkey"), []byte("test"))
	if err == nil {
		t.Error("期望因密钥长度无效而报错，但未收到错误")
	}
}

func TestSealOpenWithDerivedKey(t *testing.T) {
	salt, err := RandomBytes(SaltLen)
	if err != nil {
		t.Fatal(err)
	}
	nonce, err := RandomBytes(NonceLen)
	if err != nil {
		t.Fatal(err)
	}
	// 测试使用较小的 N，避免 scrypt 太慢
	key, err := DeriveKey([]byte("operator-secret"), salt, 1<<10, 8, 1)
	if err != nil {
		t.Fatalf("DeriveKey 失败: %v", err)
	}

	secret := []byte("private key bytes")
	sealed, err := SealAESGCM(key, nonce, secret)
	if err != nil {
		t.Fatalf("SealAESGCM 失败: %v", err)
	}

	opened, err := OpenAESGCM(key, nonce, sealed)
	if err != nil {
		t.Fatalf("OpenAESGCM 失败: %v", err)
	}
	if !bytes.Equal(secret, opened) {
		t.Errorf("解密结果不匹配")
	}

	// 篡改密文必须认证失败
	sealed[0] ^= 0xff
	if _, err := OpenAESGCM(key, nonce, sealed); err == nil {
		t.Error("篡改后的密文应该解密失败")
	}

	// 错误的运营方密钥
	wrong, _ := DeriveKey([]byte("other-secret"), salt, 1<<10, 8, 1)
	sealed[0] ^= 0xff
	if _, err := OpenAESGCM(wrong, nonce, sealed); err == nil {
		t.Error("错误的密钥应该解密失败")
	}
}

func TestDecryptTooShort(t *testing.T) {
	key := []byte("0123456789abcdef")
	if _, err := DecryptAESGCM(key, []byte{1, 2, 3}); err != ErrCiphertextTooShort {
		t.Errorf("期望 ErrCiphertextTooShort, 得到 %v", err)
	}
}

func TestWipe(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	Wipe(b)
	if !bytes.Equal(b, make([]byte, 4)) {
		t.Errorf("Wipe 后仍有非零字节: %v", b)
	}
}
