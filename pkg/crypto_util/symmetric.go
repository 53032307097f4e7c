package crypto_util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	// KeyLen AES-256 密钥长度
	KeyLen = 32
	// SaltLen 每个身份独立的随机盐长度
	SaltLen = 32
	// NonceLen GCM 标准 nonce 长度
	NonceLen = 12
)

var ErrCiphertextTooShort = errors.New("密文太短")

// RandomBytes 从 crypto/rand 读取 n 个随机字节
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

// DeriveKey 使用 scrypt 从运营方密钥和盐派生 32 字节对称密钥
func DeriveKey(secret, salt []byte, n, r, p int) ([]byte, error) {
	return scrypt.Key(secret, salt, n, r, p, KeyLen)
}

// SealAESGCM 使用显式 nonce 做 AES-GCM 加密，返回的密文包含认证标签。
// 调用方负责保存 nonce。
func SealAESGCM(key, nonce, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, errors.New("nonce 长度无效")
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nil
}

// OpenAESGCM 是 SealAESGCM 的逆操作，认证失败时返回错误
func OpenAESGCM(key, nonce, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, errors.New("nonce 长度无效")
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// EncryptAESGCM 使用给定的密钥对明文进行 AES-GCM 加密。
// 密钥必须是 16、24 或 32 字节长，分别对应 AES-128、AES-192 或 AES-256。
// 返回 nonce + 密文。
func EncryptAESGCM(key, plaintext []byte) ([]byte, error) {
	nonce, err := RandomBytes(NonceLen)
	if err != nil {
		return nil, err
	}
	sealed, err := SealAESGCM(key, nonce, plaintext)
	if err != nil {
		return nil, err
	}
	return append(nonce, sealed...), nil
}

// DecryptAESGCM 使用给定的密钥对 AES-GCM 密文（nonce + 加密数据）进行解密。
func DecryptAESGCM(key, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceLen {
		return nil, ErrCiphertextTooShort
	}
	return OpenAESGCM(key, ciphertext[:NonceLen], ciphertext[NonceLen:])
}

// Wipe 把敏感字节清零
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
