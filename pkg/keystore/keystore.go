package keystore

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"tipbot-core/pkg/crypto_util"
)

// EncryptedKeyJSON 遵循 Ethereum Keystore V3 的结构风格。
// 运营方助记词文件和 Vault 中每个用户的私钥记录都使用这个格式。
type EncryptedKeyJSON struct {
	Address string     `json:"address,omitempty"` // 托管身份的地址 (助记词文件为空)
	Crypto  CryptoJSON `json:"crypto"`
	Id      string     `json:"id"`      // UUID
	Version int        `json:"version"` // 3
}

type CryptoJSON struct {
	Cipher       string       `json:"cipher"`       // "aes-256-gcm"
	CipherText   string       `json:"ciphertext"`   // Hex string
	CipherParams CipherParams `json:"cipherparams"` // IV
	KDF          string       `json:"kdf"`          // "scrypt"
	KDFParams    KDFParams    `json:"kdfparams"`
	MAC          string       `json:"mac"` // Hex string
}

type CipherParams struct {
	IV string `json:"iv"` // Hex string
}

type KDFParams struct {
	DKLen int    `json:"dklen"` // Derived Key Length (32)
	N     int    `json:"n"`     // Scrypt N
	R     int    `json:"r"`     // Scrypt r (8)
	P     int    `json:"p"`     // Scrypt p (1)
	Salt  string `json:"salt"`  // Hex string
}

// Params scrypt 成本参数
type Params struct {
	N int
	R int
	P int
}

// StandardParams 用于运营方助记词，LightParams 用于每个用户的私钥 (每次签名都要解密一次)
var (
	StandardParams = Params{N: 262144, R: 8, P: 1}
	LightParams    = Params{N: 1 << 15, R: 8, P: 1}
)

var ErrMACMismatch = errors.New("invalid password or corrupted data (MAC mismatch)")

// Seal 使用 password 加密任意明文: scrypt(password, 随机 salt) -> AES-256-GCM(随机 IV)
func Seal(plaintext, password []byte, params Params) (*EncryptedKeyJSON, error) {
	salt, err := crypto_util.RandomBytes(crypto_util.SaltLen)
	if err != nil {
		return nil, err
	}
	nonce, err := crypto_util.RandomBytes(crypto_util.NonceLen)
	if err != nil {
		return nil, err
	}

	derivedKey, err := crypto_util.DeriveKey(password, salt, params.N, params.R, params.P)
	if err != nil {
		return nil, err
	}
	defer crypto_util.Wipe(derivedKey)

	ciphertext, err := crypto_util.SealAESGCM(derivedKey, nonce, plaintext)
	if err != nil {
		return nil, err
	}

	return &EncryptedKeyJSON{
		Version: 3,
		Id:      uuid.NewString(),
		Crypto: CryptoJSON{
			Cipher:     "aes-256-gcm",
			CipherText: hex.EncodeToString(ciphertext),
			CipherParams: CipherParams{
				IV: hex.EncodeToString(nonce),
			},
			KDF: "scrypt",
			KDFParams: KDFParams{
				DKLen: crypto_util.KeyLen,
				N:     params.N,
				R:     params.R,
				P:     params.P,
				Salt:  hex.EncodeToString(salt),
			},
			MAC: hex.EncodeToString(computeMAC(derivedKey, ciphertext)),
		},
	}, nil
}

// Open 解密 Seal 的结果。返回的切片由调用方负责 Wipe。
func Open(keyJSON *EncryptedKeyJSON, password []byte) ([]byte, error) {
	c := keyJSON.Crypto
	if c.KDF != "scrypt" || c.Cipher != "aes-256-gcm" {
		return nil, fmt.Errorf("unsupported keystore: kdf=%s cipher=%s", c.KDF, c.Cipher)
	}

	salt, err := hex.DecodeString(c.KDFParams.Salt)
	if err != nil {
		return nil, fmt.Errorf("invalid salt: %w", err)
	}
	nonce, err := hex.DecodeString(c.CipherParams.IV)
	if err != nil {
		return nil, fmt.Errorf("invalid iv: %w", err)
	}
	ciphertext, err := hex.DecodeString(c.CipherText)
	if err != nil {
		return nil, fmt.Errorf("invalid ciphertext: %w", err)
	}
	mac, err := hex.DecodeString(c.MAC)
	if err != nil {
		return nil, fmt.Errorf("invalid mac: %w", err)
	}

	derivedKey, err := crypto_util.DeriveKey(password, salt, c.KDFParams.N, c.KDFParams.R, c.KDFParams.P)
	if err != nil {
		return nil, err
	}
	defer crypto_util.Wipe(derivedKey)

	if subtle.ConstantTimeCompare(mac, computeMAC(derivedKey, ciphertext)) != 1 {
		return nil, ErrMACMismatch
	}

	plaintext, err := crypto_util.OpenAESGCM(derivedKey, nonce, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

// EncryptMnemonic 将助记词使用密码加密为 JSON 结构
func EncryptMnemonic(mnemonic, password string) (*EncryptedKeyJSON, error) {
	return Seal([]byte(mnemonic), []byte(password), StandardParams)
}

// DecryptMnemonic 解密 Keystore JSON 获取助记词
func DecryptMnemonic(keyJSON *EncryptedKeyJSON, password string) (string, error) {
	plaintext, err := Open(keyJSON, []byte(password))
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// SaveToFile 保存到文件
func (k *EncryptedKeyJSON) SaveToFile(filename string) error {
	data, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0600) // 0600 is important
}

// LoadFromFile 从文件加载
func LoadFromFile(filename string) (*EncryptedKeyJSON, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var k EncryptedKeyJSON
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, err
	}
	return &k, nil
}

// MAC = SHA256(derivedKey[16:32] + ciphertext)
func computeMAC(derivedKey, ciphertext []byte) []byte {
	buf := make([]byte, 0, 16+len(ciphertext))
	buf = append(buf, derivedKey[16:32]...)
	buf = append(buf, ciphertext...)
	sum := sha256.Sum256(buf)
	return sum[:]
}
