// Package vault 保存加密后的私钥材料，和业务数据库 (Store) 物理隔离。
package vault

import (
	"context"
	"errors"

	"tipbot-core/pkg/keystore"
)

var (
	ErrNotFound = errors.New("vault: secret not found")
	ErrExists   = errors.New("vault: secret already exists")
)

// Vault 按 userID 寻址的密文存储。记录一经写入不可覆盖。
type Vault interface {
	// Get 返回 userID 的密文记录，不存在时返回 ErrNotFound
	Get(ctx context.Context, userID string) (*keystore.EncryptedKeyJSON, error)
	// PutIfAbsent 写入记录，已存在时返回 ErrExists 且不修改原记录
	PutIfAbsent(ctx context.Context, userID string, rec *keystore.EncryptedKeyJSON) error
	Close() error
}
