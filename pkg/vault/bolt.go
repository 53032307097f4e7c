package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"tipbot-core/pkg/keystore"
)

var secretsBucket = []byte("secrets")

// BoltVault 基于 bbolt 的单文件 Vault
type BoltVault struct {
	db *bolt.DB
}

// OpenBolt 打开 (或创建) bbolt 文件
func OpenBolt(path string) (*BoltVault, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open vault %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(secretsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init vault bucket: %w", err)
	}
	return &BoltVault{db: db}, nil
}

func (v *BoltVault) Get(ctx context.Context, userID string) (*keystore.EncryptedKeyJSON, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *keystore.EncryptedKeyJSON
	err := v.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(secretsBucket).Get([]byte(userID))
		if data == nil {
			return ErrNotFound
		}
		rec = new(keystore.EncryptedKeyJSON)
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (v *BoltVault) PutIfAbsent(ctx context.Context, userID string, rec *keystore.EncryptedKeyJSON) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	// bbolt 的写事务是串行的，检查和写入在同一个事务里
	return v.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(secretsBucket)
		if b.Get([]byte(userID)) != nil {
			return ErrExists
		}
		return b.Put([]byte(userID), data)
	})
}

func (v *BoltVault) Close() error {
	return v.db.Close()
}
