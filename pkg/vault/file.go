package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"tipbot-core/pkg/crypto_util"
	"tipbot-core/pkg/keystore"
)

// FileVault 每个用户一个 0600 的 keystore JSON 文件，文件名为 blake3(userID)
type FileVault struct {
	dir string
}

func OpenFile(dir string) (*FileVault, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create vault dir: %w", err)
	}
	return &FileVault{dir: dir}, nil
}

func (v *FileVault) path(userID string) string {
	return filepath.Join(v.dir, crypto_util.CalculateBlake3([]byte(userID))+".json")
}

func (v *FileVault) Get(ctx context.Context, userID string) (*keystore.EncryptedKeyJSON, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := keystore.LoadFromFile(v.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (v *FileVault) PutIfAbsent(ctx context.Context, userID string, rec *keystore.EncryptedKeyJSON) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	// 先写临时文件，再用 Link 原子地创建目标文件；目标存在时 Link 失败
	tmp, err := os.CreateTemp(v.dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Link(tmp.Name(), v.path(userID)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return err
	}
	return nil
}

func (v *FileVault) Close() error { return nil }
