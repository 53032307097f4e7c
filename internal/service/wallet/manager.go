// Package wallet 管理每个用户的托管签名身份。
// 私钥只以密文形式保存在 Vault 中，只在 SignerFor 返回的一次性签名器里短暂存在明文。
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"tipbot-core/internal/model"
	"tipbot-core/internal/store"
	"tipbot-core/pkg/cache"
	"tipbot-core/pkg/crypto_util"
	"tipbot-core/pkg/errno"
	"tipbot-core/pkg/keystore"
	"tipbot-core/pkg/logger"
	"tipbot-core/pkg/monitor"
	"tipbot-core/pkg/utils/lock"
	"tipbot-core/pkg/vault"
)

// 运营方身份，平台用户 ID 不允许使用 operator: 前缀
const (
	OperatorPrefix = "operator:"
	EscrowUserID   = OperatorPrefix + "escrow"
	ReserveUserID  = OperatorPrefix + "reserve"
)

var ErrAddressMismatch = errors.New("wallet: vault record does not match identity address")

type Options struct {
	Store          store.Store
	Vault          vault.Vault
	Cache          cache.Cache // 可选
	CacheTTL       time.Duration
	OperatorSecret []byte
	KDF            keystore.Params
	Metrics        *monitor.BusinessMetrics
}

// Manager 托管钱包管理器
type Manager struct {
	store    store.Store
	vault    vault.Vault
	cache    cache.Cache
	cacheTTL time.Duration
	secret   []byte
	kdf      keystore.Params
	metrics  *monitor.BusinessMetrics
	users    *lock.KeyedMutex
}

func NewManager(opts Options) (*Manager, error) {
	if len(opts.OperatorSecret) == 0 {
		return nil, errors.New("wallet: operator secret is required")
	}
	if opts.KDF.N == 0 {
		opts.KDF = keystore.LightParams
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = time.Hour
	}
	return &Manager{
		store:    opts.Store,
		vault:    opts.Vault,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		secret:   append([]byte(nil), opts.OperatorSecret...),
		kdf:      opts.KDF,
		metrics:  opts.Metrics,
		users:    lock.NewKeyedMutex(),
	}, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errno.ErrIdentityUnavailable.WithMessage(
		errno.ErrIdentityUnavailable.Message+": "+err.Error()))
}

func cacheKey(userID string) string {
	return "identity:" + userID
}

// ResolveIdentity 返回 userID 的托管身份，不存在时创建。
// 只有确定不存在 (ErrNotFound) 时才会生成新密钥，其他读错误一律返回 IdentityUnavailable。
func (m *Manager) ResolveIdentity(ctx context.Context, userID string) (*model.Identity, error) {
	if identity := m.cached(ctx, userID); identity != nil {
		return identity, nil
	}

	identity, err := m.store.GetIdentity(ctx, userID)
	if err == nil {
		m.remember(ctx, identity)
		return identity, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, unavailable("resolve identity", err)
	}

	unlock := m.users.Lock(userID)
	defer unlock()

	// 拿到锁之后再查一次，并发请求可能已经创建
	identity, err = m.store.GetIdentity(ctx, userID)
	if err == nil {
		m.remember(ctx, identity)
		return identity, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, unavailable("resolve identity", err)
	}

	address, err := m.ensureSecret(ctx, userID)
	if err != nil {
		return nil, err
	}

	identity, err = m.store.CreateIdentity(ctx, &model.Identity{UserID: userID, Address: address})
	if err != nil {
		// 密文已在 Vault，下次解析时会按孤儿记录恢复
		return nil, unavailable("create identity", err)
	}
	if identity.Address != address {
		logger.Error("[Wallet] 身份地址与 Vault 记录不一致", zap.String("user_id", userID))
		return nil, unavailable("create identity", ErrAddressMismatch)
	}

	m.metrics.IdentityCreated()
	logger.Info("[Wallet] 新建托管身份", zap.String("user_id", userID), zap.String("address", address))
	m.remember(ctx, identity)
	return identity, nil
}

// ensureSecret 返回 Vault 中 userID 对应的地址；没有记录时生成新密钥并写入
func (m *Manager) ensureSecret(ctx context.Context, userID string) (string, error) {
	rec, err := m.vault.Get(ctx, userID)
	if err == nil {
		// 上次在写 Store 之前崩溃留下的孤儿密文，直接复用，不能再生成第二把钥匙
		if !common.IsHexAddress(rec.Address) {
			return "", unavailable("recover identity", fmt.Errorf("invalid vault address %q", rec.Address))
		}
		logger.Warn("[Wallet] 从 Vault 恢复孤儿身份", zap.String("user_id", userID), zap.String("address", rec.Address))
		return rec.Address, nil
	}
	if !errors.Is(err, vault.ErrNotFound) {
		return "", unavailable("read vault", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return "", unavailable("generate key", err)
	}
	defer wipeKey(key)

	rec, err = m.seal(key)
	if err != nil {
		return "", unavailable("seal key", err)
	}

	if err := m.vault.PutIfAbsent(ctx, userID, rec); err != nil {
		if !errors.Is(err, vault.ErrExists) {
			return "", unavailable("write vault", err)
		}
		// 另一个进程抢先写入，以 Vault 中的记录为准
		existing, gerr := m.vault.Get(ctx, userID)
		if gerr != nil {
			return "", unavailable("read vault", gerr)
		}
		return existing.Address, nil
	}
	return rec.Address, nil
}

func (m *Manager) seal(key *ecdsa.PrivateKey) (*keystore.EncryptedKeyJSON, error) {
	raw := crypto.FromECDSA(key)
	defer crypto_util.Wipe(raw)

	rec, err := keystore.Seal(raw, m.secret, m.kdf)
	if err != nil {
		return nil, err
	}
	rec.Address = crypto.PubkeyToAddress(key.PublicKey).Hex()
	return rec, nil
}

// ImportIdentity 把外部私钥 (运营方 HD 派生) 写入 Vault 和 Store。
// 已存在时校验地址一致，不一致返回 ErrAddressMismatch。
func (m *Manager) ImportIdentity(ctx context.Context, userID string, key *ecdsa.PrivateKey) (*model.Identity, error) {
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	unlock := m.users.Lock(userID)
	defer unlock()

	rec, err := m.vault.Get(ctx, userID)
	switch {
	case err == nil:
		if !strings.EqualFold(rec.Address, address) {
			return nil, fmt.Errorf("import %s: %w", userID, ErrAddressMismatch)
		}
	case errors.Is(err, vault.ErrNotFound):
		rec, err = m.seal(key)
		if err != nil {
			return nil, err
		}
		if err := m.vault.PutIfAbsent(ctx, userID, rec); err != nil {
			return nil, fmt.Errorf("import %s: %w", userID, err)
		}
	default:
		return nil, unavailable("read vault", err)
	}

	identity, err := m.store.CreateIdentity(ctx, &model.Identity{UserID: userID, Address: address})
	if err != nil {
		return nil, unavailable("create identity", err)
	}
	if !strings.EqualFold(identity.Address, address) {
		return nil, fmt.Errorf("import %s: %w", userID, ErrAddressMismatch)
	}
	m.remember(ctx, identity)
	return identity, nil
}

// SignerFor 解密 userID 的私钥，返回只能签一笔交易的签名器
func (m *Manager) SignerFor(ctx context.Context, userID string) (*ScopedSigner, error) {
	identity, err := m.ResolveIdentity(ctx, userID)
	if err != nil {
		return nil, err
	}

	rec, err := m.vault.Get(ctx, userID)
	if err != nil {
		return nil, unavailable("read vault", err)
	}

	raw, err := keystore.Open(rec, m.secret)
	if err != nil {
		return nil, unavailable("open secret", err)
	}
	key, err := crypto.ToECDSA(raw)
	crypto_util.Wipe(raw)
	if err != nil {
		return nil, unavailable("decode secret", err)
	}

	signer := newScopedSigner(key)
	if !strings.EqualFold(signer.Address().Hex(), identity.Address) {
		signer.Release()
		return nil, unavailable("open secret", ErrAddressMismatch)
	}
	return signer, nil
}

// Address 返回已解析身份的地址
func (m *Manager) Address(ctx context.Context, userID string) (common.Address, error) {
	identity, err := m.ResolveIdentity(ctx, userID)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(identity.Address), nil
}

func (m *Manager) cached(ctx context.Context, userID string) *model.Identity {
	if m.cache == nil {
		return nil
	}
	var identity model.Identity
	if err := m.cache.Get(ctx, cacheKey(userID), &identity); err != nil {
		return nil
	}
	return &identity
}

// 身份创建后不可变，可以放心缓存
func (m *Manager) remember(ctx context.Context, identity *model.Identity) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Set(ctx, cacheKey(identity.UserID), identity, m.cacheTTL); err != nil {
		logger.Warn("[Wallet] 写入身份缓存失败", zap.String("user_id", identity.UserID), zap.Error(err))
	}
}
