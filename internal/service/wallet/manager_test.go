package wallet

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tipbot-core/internal/model"
	"tipbot-core/internal/store"
	"tipbot-core/pkg/cache"
	"tipbot-core/pkg/errno"
	"tipbot-core/pkg/keystore"
	"tipbot-core/pkg/vault"
)

var testKDF = keystore.Params{N: 1 << 10, R: 8, P: 1}

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// flakyStore 读取身份时返回指定错误
type flakyStore struct {
	store.Store
	getErr error
}

func (s *flakyStore) GetIdentity(ctx context.Context, userID string) (*model.Identity, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.Store.GetIdentity(ctx, userID)
}

// flakyVault 可以让读/写失败，并统计写入次数
type flakyVault struct {
	vault.Vault
	mu     sync.Mutex
	getErr error
	putErr error
	puts   int
}

func (v *flakyVault) Get(ctx context.Context, userID string) (*keystore.EncryptedKeyJSON, error) {
	if v.getErr != nil {
		return nil, v.getErr
	}
	return v.Vault.Get(ctx, userID)
}

func (v *flakyVault) PutIfAbsent(ctx context.Context, userID string, rec *keystore.EncryptedKeyJSON) error {
	v.mu.Lock()
	v.puts++
	v.mu.Unlock()
	if v.putErr != nil {
		return v.putErr
	}
	return v.Vault.PutIfAbsent(ctx, userID, rec)
}

type fixture struct {
	manager *Manager
	store   *flakyStore
	vault   *flakyVault
}

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()
	bv, err := vault.OpenBolt(filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bv.Close() })

	fs := &flakyStore{Store: store.NewMemory()}
	fv := &flakyVault{Vault: bv}
	opts := Options{Store: fs, Vault: fv, OperatorSecret: []byte("operator-secret"), KDF: testKDF}
	if withCache {
		opts.Cache = cache.NewMultiLevelCache(cache.NewMemoryCache(0, 0), nil)
	}
	m, err := NewManager(opts)
	require.NoError(t, err)
	return &fixture{manager: m, store: fs, vault: fv}
}

func TestResolveIdentityCreatesOnce(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	first, err := f.manager.ResolveIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, common.IsHexAddress(first.Address))

	second, err := f.manager.ResolveIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.Address, second.Address)
	assert.Equal(t, 1, f.vault.puts)

	other, err := f.manager.ResolveIdentity(ctx, "bob")
	require.NoError(t, err)
	assert.NotEqual(t, first.Address, other.Address)
}

func TestResolveIdentityConcurrent(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	var wg sync.WaitGroup
	addrs := make([]string, 16)
	for i := range addrs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			identity, err := f.manager.ResolveIdentity(ctx, "carol")
			if assert.NoError(t, err) {
				addrs[i] = identity.Address
			}
		}(i)
	}
	wg.Wait()

	for _, a := range addrs {
		assert.Equal(t, addrs[0], a)
	}
	assert.Equal(t, 1, f.vault.puts, "exactly one key must be generated")
}

func TestResolveIdentityStoreUnavailable(t *testing.T) {
	f := newFixture(t, false)
	f.store.getErr = errors.New("connection refused")

	_, err := f.manager.ResolveIdentity(context.Background(), "dave")
	assert.ErrorIs(t, err, errno.ErrIdentityUnavailable)
	assert.Zero(t, f.vault.puts, "no key may be generated on a transient read failure")
}

func TestResolveIdentityVaultUnavailable(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.vault.getErr = errors.New("vault timeout")
	_, err := f.manager.ResolveIdentity(ctx, "erin")
	assert.ErrorIs(t, err, errno.ErrIdentityUnavailable)
	assert.Zero(t, f.vault.puts)

	f.vault.getErr = nil
	f.vault.putErr = errors.New("disk full")
	_, err = f.manager.ResolveIdentity(ctx, "erin")
	assert.ErrorIs(t, err, errno.ErrIdentityUnavailable)

	_, err = f.store.Store.GetIdentity(ctx, "erin")
	assert.ErrorIs(t, err, store.ErrNotFound, "identity row must not exist without a secret")
}

func TestResolveIdentityRecoversOrphanSecret(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	// 模拟上次写完 Vault 后、写 Store 前崩溃
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	rec, err := f.manager.seal(key)
	require.NoError(t, err)
	require.NoError(t, f.vault.Vault.PutIfAbsent(ctx, "frank", rec))

	identity, err := f.manager.ResolveIdentity(ctx, "frank")
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), identity.Address)
	assert.Zero(t, f.vault.puts)
}

func TestSignerForSignsExactlyOnce(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	identity, err := f.manager.ResolveIdentity(ctx, "grace")
	require.NoError(t, err)

	signer, err := f.manager.SignerFor(ctx, "grace")
	require.NoError(t, err)
	defer signer.Release()
	assert.Equal(t, identity.Address, signer.Address().Hex())

	chainID := big.NewInt(56)
	tx := types.NewTransaction(0, common.HexToAddress("0x01"), big.NewInt(1), 21000, big.NewInt(1), nil)
	signed, err := signer.SignTx(tx, chainID)
	require.NoError(t, err)

	from, err := types.Sender(types.NewEIP155Signer(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, identity.Address, from.Hex())

	assert.True(t, signer.Spent())
	_, err = signer.SignTx(tx, chainID)
	assert.ErrorIs(t, err, ErrSignerSpent)
}

func TestSignerReleaseWipesKey(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	signer, err := f.manager.SignerFor(ctx, "heidi")
	require.NoError(t, err)
	key := signer.key
	require.NotNil(t, key)

	signer.Release()
	signer.Release() // 幂等
	assert.Equal(t, 0, key.D.Sign())
	assert.True(t, signer.Spent())

	_, err = signer.SignTx(types.NewTransaction(0, common.Address{}, big.NewInt(0), 21000, big.NewInt(1), nil), big.NewInt(1))
	assert.ErrorIs(t, err, ErrSignerSpent)
}

func TestSignerForWrongOperatorSecret(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	_, err := f.manager.ResolveIdentity(ctx, "ivan")
	require.NoError(t, err)

	other, err := NewManager(Options{Store: f.store, Vault: f.vault, OperatorSecret: []byte("another"), KDF: testKDF})
	require.NoError(t, err)
	_, err = other.SignerFor(ctx, "ivan")
	assert.ErrorIs(t, err, errno.ErrIdentityUnavailable)
}

func TestImportOperator(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	require.NoError(t, f.manager.ImportOperator(ctx, testMnemonic))
	// 第二次启动重复导入是安全的
	require.NoError(t, f.manager.ImportOperator(ctx, testMnemonic))

	escrow, err := f.manager.Address(ctx, EscrowUserID)
	require.NoError(t, err)
	assert.Equal(t, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", escrow.Hex())

	reserve, err := f.manager.Address(ctx, ReserveUserID)
	require.NoError(t, err)
	assert.NotEqual(t, escrow, reserve)

	signer, err := f.manager.SignerFor(ctx, EscrowUserID)
	require.NoError(t, err)
	defer signer.Release()
	assert.Equal(t, escrow, signer.Address())
}

func TestImportIdentityMismatch(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.manager.ResolveIdentity(ctx, EscrowUserID)
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, err = f.manager.ImportIdentity(ctx, EscrowUserID, key)
	assert.ErrorIs(t, err, ErrAddressMismatch)
}
