package tipping

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tipbot-core/internal/ledger"
	"tipbot-core/internal/model"
	"tipbot-core/internal/service/droptip"
	"tipbot-core/internal/service/gas"
	"tipbot-core/internal/service/wallet"
	"tipbot-core/internal/store"
	"tipbot-core/pkg/amount"
	"tipbot-core/pkg/errno"
	"tipbot-core/pkg/keystore"
	"tipbot-core/pkg/vault"
)

type fixture struct {
	svc     *Service
	chain   *ledger.Simulated
	store   *store.Memory
	wallets *wallet.Manager
	escrow  common.Address
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithFee(t, nil)
}

func newFixtureWithFee(t *testing.T, tipFeeBps *uint64) *fixture {
	t.Helper()
	bv, err := vault.OpenBolt(filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bv.Close() })

	mem := store.NewMemory()
	wallets, err := wallet.NewManager(wallet.Options{
		Store:          mem,
		Vault:          bv,
		OperatorSecret: []byte("operator-secret"),
		KDF:            keystore.Params{N: 1 << 10, R: 8, P: 1},
	})
	require.NoError(t, err)

	ctx := context.Background()
	chain := ledger.NewSimulated()
	reserve, err := wallets.Address(ctx, wallet.ReserveUserID)
	require.NoError(t, err)
	chain.MintNative(reserve, amount.FromUint64(1_000_000_000))
	escrow, err := wallets.Address(ctx, wallet.EscrowUserID)
	require.NoError(t, err)

	journal := store.NewJournal(mem)
	guard := gas.NewGuard(chain, wallets, journal, nil)
	engine, err := droptip.NewEngine(droptip.Options{
		Store:     mem,
		Ledger:    chain,
		Wallets:   wallets,
		Gas:       guard,
		Scheduler: droptip.NewTimerScheduler(),
	})
	require.NoError(t, err)
	t.Cleanup(engine.Stop)

	svc, err := NewService(Options{
		Engine:    engine,
		Wallets:   wallets,
		Ledger:    chain,
		Gas:       guard,
		Journal:   journal,
		Decimals:  18,
		Symbol:    "TIP",
		TipFeeBps: tipFeeBps,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, chain: chain, store: mem, wallets: wallets, escrow: escrow}
}

func (f *fixture) fund(t *testing.T, userID string, tokens uint64) common.Address {
	t.Helper()
	addr, err := f.wallets.Address(context.Background(), userID)
	require.NoError(t, err)
	f.chain.Mint(addr, amount.FromUint64(tokens))
	return addr
}

func (f *fixture) balance(t *testing.T, userID string) string {
	t.Helper()
	b, err := f.svc.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b.Token.String()
}

func TestCreateTip(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "alice", 1010)

	res, err := f.svc.CreateTip(context.Background(), "alice", "bob", amount.FromUint64(1000))
	require.NoError(t, err)
	assert.NotEmpty(t, res.TxHash)
	assert.Equal(t, "10", res.Fee.String())
	assert.True(t, res.FeeCollected)
	assert.NotEmpty(t, res.FeeTxHash)

	assert.Equal(t, "0", f.balance(t, "alice"))
	assert.Equal(t, "1000", f.balance(t, "bob"))
	bal, err := f.chain.BalanceOf(context.Background(), f.escrow)
	require.NoError(t, err)
	assert.Equal(t, "10", bal.String())

	kinds := map[string]string{}
	for _, tr := range f.store.Transfers() {
		kinds[tr.Kind] = tr.Status
	}
	assert.Equal(t, model.TransferConfirmed, kinds[model.TransferTip])
	assert.Equal(t, model.TransferConfirmed, kinds[model.TransferTipFee])
}

func TestCreateTipWithoutFee(t *testing.T) {
	zero := uint64(0)
	f := newFixtureWithFee(t, &zero)
	f.fund(t, "alice", 1000)

	res, err := f.svc.CreateTip(context.Background(), "alice", "bob", amount.FromUint64(1000))
	require.NoError(t, err)
	assert.True(t, res.Fee.IsZero())
	assert.True(t, res.FeeCollected)
	assert.Empty(t, res.FeeTxHash)
	assert.Equal(t, "0", f.balance(t, "alice"))
	assert.Equal(t, "1000", f.balance(t, "bob"))
}

func TestTipFeeOutOfRange(t *testing.T) {
	tooHigh := uint64(amount.BpsDenominator + 1)
	_, err := NewService(Options{TipFeeBps: &tooHigh})
	assert.ErrorIs(t, err, amount.ErrBpsRange)
}

func TestCreateTipRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 500)

	_, err := f.svc.CreateTip(ctx, "alice", "alice", amount.FromUint64(10))
	assert.ErrorIs(t, err, errno.ErrSelfTip)

	_, err = f.svc.CreateTip(ctx, "alice", "bob", amount.Zero())
	assert.ErrorIs(t, err, errno.ErrInvalidAmount)

	// 余额需要覆盖金额 + 手续费
	_, err = f.svc.CreateTip(ctx, "alice", "bob", amount.FromUint64(500))
	assert.ErrorIs(t, err, errno.ErrInsufficientFunds)

	assert.Empty(t, f.chain.History())
}

func TestCreateTipFeeFailureKeepsTip(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "alice", 2000)
	f.chain.FailTransfersTo(f.escrow, errors.New("rejected"))

	res, err := f.svc.CreateTip(context.Background(), "alice", "bob", amount.FromUint64(1000))
	require.NoError(t, err)
	assert.False(t, res.FeeCollected)
	assert.Equal(t, "1000", f.balance(t, "bob"))
	assert.Equal(t, "1000", f.balance(t, "alice"))
}

func TestDroptipThroughService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 1010)

	d, err := f.svc.CreateDroptip(ctx, droptip.CreateRequest{SenderID: "alice", Gross: amount.FromUint64(1000), DurationMinutes: 5})
	require.NoError(t, err)

	_, err = f.svc.ClaimDroptip(ctx, d.ID, droptip.Claimant{UserID: "bob"})
	require.NoError(t, err)
	_, err = f.svc.ClaimDroptip(ctx, d.ID, droptip.Claimant{UserID: "bob"})
	assert.ErrorIs(t, err, errno.ErrAlreadyClaimed)

	got, err := f.svc.GetDroptip(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, got.Attendees, 1)
	assert.True(t, got.ExpiresAt.After(time.Now()))
}

func TestBalanceAndDepositAddress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	addr, err := f.svc.GetDepositAddress(ctx, "newcomer")
	require.NoError(t, err)
	assert.True(t, common.IsHexAddress(addr))

	again, err := f.svc.GetDepositAddress(ctx, "newcomer")
	require.NoError(t, err)
	assert.Equal(t, addr, again)

	f.chain.Mint(common.HexToAddress(addr), amount.FromUint64(42))
	b, err := f.svc.GetBalance(ctx, "newcomer")
	require.NoError(t, err)
	assert.Equal(t, addr, b.Address)
	assert.Equal(t, "42", b.Token.String())
	assert.True(t, b.Native.IsZero())
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)
	dest := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	_, err := f.svc.Withdraw(ctx, "alice", "not-an-address", amount.FromUint64(1))
	assert.ErrorIs(t, err, errno.ErrInvalidAddress)
	_, err = f.svc.Withdraw(ctx, "alice", common.Address{}.Hex(), amount.FromUint64(1))
	assert.ErrorIs(t, err, errno.ErrInvalidAddress)
	_, err = f.svc.Withdraw(ctx, "alice", dest.Hex(), amount.FromUint64(101))
	assert.ErrorIs(t, err, errno.ErrInsufficientFunds)

	txHash, err := f.svc.Withdraw(ctx, "alice", dest.Hex(), amount.FromUint64(60))
	require.NoError(t, err)
	assert.NotEmpty(t, txHash)

	bal, err := f.chain.BalanceOf(ctx, dest)
	require.NoError(t, err)
	assert.Equal(t, "60", bal.String())
	assert.Equal(t, "40", f.balance(t, "alice"))
}
