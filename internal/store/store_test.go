package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tipbot-core/internal/model"
	"tipbot-core/pkg/amount"
	"tipbot-core/pkg/database"
)

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := database.ConnectSQLite(filepath.Join(t.TempDir(), "store.db"), "test")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	t.Cleanup(func() { database.Close(db) })
	return NewGormStore(db)
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": newSQLiteStore(t),
	}
}

func openDroptip(t *testing.T, s Store, now time.Time) *model.Droptip {
	t.Helper()
	d := &model.Droptip{
		SenderID:        "sender",
		GrossAmount:     amount.FromUint64(1000),
		FeeAmount:       amount.FromUint64(10),
		DurationMinutes: 5,
		State:           model.DroptipOpen,
		CreatedAt:       now,
		ExpiresAt:       now.Add(5 * time.Minute),
	}
	require.NoError(t, s.CreateDroptip(context.Background(), d))
	require.NotZero(t, d.ID)
	return d
}

func TestIdentityCreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetIdentity(ctx, "alice")
			assert.ErrorIs(t, err, ErrNotFound)

			first, err := s.CreateIdentity(ctx, &model.Identity{UserID: "alice", Address: "0x01"})
			require.NoError(t, err)
			assert.Equal(t, "0x01", first.Address)

			// 第二次创建不会覆盖
			second, err := s.CreateIdentity(ctx, &model.Identity{UserID: "alice", Address: "0x02"})
			require.NoError(t, err)
			assert.Equal(t, "0x01", second.Address)

			got, err := s.GetIdentity(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, "0x01", got.Address)
		})
	}
}

func TestAddAttendeeRules(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			d := openDroptip(t, s, now)

			require.NoError(t, s.AddAttendee(ctx, &model.Attendee{DroptipID: d.ID, ClaimantID: "bob", Address: "0xb"}, now))
			require.NoError(t, s.AddAttendee(ctx, &model.Attendee{DroptipID: d.ID, ClaimantID: "carol", Address: "0xc"}, now))

			err := s.AddAttendee(ctx, &model.Attendee{DroptipID: d.ID, ClaimantID: "bob", Address: "0xb"}, now)
			assert.ErrorIs(t, err, ErrDuplicate)

			// 到期时刻 (now >= expiresAt) 不能再领
			err = s.AddAttendee(ctx, &model.Attendee{DroptipID: d.ID, ClaimantID: "dave", Address: "0xd"}, d.ExpiresAt)
			assert.ErrorIs(t, err, ErrClosed)

			err = s.AddAttendee(ctx, &model.Attendee{DroptipID: 9999, ClaimantID: "bob"}, now)
			assert.ErrorIs(t, err, ErrNotFound)

			got, err := s.GetDroptip(ctx, d.ID)
			require.NoError(t, err)
			require.Len(t, got.Attendees, 2)
			assert.Equal(t, "bob", got.Attendees[0].ClaimantID)
			assert.Equal(t, 0, got.Attendees[0].Position)
			assert.Equal(t, "carol", got.Attendees[1].ClaimantID)
			assert.Equal(t, model.PayoutPending, got.Attendees[1].PayoutStatus)
		})
	}
}

func TestConcurrentClaimsAreUnique(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			d := openDroptip(t, s, now)

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					// 每个用户尝试两次
					user := fmt.Sprintf("user-%d", i%10)
					_ = s.AddAttendee(ctx, &model.Attendee{DroptipID: d.ID, ClaimantID: user, Address: "0x" + user}, now)
				}(i)
			}
			wg.Wait()

			got, err := s.GetDroptip(ctx, d.ID)
			require.NoError(t, err)
			assert.Len(t, got.Attendees, 10)
			seen := map[string]bool{}
			for i, a := range got.Attendees {
				assert.False(t, seen[a.ClaimantID], "duplicate attendee %s", a.ClaimantID)
				seen[a.ClaimantID] = true
				assert.Equal(t, i, a.Position)
			}
		})
	}
}

func TestBeginSettlementFreezesAttendees(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			d := openDroptip(t, s, now)
			require.NoError(t, s.AddAttendee(ctx, &model.Attendee{DroptipID: d.ID, ClaimantID: "bob", Address: "0xb"}, now))

			snap, err := s.BeginSettlement(ctx, d.ID, now)
			require.NoError(t, err)
			require.NotNil(t, snap.SettlementStartedAt)
			assert.Len(t, snap.Attendees, 1)

			// 结算开始后，即使还没到期也不接受领取
			err = s.AddAttendee(ctx, &model.Attendee{DroptipID: d.ID, ClaimantID: "carol", Address: "0xc"}, now)
			assert.ErrorIs(t, err, ErrClosed)

			// 重入返回同一个快照
			again, err := s.BeginSettlement(ctx, d.ID, now.Add(time.Minute))
			require.NoError(t, err)
			assert.Len(t, again.Attendees, 1)
			assert.WithinDuration(t, *snap.SettlementStartedAt, *again.SettlementStartedAt, time.Second)

			snap.Attendees[0].PayoutStatus = model.PayoutPaid
			snap.Attendees[0].PayoutAmount = amount.FromUint64(1000)
			snap.Attendees[0].PayoutTxHash = "0xhash"
			require.NoError(t, s.SaveAttendee(ctx, &snap.Attendees[0]))

			settledAt := now.Add(time.Minute)
			snap.State = model.DroptipSettled
			snap.SettledAt = &settledAt
			snap.Outcome = model.OutcomeSplit
			snap.ShareAmount = amount.FromUint64(1000)
			require.NoError(t, s.SaveSettlement(ctx, snap))

			final, err := s.BeginSettlement(ctx, d.ID, now)
			assert.ErrorIs(t, err, ErrSettled)
			require.NotNil(t, final)
			assert.Equal(t, model.OutcomeSplit, final.Outcome)
			assert.Equal(t, "1000", final.ShareAmount.String())
			assert.Equal(t, model.PayoutPaid, final.Attendees[0].PayoutStatus)
			assert.Equal(t, "0xhash", final.Attendees[0].PayoutTxHash)

			open, err := s.ListOpenDroptips(ctx)
			require.NoError(t, err)
			assert.Empty(t, open)
		})
	}
}

func TestListOpenDroptipsOrdered(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			late := &model.Droptip{SenderID: "a", State: model.DroptipOpen, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
			early := &model.Droptip{SenderID: "b", State: model.DroptipOpen, ExpiresAt: now.Add(-time.Minute), CreatedAt: now}
			require.NoError(t, s.CreateDroptip(ctx, late))
			require.NoError(t, s.CreateDroptip(ctx, early))

			list, err := s.ListOpenDroptips(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, early.ID, list[0].ID)
			assert.Equal(t, late.ID, list[1].ID)
		})
	}
}

func TestTransferJournal(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			tr := &model.Transfer{
				Kind:        model.TransferEscrowFunding,
				Reference:   "droptip:pending",
				FromAddress: "0xa",
				ToAddress:   "0xe",
				Amount:      amount.FromUint64(1010),
				Status:      model.TransferSubmitted,
			}
			require.NoError(t, s.RecordTransfer(ctx, tr))
			require.NotZero(t, tr.ID)

			tr.Status = model.TransferConfirmed
			tr.TxHash = "0xdead"
			require.NoError(t, s.UpdateTransfer(ctx, tr))
		})
	}
}
