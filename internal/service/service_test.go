package service

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tipbot-core/internal/event"
	"tipbot-core/internal/model"
	"tipbot-core/internal/store"
	"tipbot-core/pkg/amount"
	"tipbot-core/pkg/database"
	"tipbot-core/pkg/monitor"
)

type fakeProducer struct {
	mu       sync.Mutex
	fail     error
	messages map[string][][]byte
}

func newFakeProducer() *fakeProducer {
	return &fakeProducer{messages: map[string][][]byte{}}
}

func (p *fakeProducer) Publish(_ context.Context, topic, _ string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.messages[topic] = append(p.messages[topic], payload)
	return nil
}

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.ConnectSQLite(filepath.Join(t.TempDir(), "relay.db"), "test")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	t.Cleanup(func() { database.Close(db) })
	return db
}

func TestRelayDeliversOutbox(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	gs := store.NewGormStore(db)
	require.NoError(t, gs.Publish(ctx, event.TopicDroptipClaimed, event.DroptipClaimedEvent{DroptipID: 1, ClaimantID: "bob"}))
	require.NoError(t, gs.Publish(ctx, event.TopicDroptipClaimed, event.DroptipClaimedEvent{DroptipID: 1, ClaimantID: "carol", Position: 1}))

	producer := newFakeProducer()
	relay := NewRelayService(db, producer)
	assert.Equal(t, 2, relay.ProcessPending(ctx))
	// 已投递的不再发送
	assert.Equal(t, 0, relay.ProcessPending(ctx))

	msgs := producer.messages[event.TopicDroptipClaimed]
	require.Len(t, msgs, 2)
	var first event.DroptipClaimedEvent
	require.NoError(t, json.Unmarshal(msgs[0], &first))
	assert.Equal(t, "bob", first.ClaimantID)
}

func TestRelayMarksFailedAfterMaxAttempts(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	require.NoError(t, store.NewGormStore(db).Publish(ctx, event.TopicDroptipSettled, event.DroptipSettledEvent{DroptipID: 3}))

	producer := newFakeProducer()
	producer.fail = errors.New("broker down")
	relay := NewRelayService(db, producer)
	for i := 0; i < maxRelayAttempts; i++ {
		assert.Equal(t, 0, relay.ProcessPending(ctx))
	}

	var msg model.OutboxMessage
	require.NoError(t, db.First(&msg).Error)
	assert.Equal(t, model.OutboxFailed, msg.Status)
	assert.Equal(t, maxRelayAttempts, msg.Attempts)

	producer.fail = nil
	assert.Equal(t, 0, relay.ProcessPending(ctx))
}

func TestDirectPublisher(t *testing.T) {
	producer := newFakeProducer()
	pub := NewDirectPublisher(producer)
	require.NoError(t, pub.Publish(context.Background(), event.TopicTipCreated, event.TipCreatedEvent{SenderID: "alice"}))
	require.Len(t, producer.messages[event.TopicTipCreated], 1)
	assert.Contains(t, string(producer.messages[event.TopicTipCreated][0]), `"sender_id":"alice"`)
}

type fakeSweeper struct {
	mu    sync.Mutex
	calls int
}

func (s *fakeSweeper) SettleExpired(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return 1, nil
}

type fakeReserve struct{ bal amount.Amount }

func (r fakeReserve) ReserveBalance(context.Context) (amount.Amount, error) { return r.bal, nil }

type fakeLocker struct {
	held bool
}

func (l *fakeLocker) Acquire(context.Context, string, time.Duration) (bool, error) {
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLocker) Release(context.Context, string) error {
	l.held = false
	return nil
}

func TestCronSweepRespectsLock(t *testing.T) {
	sweeper := &fakeSweeper{}
	locker := &fakeLocker{}
	c := NewCronService("", sweeper, fakeReserve{}, locker, nil)

	c.SweepExpired()
	assert.Equal(t, 1, sweeper.calls)
	assert.False(t, locker.held, "lock released after sweep")

	// 另一个实例持有锁时跳过
	locker.held = true
	c.SweepExpired()
	assert.Equal(t, 1, sweeper.calls)
}

func TestCronReportReserve(t *testing.T) {
	metrics := monitor.NewBusinessMetrics(prometheus.NewRegistry())
	c := NewCronService("@every 1m", &fakeSweeper{}, fakeReserve{bal: amount.FromUint64(123456)}, nil, metrics)
	c.ReportReserve()
	assert.Equal(t, float64(123456), testutil.ToFloat64(metrics.ReserveNativeBalance))

	require.NoError(t, c.Start())
	c.Stop()
}
