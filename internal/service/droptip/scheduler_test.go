package droptip

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type firedRecorder struct {
	mu    sync.Mutex
	fired []uint64
	done  chan uint64
}

func newFiredRecorder() *firedRecorder {
	return &firedRecorder{done: make(chan uint64, 16)}
}

func (r *firedRecorder) handle(_ context.Context, id uint64) {
	r.mu.Lock()
	r.fired = append(r.fired, id)
	r.mu.Unlock()
	r.done <- id
}

func (r *firedRecorder) count(id uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.fired {
		if f == id {
			n++
		}
	}
	return n
}

func waitFired(t *testing.T, r *firedRecorder) uint64 {
	t.Helper()
	select {
	case id := <-r.done:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
		return 0
	}
}

func TestTimerSchedulerFiresOnce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewTimerScheduler()
	r := newFiredRecorder()
	require.NoError(t, s.Start(r.handle))
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, 1, time.Now().Add(20*time.Millisecond)))
	// 已经过期的立即触发
	require.NoError(t, s.Schedule(ctx, 2, time.Now().Add(-time.Second)))

	got := map[uint64]bool{waitFired(t, r): true, waitFired(t, r): true}
	assert.Equal(t, map[uint64]bool{1: true, 2: true}, got)
	assert.Zero(t, s.Pending())

	s.Stop()
	assert.Equal(t, 1, r.count(1))
	assert.Equal(t, 1, r.count(2))
}

func TestTimerSchedulerRescheduleReplaces(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewTimerScheduler()
	r := newFiredRecorder()
	require.NoError(t, s.Start(r.handle))
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, 7, time.Now().Add(10*time.Millisecond)))
	require.NoError(t, s.Schedule(ctx, 7, time.Now().Add(60*time.Millisecond)))
	assert.Equal(t, 1, s.Pending())

	start := time.Now()
	assert.Equal(t, uint64(7), waitFired(t, r))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	s.Stop()
	assert.Equal(t, 1, r.count(7))
}

func TestTimerSchedulerCancelAndStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewTimerScheduler()
	r := newFiredRecorder()
	require.NoError(t, s.Start(r.handle))
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, 1, time.Now().Add(30*time.Millisecond)))
	require.NoError(t, s.Schedule(ctx, 2, time.Now().Add(time.Hour)))
	s.Cancel(1)
	assert.Equal(t, 1, s.Pending())

	s.Stop()
	assert.Zero(t, s.Pending())
	assert.ErrorIs(t, s.Schedule(ctx, 3, time.Now()), ErrSchedulerStopped)

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, r.count(1))
	assert.Zero(t, r.count(2))
}

func TestTimerSchedulerStopWaitsForHandler(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewTimerScheduler()
	release := make(chan struct{})
	entered := make(chan struct{})
	var finished bool
	require.NoError(t, s.Start(func(ctx context.Context, id uint64) {
		close(entered)
		<-release
		finished = true
	}))
	require.NoError(t, s.Schedule(context.Background(), 1, time.Now()))
	<-entered

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while handler was running")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)
	<-stopped
	assert.True(t, finished)
}
