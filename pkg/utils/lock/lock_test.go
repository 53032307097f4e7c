package lock

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("droptip:1")
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, km.Len(), "idle keys must be released")
}

func TestKeyedMutexDifferentKeysDoNotBlock(t *testing.T) {
	km := NewKeyedMutex()
	unlockA := km.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := km.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on key b blocked by key a")
	}
}

func TestKeyedMutexUnlockIdempotent(t *testing.T) {
	km := NewKeyedMutex()
	unlock := km.Lock("x")
	unlock()
	unlock()
	assert.Equal(t, 0, km.Len())
}

// 需要真实 Redis: REDIS_ADDR=localhost:6379 go test ./pkg/utils/lock/
func TestRedisLock(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	a := NewRedisLock(client)
	b := NewRedisLock(client)

	ok, err := a.Acquire(ctx, "test:droptip", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.Acquire(ctx, "test:droptip", 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// b 没有持有锁，Release 不能删掉 a 的锁
	require.NoError(t, b.Release(ctx, "test:droptip"))
	ok, _ = b.Acquire(ctx, "test:droptip", 5*time.Second)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx, "test:droptip"))
	ok, err = b.Acquire(ctx, "test:droptip", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Release(ctx, "test:droptip"))
}
