package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	UserID  string `json:"user_id"`
	Address string `json:"address"`
}

func TestMemoryCacheCopiesValue(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute, time.Minute)

	v := &entry{UserID: "u1", Address: "0x1"}
	require.NoError(t, c.Set(ctx, "identity:u1", v, time.Minute))
	v.Address = "mutated"

	var got entry
	require.NoError(t, c.Get(ctx, "identity:u1", &got))
	assert.Equal(t, "0x1", got.Address)

	require.NoError(t, c.Delete(ctx, "identity:u1"))
	assert.ErrorIs(t, c.Get(ctx, "identity:u1", &got), ErrMiss)
}

func TestMultiLevelBackfillsL1(t *testing.T) {
	ctx := context.Background()
	l1 := NewMemoryCache(time.Minute, time.Minute)
	l2 := NewMemoryCache(time.Minute, time.Minute)
	mc := NewMultiLevelCache(l1, l2)

	require.NoError(t, l2.Set(ctx, "k", entry{UserID: "u2"}, time.Minute))

	var got entry
	require.NoError(t, mc.Get(ctx, "k", &got))
	assert.Equal(t, "u2", got.UserID)

	var fromL1 entry
	require.NoError(t, l1.Get(ctx, "k", &fromL1))
	assert.Equal(t, "u2", fromL1.UserID)
}

func TestMultiLevelWithoutRemote(t *testing.T) {
	ctx := context.Background()
	mc := NewMultiLevelCache(NewMemoryCache(time.Minute, time.Minute), nil)

	var got entry
	assert.ErrorIs(t, mc.Get(ctx, "missing", &got), ErrMiss)

	require.NoError(t, mc.Set(ctx, "k", entry{UserID: "u3"}, time.Minute))
	require.NoError(t, mc.Get(ctx, "k", &got))
	assert.Equal(t, "u3", got.UserID)
	require.NoError(t, mc.Delete(ctx, "k"))
}
