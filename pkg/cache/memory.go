package cache

import (
	"context"
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache 进程内缓存，值以 JSON 存储，Get 时反序列化出一份副本
type MemoryCache struct {
	c *gocache.Cache
}

func NewMemoryCache(defaultExpiration, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{
		c: gocache.New(defaultExpiration, cleanupInterval),
	}
}

func (m *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	// 存 JSON 而不是对象本身，调用方之后修改 value 不会影响缓存内容，行为和 Redis 一致
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.c.Set(key, data, ttl)
	return nil
}

func (m *MemoryCache) Get(ctx context.Context, key string, target interface{}) error {
	val, found := m.c.Get(key)
	if !found {
		return ErrMiss
	}
	return json.Unmarshal(val.([]byte), target)
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.c.Delete(key)
	return nil
}
