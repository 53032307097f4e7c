package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DistributedLock 定义分布式锁接口
type DistributedLock interface {
	// Acquire 尝试获取锁
	// key: 锁的唯一标识
	// ttl: 锁的过期时间
	// 返回: (是否成功, error)
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release 释放锁，只会删除自己持有的锁
	Release(ctx context.Context, key string) error
}

// 只有 value 等于自己的 token 时才删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock 基于 Redis SET NX 的实现
type RedisLock struct {
	client *redis.Client
	tokens sync.Map // key -> token
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	// SET lock:key token NX PX ttl
	success, err := l.client.SetNX(ctx, "lock:"+key, token, ttl).Result()
	if err != nil {
		return false, err
	}
	if success {
		l.tokens.Store(key, token)
	}
	return success, nil
}

func (l *RedisLock) Release(ctx context.Context, key string) error {
	token, ok := l.tokens.LoadAndDelete(key)
	if !ok {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{"lock:" + key}, token).Err()
}
