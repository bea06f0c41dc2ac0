package service

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"trude.com/pkg/xerr"
)

// Lua 脚本：释放锁
// KEYS[1]: 锁的 key
// ARGV[1]: 锁的 value (token)，防止误删别人的锁
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`

type DistLock struct {
	client     *redis.Client
	key        string
	token      string        // 谁加锁谁解锁
	expiration time.Duration // 自动过期，防死锁
}

func NewDistLock(client *redis.Client, key string, expiration time.Duration) *DistLock {
	return &DistLock{
		client:     client,
		key:        key,
		token:      uuid.New().String(),
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞，一次性）
func (l *DistLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.token, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 自旋重试，适合高并发短任务
func (l *DistLock) Lock(ctx context.Context, retryTimes int, retryInterval time.Duration) (bool, error) {
	for i := 0; i < retryTimes; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return false, err
		}
		if success {
			return true, nil
		}

		// 随机抖动，防止所有等待者同时唤醒冲击 Redis
		sleepTime := retryInterval + time.Duration(rand.Intn(10))*time.Millisecond

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(sleepTime):
			continue
		}
	}
	return false, nil
}

// Unlock 安全释放锁
func (l *DistLock) Unlock(ctx context.Context) (bool, error) {
	res, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.token).Result()
	if err != nil {
		return false, err
	}
	return res.(int64) == 1, nil
}

// RedisLocker Locker 的 Redis 实现，多实例部署下仍能串行化同一资源的资金操作
type RedisLocker struct {
	client        *redis.Client
	expiration    time.Duration
	retryTimes    int
	retryInterval time.Duration
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		client:        client,
		expiration:    10 * time.Second,
		retryTimes:    20,
		retryInterval: 50 * time.Millisecond,
	}
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lock := NewDistLock(l.client, "ledger:lock:"+key, l.expiration)
	ok, err := lock.Lock(ctx, l.retryTimes, l.retryInterval)
	if err != nil {
		return xerr.New(xerr.Unavailable, "锁服务不可用")
	}
	if !ok {
		return xerr.New(xerr.ServerCommonError, "并发冲突，请重试")
	}
	defer lock.Unlock(ctx)

	return fn(ctx)
}
