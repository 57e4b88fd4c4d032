package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"Showtimes_Sync/internal/pkg"
)

const (
	LockTTL       = 10 * time.Second
	lockRetryWait = 25 * time.Millisecond
)

var ErrLockLost = errors.New("lock lost before release")

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`)

var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("pexpire", KEYS[1], ARGV[2])
else
  return 0
end`)

// DistLock 基于 SetNX 的社区级分布式锁，多个进程共享同一个 Redis 时使用
type DistLock struct {
	RDB    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewDistLock(client *redis.Client, prefix string) *DistLock {
	return &DistLock{RDB: client, prefix: prefix, ttl: LockTTL}
}

func (l *DistLock) key(communityID uint64) string {
	return fmt.Sprintf("%slock_%d", l.prefix, communityID)
}

// Acquire 请求加分布式锁
func (l *DistLock) Acquire(ctx context.Context, communityID uint64, token string) (bool, error) {
	return l.RDB.SetNX(ctx, l.key(communityID), token, l.ttl).Result()
}

// Release 用lua保证原子性
func (l *DistLock) Release(ctx context.Context, communityID uint64, token string) error {
	n, err := releaseScript.Run(ctx, l.RDB, []string{l.key(communityID)}, token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// Renew 把锁的过期时间重置为 ttl，锁已不属于 token 时返回 ErrLockLost
func (l *DistLock) Renew(ctx context.Context, communityID uint64, token string) error {
	n, err := renewScript.Run(ctx, l.RDB, []string{l.key(communityID)}, token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// keepAlive 持锁期间每 ttl/3 续期一次，直到 stop 关闭或锁丢失
func (l *DistLock) keepAlive(communityID uint64, token string, stop <-chan struct{}) {
	t := time.NewTicker(l.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			err := l.Renew(ctx, communityID, token)
			cancel()
			if errors.Is(err, ErrLockLost) {
				return
			}
		}
	}
}

// Lock 轮询直到拿到锁或 ctx 结束，与进程内的 KeyedMutex 接口一致；持锁期间自动续期
func (l *DistLock) Lock(ctx context.Context, communityID uint64) (func(), error) {
	token, err := pkg.RandToken(24)
	if err != nil {
		return nil, err
	}
	t := time.NewTicker(lockRetryWait)
	defer t.Stop()
	for {
		got, err := l.Acquire(ctx, communityID, token)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
		if got {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	stop := make(chan struct{})
	go l.keepAlive(communityID, token, stop)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			// 用独立的 ctx 释放，调用方的 ctx 可能已经取消
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = l.Release(rctx, communityID, token)
		})
	}, nil
}
