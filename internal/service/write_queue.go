package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"Showtimes_Sync/internal/model"
	"Showtimes_Sync/internal/pkg"
)

// errRecordGone 推送时本地缓存里已经没有这个社区（被注销）
var errRecordGone = errors.New("community record no longer cached")

const defaultPushTimeout = 10 * time.Second

// WriteQueue 写后缓存：本地缓存同步落盘，远端推送在后台进行，失败只进入待重推集合
type WriteQueue struct {
	cache   CacheStore
	remote  RemoteStore
	pending PendingSet
	events  Publisher
	log     *zap.Logger

	timeout   time.Duration
	pushLocks *pkg.KeyedMutex
	wg        sync.WaitGroup
}

func NewWriteQueue(cache CacheStore, remote RemoteStore, pending PendingSet, events Publisher, log *zap.Logger, timeout time.Duration) *WriteQueue {
	if events == nil {
		events = pkg.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultPushTimeout
	}
	return &WriteQueue{
		cache:     cache,
		remote:    remote,
		pending:   pending,
		events:    events,
		log:       log,
		timeout:   timeout,
		pushLocks: pkg.NewKeyedMutex(),
	}
}

// Enqueue 先写本地缓存，成功后异步推送远端；远端错误不会返回给调用方
func (q *WriteQueue) Enqueue(ctx context.Context, communityID uint64, rec *model.CommunityRecord) error {
	if err := q.cache.Set(ctx, communityID, rec); err != nil {
		return fmt.Errorf("cache community %d: %w", communityID, err)
	}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		// 命令结束后 ctx 会被取消，推送要继续
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.timeout)
		defer cancel()
		q.pushOrMark(pushCtx, communityID)
	}()
	return nil
}

// Wait 等待所有在途推送结束
func (q *WriteQueue) Wait() {
	q.wg.Wait()
}

func (q *WriteQueue) pushOrMark(ctx context.Context, communityID uint64) {
	err := q.withPushLock(ctx, communityID, func() error {
		err := q.push(ctx, communityID)
		switch {
		case err == nil:
			if err := q.pending.Remove(ctx, communityID); err != nil {
				q.log.Warn("clear resync entry failed", zap.Uint64("community_id", communityID), zap.Error(err))
			}
			return nil
		case errors.Is(err, errRecordGone):
			return nil
		}
		return err
	})
	if err == nil {
		return
	}
	q.log.Error("remote push failed",
		zap.Uint64("community_id", communityID),
		zap.Error(err),
	)
	// 拿锁超时也走这里，交给重推
	if err := q.pending.Mark(context.WithoutCancel(ctx), communityID, err); err != nil {
		q.log.Error("mark community for resync failed", zap.Uint64("community_id", communityID), zap.Error(err))
	}
}

// withPushLock 同一社区的推送以及待重推集合的增删串行执行
func (q *WriteQueue) withPushLock(ctx context.Context, communityID uint64, fn func() error) error {
	unlock, err := q.pushLocks.Lock(ctx, communityID)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// push 把本地缓存中的当前内容推送到远端，调用方持有推送锁
func (q *WriteQueue) push(ctx context.Context, communityID uint64) error {
	rec, err := q.cache.Get(ctx, communityID)
	if err != nil {
		return fmt.Errorf("read cached community: %w", err)
	}
	if rec == nil {
		return errRecordGone
	}
	if err := q.remote.Update(ctx, communityID, rec); err != nil {
		return err
	}
	if err := q.events.Publish(ctx, pkg.NewEvent(pkg.EventCommunitySynced, communityID)); err != nil {
		q.log.Warn("publish sync event failed", zap.Uint64("community_id", communityID), zap.Error(err))
	}
	return nil
}
