package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"Showtimes_Sync/internal/model"
	"Showtimes_Sync/internal/resolver"
)

// Store 命令处理的读写入口：缓存未命中时回源远端，修改在社区锁内完成后交给写队列
type Store struct {
	cache   CacheStore
	remote  RemoteStore
	locker  Locker
	queue   *WriteQueue
	pending PendingSet
	log     *zap.Logger
}

func NewStore(cache CacheStore, remote RemoteStore, locker Locker, queue *WriteQueue, pending PendingSet, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{cache: cache, remote: remote, locker: locker, queue: queue, pending: pending, log: log}
}

// Load 读取社区记录；本地与远端都没有时返回 nil, nil
func (s *Store) Load(ctx context.Context, communityID uint64) (*model.CommunityRecord, error) {
	rec, err := s.cache.Get(ctx, communityID)
	if err != nil {
		return nil, err
	}
	if rec != nil || s.remote == nil {
		return rec, nil
	}
	rec, err = s.remote.Get(ctx, communityID)
	if err != nil {
		// 远端不可用时按未开通处理，不影响本地命令
		s.log.Warn("remote read-through failed", zap.Uint64("community_id", communityID), zap.Error(err))
		return nil, nil
	}
	if rec == nil {
		return nil, nil
	}
	// 只填充空 key：回源期间若有并发修改写入了缓存，以缓存为准
	filled, err := s.cache.SetIfAbsent(ctx, communityID, rec)
	if err != nil {
		return nil, err
	}
	if !filled {
		return s.cache.Get(ctx, communityID)
	}
	s.log.Info("community warmed from remote store", zap.Uint64("community_id", communityID))
	return rec, nil
}

// Mutate 在社区锁内读取、修改、写回；fn 返回错误时不写入任何内容
func (s *Store) Mutate(ctx context.Context, communityID uint64, fn func(rec *model.CommunityRecord) error) (*model.CommunityRecord, error) {
	unlock, err := s.locker.Lock(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("lock community %d: %w", communityID, err)
	}
	defer unlock()

	rec, err := s.Load(ctx, communityID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotProvisioned
	}
	work := rec.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(ctx, communityID, work); err != nil {
		return nil, err
	}
	return work.Clone(), nil
}

// Create 新建社区：本地立即可用，远端 Create 失败时进入重推集合
func (s *Store) Create(ctx context.Context, rec *model.CommunityRecord) error {
	id := rec.CommunityID
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return fmt.Errorf("lock community %d: %w", id, err)
	}
	defer unlock()

	existing, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyProvisioned
	}
	if err := s.cache.Set(ctx, id, rec); err != nil {
		return err
	}
	if s.remote == nil {
		return nil
	}
	if err := s.remote.Create(ctx, id, rec); err != nil {
		s.log.Error("remote create failed", zap.Uint64("community_id", id), zap.Error(err))
		if err := s.pending.Mark(ctx, id, err); err != nil {
			s.log.Error("mark community for resync failed", zap.Uint64("community_id", id), zap.Error(err))
		}
	}
	return nil
}

// Remove 删除社区：先删远端，避免缓存未命中时再被回源
func (s *Store) Remove(ctx context.Context, communityID uint64) (*model.CommunityRecord, error) {
	unlock, err := s.locker.Lock(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("lock community %d: %w", communityID, err)
	}
	defer unlock()

	rec, err := s.Load(ctx, communityID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotProvisioned
	}
	// 持有推送锁，在途的推送要么已完成，要么之后读到空缓存
	err = s.queue.withPushLock(ctx, communityID, func() error {
		if s.remote != nil {
			remote, err := s.remote.Get(ctx, communityID)
			if err != nil {
				return fmt.Errorf("remote lookup: %w", err)
			}
			if remote != nil {
				var owner uint64
				if len(remote.OwnerIDs) > 0 {
					owner = remote.OwnerIDs[0]
				}
				if err := s.remote.Delete(ctx, communityID, owner); err != nil {
					return fmt.Errorf("remote delete: %w", err)
				}
			}
		}
		return s.cache.Delete(ctx, communityID)
	})
	if err != nil {
		return nil, err
	}
	if err := s.pending.Remove(ctx, communityID); err != nil {
		s.log.Warn("clear resync entry failed", zap.Uint64("community_id", communityID), zap.Error(err))
	}
	return rec, nil
}

// loadProvisioned 读取记录，未开通返回 ErrNotProvisioned
func (s *Store) loadProvisioned(ctx context.Context, communityID uint64) (*model.CommunityRecord, error) {
	rec, err := s.Load(ctx, communityID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotProvisioned
	}
	return rec, nil
}

// resolveTitle 在社区的标题和别名中解析 query；在锁外进行，交互选择可能很慢
func resolveTitle(ctx context.Context, rec *model.CommunityRecord, query string, sel resolver.Selector) (string, error) {
	matches := resolver.Resolve(query, rec.Titles(), rec.Aliases)
	title, err := resolver.Pick(ctx, matches, sel)
	if err != nil {
		return "", translateResolve(err)
	}
	return title, nil
}

// Snapshot 导出远端存储
func (s *Store) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	if s.remote == nil {
		return nil, ErrNotFound
	}
	return s.remote.Snapshot(ctx)
}

// Restore 把快照写回远端，并覆盖本地缓存中对应的社区
func (s *Store) Restore(ctx context.Context, snap *model.Snapshot) error {
	if snap == nil {
		return ErrInvalidArgument
	}
	if s.remote != nil {
		if err := s.remote.Restore(ctx, snap); err != nil {
			return err
		}
	}
	for _, rec := range snap.Communities {
		if rec == nil {
			continue
		}
		id := rec.CommunityID
		err := func() error {
			unlock, err := s.locker.Lock(ctx, id)
			if err != nil {
				return err
			}
			defer unlock()
			if err := s.cache.Set(ctx, id, rec); err != nil {
				return err
			}
			return s.pending.Remove(ctx, id)
		}()
		if err != nil {
			return fmt.Errorf("restore community %d: %w", id, err)
		}
	}
	s.log.Info("snapshot restored", zap.Int("communities", len(snap.Communities)), zap.Time("taken_at", snap.TakenAt))
	return nil
}
