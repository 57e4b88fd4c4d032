package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"Showtimes_Sync/internal/model"
)

// ResyncRepository 持久化的待重推集合：一个 hash，field 为社区 ID，value 为 ResyncEntry。
// 放在本地缓存旁边，进程重启后不会丢失未送达的写入。
type ResyncRepository struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

func NewResyncRepository(client *redis.Client, prefix string) *ResyncRepository {
	// 不带下划线，避免被 <prefix>_* 的社区扫描匹配到
	return &ResyncRepository{client: client, key: prefix + "resync", now: time.Now}
}

func field(communityID uint64) string {
	return strconv.FormatUint(communityID, 10)
}

// Mark 不存在才加入（append-if-absent），已存在时保持原有的重试计数
func (r *ResyncRepository) Mark(ctx context.Context, communityID uint64, cause error) error {
	entry := model.ResyncEntry{CommunityID: communityID, FirstFailure: r.now().UTC()}
	if cause != nil {
		entry.LastError = cause.Error()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := r.client.HSetNX(ctx, r.key, field(communityID), payload).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Update 覆盖已存在条目的重试状态；条目已被移除时不复活
func (r *ResyncRepository) Update(ctx context.Context, entry model.ResyncEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	f := field(entry.CommunityID)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, r.key, f).Result()
		if err != nil {
			return err
		}
		if !exists {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, r.key, f, payload)
			return nil
		})
		return err
	}, r.key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

func (r *ResyncRepository) Remove(ctx context.Context, communityID uint64) error {
	if err := r.client.HDel(ctx, r.key, field(communityID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

func (r *ResyncRepository) Contains(ctx context.Context, communityID uint64) (bool, error) {
	ok, err := r.client.HExists(ctx, r.key, field(communityID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return ok, nil
}

// Entries 按社区 ID 升序返回
func (r *ResyncRepository) Entries(ctx context.Context) ([]model.ResyncEntry, error) {
	all, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	out := make([]model.ResyncEntry, 0, len(all))
	for f, raw := range all {
		id, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			continue
		}
		entry := model.ResyncEntry{CommunityID: id}
		_ = json.Unmarshal([]byte(raw), &entry)
		entry.CommunityID = id
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CommunityID < out[j].CommunityID })
	return out, nil
}
