package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"Showtimes_Sync/internal/model"
)

var (
	ErrCacheUnavailable = errors.New("cache unavailable")
	ErrCorruptRecord    = errors.New("corrupt community record")
)

// CommunityCache 本地缓存：每个社区一个 key，<prefix>_<community_id>
type CommunityCache struct {
	client *redis.Client
	prefix string
}

func NewCommunityCache(client *redis.Client, prefix string) *CommunityCache {
	return &CommunityCache{client: client, prefix: prefix}
}

func (c *CommunityCache) key(communityID uint64) string {
	return fmt.Sprintf("%s_%d", c.prefix, communityID)
}

// Get 未开通的社区返回 nil, nil
func (c *CommunityCache) Get(ctx context.Context, communityID uint64) (*model.CommunityRecord, error) {
	data, err := c.client.Get(ctx, c.key(communityID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	rec, err := model.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: community %d: %v", ErrCorruptRecord, communityID, err)
	}
	return rec, nil
}

func (c *CommunityCache) Set(ctx context.Context, communityID uint64, rec *model.CommunityRecord) error {
	data, err := model.Encode(rec)
	if err != nil {
		return err
	}
	// 不设置过期时间：缓存同时是命令处理的读写路径
	if err := c.client.Set(ctx, c.key(communityID), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// SetIfAbsent 回源填充缓存，已有记录时不覆盖
func (c *CommunityCache) SetIfAbsent(ctx context.Context, communityID uint64, rec *model.CommunityRecord) (bool, error) {
	data, err := model.Encode(rec)
	if err != nil {
		return false, err
	}
	ok, err := c.client.SetNX(ctx, c.key(communityID), data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return ok, nil
}

// Delete 幂等删除
func (c *CommunityCache) Delete(ctx context.Context, communityID uint64) error {
	if err := c.client.Del(ctx, c.key(communityID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// ListCommunities 列出缓存中所有社区 ID（升序）
func (c *CommunityCache) ListCommunities(ctx context.Context) ([]uint64, error) {
	keys, err := scanKeys(ctx, c.client, c.prefix+"_*")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	ids := make([]uint64, 0, len(keys))
	for _, k := range keys {
		id, err := strconv.ParseUint(strings.TrimPrefix(k, c.prefix+"_"), 10, 64)
		if err != nil {
			// 同前缀下的其它 key
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
