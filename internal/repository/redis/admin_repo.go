package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"Showtimes_Sync/internal/model"
)

var ErrAdminNotFound = errors.New("admin not found")

// AdminRepository 全局管理员名单：每人一个 key，<prefix>admin_<admin_id>
type AdminRepository struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewAdminRepository(client *redis.Client, prefix string) *AdminRepository {
	return &AdminRepository{client: client, prefix: prefix, now: time.Now}
}

func (r *AdminRepository) keyPrefix() string {
	return r.prefix + "admin_"
}

func (r *AdminRepository) key(adminID uint64) string {
	return fmt.Sprintf("%s%d", r.keyPrefix(), adminID)
}

// AddAdmin 幂等：已存在时保留原来的加入时间
func (r *AdminRepository) AddAdmin(ctx context.Context, adminID uint64) error {
	payload, err := json.Marshal(model.AdminEntry{AdminID: adminID, AddedAt: r.now().UTC()})
	if err != nil {
		return err
	}
	if err := r.client.SetNX(ctx, r.key(adminID), payload, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

func (r *AdminRepository) RemoveAdmin(ctx context.Context, adminID uint64) error {
	n, err := r.client.Del(ctx, r.key(adminID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if n == 0 {
		return ErrAdminNotFound
	}
	return nil
}

func (r *AdminRepository) IsAdmin(ctx context.Context, adminID uint64) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(adminID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return n > 0, nil
}

// ListAdmins 通过前缀 glob 枚举全部管理员
func (r *AdminRepository) ListAdmins(ctx context.Context) ([]model.AdminEntry, error) {
	keys, err := scanKeys(ctx, r.client, r.keyPrefix()+"*")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	out := make([]model.AdminEntry, 0, len(keys))
	for _, k := range keys {
		id, err := strconv.ParseUint(strings.TrimPrefix(k, r.keyPrefix()), 10, 64)
		if err != nil {
			continue
		}
		entry := model.AdminEntry{AdminID: id}
		if raw, err := r.client.Get(ctx, k).Bytes(); err == nil {
			_ = json.Unmarshal(raw, &entry)
		}
		entry.AdminID = id
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdminID < out[j].AdminID })
	return out, nil
}
