package service

import (
	"context"
	"time"

	"Showtimes_Sync/internal/model"
	"Showtimes_Sync/internal/pkg"
)

// Invocation 聊天传输层投递过来的一次命令调用
type Invocation struct {
	CommunityID uint64
	AuthorID    uint64
}

// CacheStore 本地缓存，命令处理的读写路径
type CacheStore interface {
	Get(ctx context.Context, communityID uint64) (*model.CommunityRecord, error)
	Set(ctx context.Context, communityID uint64, rec *model.CommunityRecord) error
	// SetIfAbsent 仅在 key 不存在时写入，返回是否写入
	SetIfAbsent(ctx context.Context, communityID uint64, rec *model.CommunityRecord) (bool, error)
	Delete(ctx context.Context, communityID uint64) error
}

// RemoteStore 远端权威存储
type RemoteStore interface {
	Get(ctx context.Context, communityID uint64) (*model.CommunityRecord, error)
	Create(ctx context.Context, communityID uint64, rec *model.CommunityRecord) error
	Update(ctx context.Context, communityID uint64, rec *model.CommunityRecord) error
	Delete(ctx context.Context, communityID, ownerID uint64) error
	Snapshot(ctx context.Context) (*model.Snapshot, error)
	Restore(ctx context.Context, snap *model.Snapshot) error
}

// PendingSet 推送失败、等待重推的社区集合
type PendingSet interface {
	Mark(ctx context.Context, communityID uint64, cause error) error
	Update(ctx context.Context, entry model.ResyncEntry) error
	Remove(ctx context.Context, communityID uint64) error
	Contains(ctx context.Context, communityID uint64) (bool, error)
	Entries(ctx context.Context) ([]model.ResyncEntry, error)
}

// Locker 社区级互斥，unlock 必须调用
type Locker interface {
	Lock(ctx context.Context, communityID uint64) (unlock func(), err error)
}

// AdminRoster 全局管理员名单
type AdminRoster interface {
	AddAdmin(ctx context.Context, adminID uint64) error
	RemoveAdmin(ctx context.Context, adminID uint64) error
	IsAdmin(ctx context.Context, adminID uint64) (bool, error)
	ListAdmins(ctx context.Context) ([]model.AdminEntry, error)
}

type Publisher interface {
	Publish(ctx context.Context, ev pkg.Event) error
}

type Alerter interface {
	Alert(ctx context.Context, entry model.ResyncEntry) error
}

// RoleProvisioner 由传输层实现：为项目在社区里创建一个可提及的身份组
type RoleProvisioner interface {
	CreateRole(ctx context.Context, communityID uint64, title string) (uint64, error)
}

// CatalogBinder 外部目录（发布站点）上的项目绑定
type CatalogBinder interface {
	Unbind(ctx context.Context, communityID uint64, title, catalogID string) error
}

// Metadata 外部番剧信息
type Metadata struct {
	Title    string
	Episodes int
	Schedule []time.Time // 下标 i 对应第 i+1 集，可以比 Episodes 短
}

// MetadataFetcher 查询 [from, to] 集的信息，to <= 0 表示到最后一集
type MetadataFetcher interface {
	Lookup(ctx context.Context, externalRef string, from, to int) (*Metadata, error)
}
