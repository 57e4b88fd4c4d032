package model

import (
	"sort"
	"time"
)

// CommunityRecord 一个社区（服务器）的完整状态，本地缓存与远端存储都以它为单位
type CommunityRecord struct {
	SchemaVersion   int                       `json:"schema_version"`
	CommunityID     uint64                    `json:"community_id"`
	OwnerIDs        []uint64                  `json:"owner_ids"`
	AnnounceChannel uint64                    `json:"announce_channel,omitempty"` // 0=未设置
	Projects        map[string]*ProjectRecord `json:"projects"`
	Aliases         map[string]string         `json:"aliases"`         // alias -> 标题
	PendingCollabs  map[string]*CollabRequest `json:"pending_collabs"` // token -> 请求
}

// CollabRequest 等待被邀请方确认的协作请求，写在被邀请方的记录里
type CollabRequest struct {
	Token             string    `json:"token"`
	ProjectTitle      string    `json:"project_title"`
	OriginCommunityID uint64    `json:"origin_community_id"`
	CreatedAt         time.Time `json:"created_at"`
}

func NewCommunityRecord(communityID, ownerID uint64) *CommunityRecord {
	rec := &CommunityRecord{
		SchemaVersion: CurrentSchemaVersion,
		CommunityID:   communityID,
	}
	rec.ensureMaps()
	if ownerID != 0 {
		rec.OwnerIDs = AddID(nil, ownerID)
	}
	return rec
}

func (r *CommunityRecord) ensureMaps() {
	if r.Projects == nil {
		r.Projects = map[string]*ProjectRecord{}
	}
	if r.Aliases == nil {
		r.Aliases = map[string]string{}
	}
	if r.PendingCollabs == nil {
		r.PendingCollabs = map[string]*CollabRequest{}
	}
}

func (r *CommunityRecord) IsOwner(userID uint64) bool {
	return ContainsID(r.OwnerIDs, userID)
}

// Titles 返回按字典序排列的全部标题
func (r *CommunityRecord) Titles() []string {
	titles := make([]string, 0, len(r.Projects))
	for title := range r.Projects {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	return titles
}

// Project 按规范标题取项目，不做模糊匹配
func (r *CommunityRecord) Project(title string) (*ProjectRecord, bool) {
	p, ok := r.Projects[title]
	return p, ok && p != nil
}

// PutProject 写入项目并保证 Title 字段与 map 的 key 一致
func (r *CommunityRecord) PutProject(p *ProjectRecord) {
	r.ensureMaps()
	r.Projects[p.Title] = p
}

// RemoveProject 删除项目以及指向它的全部别名
func (r *CommunityRecord) RemoveProject(title string) bool {
	if _, ok := r.Projects[title]; !ok {
		return false
	}
	delete(r.Projects, title)
	for alias, target := range r.Aliases {
		if target == title {
			delete(r.Aliases, alias)
		}
	}
	return true
}

// Clone 深拷贝
func (r *CommunityRecord) Clone() *CommunityRecord {
	if r == nil {
		return nil
	}
	out := &CommunityRecord{
		SchemaVersion:   r.SchemaVersion,
		CommunityID:     r.CommunityID,
		OwnerIDs:        cloneIDs(r.OwnerIDs),
		AnnounceChannel: r.AnnounceChannel,
		Projects:        make(map[string]*ProjectRecord, len(r.Projects)),
		Aliases:         make(map[string]string, len(r.Aliases)),
		PendingCollabs:  make(map[string]*CollabRequest, len(r.PendingCollabs)),
	}
	for k, v := range r.Projects {
		out.Projects[k] = v.Clone()
	}
	for k, v := range r.Aliases {
		out.Aliases[k] = v
	}
	for k, v := range r.PendingCollabs {
		if v == nil {
			continue
		}
		req := *v
		out.PendingCollabs[k] = &req
	}
	return out
}
