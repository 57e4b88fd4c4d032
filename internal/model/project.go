package model

import (
	"sort"
	"strings"
	"time"
)

type EpisodeStatus string

const (
	EpisodePending  EpisodeStatus = "pending"
	EpisodeReleased EpisodeStatus = "released"
)

// 职位名称，统一大写
const (
	RoleTL  = "TL"  // 翻译
	RoleTLC = "TLC" // 翻译校对
	RoleENC = "ENC" // 压制
	RoleED  = "ED"  // 时轴/编辑
	RoleTM  = "TM"  // 时间轴
	RoleTS  = "TS"  // 特效/排版
	RoleQC  = "QC"  // 质检
)

// StaffRoles 每一集都需要完成的职位，按流程顺序
var StaffRoles = []string{RoleTL, RoleTLC, RoleENC, RoleED, RoleTM, RoleTS, RoleQC}

// NormalizeRole 统一职位写法；不认识的职位返回空串
func NormalizeRole(role string) string {
	r := strings.ToUpper(strings.TrimSpace(role))
	for _, known := range StaffRoles {
		if known == r {
			return r
		}
	}
	return ""
}

type EpisodeState struct {
	Status           EpisodeStatus   `json:"status"`
	StaffDone        map[string]bool `json:"staff_done"`
	ScheduledAirTime time.Time       `json:"scheduled_air_time"`
}

func NewEpisodeState(airTime time.Time) *EpisodeState {
	done := make(map[string]bool, len(StaffRoles))
	for _, role := range StaffRoles {
		done[role] = false
	}
	return &EpisodeState{Status: EpisodePending, StaffDone: done, ScheduledAirTime: airTime}
}

func (e *EpisodeState) Released() bool {
	return e != nil && e.Status == EpisodeReleased
}

// PendingRoles 还没完成的职位，按 StaffRoles 顺序
func (e *EpisodeState) PendingRoles() []string {
	var out []string
	for _, role := range StaffRoles {
		if !e.StaffDone[role] {
			out = append(out, role)
		}
	}
	return out
}

func (e *EpisodeState) Clone() *EpisodeState {
	if e == nil {
		return nil
	}
	out := *e
	out.StaffDone = make(map[string]bool, len(e.StaffDone))
	for k, v := range e.StaffDone {
		out.StaffDone[k] = v
	}
	return &out
}

// ProjectRecord 一部作品的追踪状态
type ProjectRecord struct {
	Title           string                `json:"title"`
	ExternalRef     string                `json:"external_ref"`
	RoleID          uint64                `json:"role_id"`
	StaffAssignment map[string]uint64     `json:"staff_assignment"` // 职位 -> 成员 ID
	Episodes        map[int]*EpisodeState `json:"episodes"`
	Collaborators   []uint64              `json:"collaborators,omitempty"` // 为空表示未共享
	CatalogID       string                `json:"catalog_id,omitempty"`
	LastUpdate      time.Time             `json:"last_update"` // 仅用于展示
}

func NewProjectRecord(title, externalRef string, roleID uint64) *ProjectRecord {
	return &ProjectRecord{
		Title:           title,
		ExternalRef:     externalRef,
		RoleID:          roleID,
		StaffAssignment: map[string]uint64{},
		Episodes:        map[int]*EpisodeState{},
	}
}

// EpisodeNumbers 升序的集数
func (p *ProjectRecord) EpisodeNumbers() []int {
	nums := make([]int, 0, len(p.Episodes))
	for n := range p.Episodes {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// LastEpisode 最大集数，没有集数时为 0
func (p *ProjectRecord) LastEpisode() int {
	last := 0
	for n := range p.Episodes {
		if n > last {
			last = n
		}
	}
	return last
}

// NextUnreleased 第一个还没发布的集数
func (p *ProjectRecord) NextUnreleased() (int, bool) {
	for _, n := range p.EpisodeNumbers() {
		if !p.Episodes[n].Released() {
			return n, true
		}
	}
	return 0, false
}

func (p *ProjectRecord) Shared() bool {
	return len(p.Collaborators) > 0
}

// IsStaff 判断 userID 是否被分配到 role；role 为空时任意职位都算
func (p *ProjectRecord) IsStaff(userID uint64, role string) bool {
	if userID == 0 {
		return false
	}
	if role != "" {
		return p.StaffAssignment[role] == userID
	}
	for _, id := range p.StaffAssignment {
		if id == userID {
			return true
		}
	}
	return false
}

func (p *ProjectRecord) Clone() *ProjectRecord {
	if p == nil {
		return nil
	}
	out := *p
	out.StaffAssignment = make(map[string]uint64, len(p.StaffAssignment))
	for k, v := range p.StaffAssignment {
		out.StaffAssignment[k] = v
	}
	out.Episodes = make(map[int]*EpisodeState, len(p.Episodes))
	for k, v := range p.Episodes {
		out.Episodes[k] = v.Clone()
	}
	out.Collaborators = cloneIDs(p.Collaborators)
	return &out
}
