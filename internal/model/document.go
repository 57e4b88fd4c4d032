package model

import "time"

// CommunityDocument 远端存储中一个社区对应的一行，记录本体以 JSON 存放
type CommunityDocument struct {
	CommunityID   uint64 `gorm:"primaryKey;autoIncrement:false"`
	OwnerID       uint64 `gorm:"not null;index"` // 创建时的所有者，删除时校验
	Payload       string `gorm:"type:json;not null"`
	SchemaVersion int    `gorm:"not null;default:2"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (CommunityDocument) TableName() string { return "showtimes_communities" }

// Snapshot 远端存储的完整导出
type Snapshot struct {
	TakenAt     time.Time          `json:"taken_at"`
	Communities []*CommunityRecord `json:"communities"`
}

// ResyncEntry 等待重新推送到远端的社区
type ResyncEntry struct {
	CommunityID  uint64    `json:"community_id"`
	Attempts     int       `json:"attempts"`
	FirstFailure time.Time `json:"first_failure"`
	NextAttempt  time.Time `json:"next_attempt"`
	LastError    string    `json:"last_error,omitempty"`
	Alerted      bool      `json:"alerted,omitempty"`
}

// AdminEntry 全局管理员名单中的一项
type AdminEntry struct {
	AdminID uint64    `json:"admin_id"`
	AddedAt time.Time `json:"added_at"`
}
