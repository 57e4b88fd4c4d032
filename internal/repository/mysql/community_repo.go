package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Showtimes_Sync/internal/model"
)

var (
	ErrDocumentExists   = errors.New("community document already exists")
	ErrDocumentNotFound = errors.New("community document not found")
	ErrNotOwner         = errors.New("not an owner of this community")
)

// CommunityRepository 远端权威存储。每次调用只改一个社区的文档，不做跨文档事务（Restore 除外）。
type CommunityRepository struct {
	DB  *gorm.DB
	now func() time.Time
}

func NewCommunityRepository(db *gorm.DB) *CommunityRepository {
	return &CommunityRepository{DB: db, now: time.Now}
}

func toDocument(communityID uint64, rec *model.CommunityRecord) (*model.CommunityDocument, error) {
	payload, err := model.Encode(rec)
	if err != nil {
		return nil, err
	}
	var owner uint64
	if len(rec.OwnerIDs) > 0 {
		owner = rec.OwnerIDs[0]
	}
	return &model.CommunityDocument{
		CommunityID:   communityID,
		OwnerID:       owner,
		Payload:       string(payload),
		SchemaVersion: rec.SchemaVersion,
	}, nil
}

// Create 只插入，已存在返回 ErrDocumentExists
func (r *CommunityRepository) Create(ctx context.Context, communityID uint64, rec *model.CommunityRecord) error {
	doc, err := toDocument(communityID, rec)
	if err != nil {
		return err
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.CommunityDocument{}).Where("community_id = ?", communityID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrDocumentExists
		}
		return tx.Create(doc).Error
	})
}

// Update 覆盖写入整份文档；文档不存在时插入，保证重推总能收敛
func (r *CommunityRepository) Update(ctx context.Context, communityID uint64, rec *model.CommunityRecord) error {
	doc, err := toDocument(communityID, rec)
	if err != nil {
		return err
	}
	return r.upsert(r.DB.WithContext(ctx), doc)
}

func (r *CommunityRepository) upsert(db *gorm.DB, doc *model.CommunityDocument) error {
	doc.UpdatedAt = r.now().UTC()
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "community_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "schema_version", "updated_at"}),
	}).Create(doc).Error
}

// Get 文档不存在时返回 nil, nil
func (r *CommunityRepository) Get(ctx context.Context, communityID uint64) (*model.CommunityRecord, error) {
	var doc model.CommunityDocument
	err := r.DB.WithContext(ctx).Where("community_id = ?", communityID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec, err := model.Decode([]byte(doc.Payload))
	if err != nil {
		return nil, fmt.Errorf("community %d: %w", communityID, err)
	}
	return rec, nil
}

// Delete 仅所有者可以删除
func (r *CommunityRepository) Delete(ctx context.Context, communityID, ownerID uint64) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc model.CommunityDocument
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("community_id = ?", communityID).First(&doc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDocumentNotFound
			}
			return err
		}
		owner := doc.OwnerID == ownerID
		if !owner {
			if rec, err := model.Decode([]byte(doc.Payload)); err == nil {
				owner = rec.IsOwner(ownerID)
			}
		}
		if !owner {
			return ErrNotOwner
		}
		return tx.Where("community_id = ?", communityID).Delete(&model.CommunityDocument{}).Error
	})
}

// Snapshot 导出全部文档
func (r *CommunityRepository) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	var docs []model.CommunityDocument
	if err := r.DB.WithContext(ctx).Order("community_id ASC").Find(&docs).Error; err != nil {
		return nil, err
	}
	snap := &model.Snapshot{TakenAt: r.now().UTC(), Communities: make([]*model.CommunityRecord, 0, len(docs))}
	for _, doc := range docs {
		rec, err := model.Decode([]byte(doc.Payload))
		if err != nil {
			return nil, fmt.Errorf("community %d: %w", doc.CommunityID, err)
		}
		rec.CommunityID = doc.CommunityID
		snap.Communities = append(snap.Communities, rec)
	}
	return snap, nil
}

// Restore 把快照整体写回，单个事务内完成
func (r *CommunityRepository) Restore(ctx context.Context, snap *model.Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range snap.Communities {
			if rec == nil || rec.CommunityID == 0 {
				return errors.New("snapshot contains a record without community id")
			}
			doc, err := toDocument(rec.CommunityID, rec)
			if err != nil {
				return err
			}
			if err := r.upsert(tx, doc); err != nil {
				return err
			}
		}
		return nil
	})
}
