package service

import (
	"context"

	"go.uber.org/zap"

	"Showtimes_Sync/internal/model"
)

// CommunityService 社区开通/注销、所有者与全局管理员名单
type CommunityService struct {
	store  *Store
	roster AdminRoster
	log    *zap.Logger
}

func NewCommunityService(store *Store, roster AdminRoster, log *zap.Logger) *CommunityService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CommunityService{store: store, roster: roster, log: log}
}

// Authorize 管理员名单校验，聊天侧的开通/注销命令先调用它
func (s *CommunityService) Authorize(ctx context.Context, actorID uint64) error {
	ok, err := s.roster.IsAdmin(ctx, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPermissionDenied
	}
	return nil
}

func (s *CommunityService) Provision(ctx context.Context, communityID, ownerID uint64) (*model.CommunityRecord, error) {
	if communityID == 0 || ownerID == 0 {
		return nil, ErrInvalidArgument
	}
	rec := model.NewCommunityRecord(communityID, ownerID)
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Info("community provisioned", zap.Uint64("community_id", communityID), zap.Uint64("owner_id", ownerID))
	return rec.Clone(), nil
}

// Deprovision 只删除该社区自己的记录，不级联到协作方
func (s *CommunityService) Deprovision(ctx context.Context, communityID uint64) error {
	if _, err := s.store.Remove(ctx, communityID); err != nil {
		return err
	}
	s.log.Info("community deprovisioned", zap.Uint64("community_id", communityID))
	return nil
}

func (s *CommunityService) Get(ctx context.Context, communityID uint64) (*model.CommunityRecord, error) {
	return s.store.loadProvisioned(ctx, communityID)
}

func (s *CommunityService) AddOwner(ctx context.Context, inv Invocation, userID uint64) (*model.CommunityRecord, error) {
	if userID == 0 {
		return nil, ErrInvalidArgument
	}
	return s.store.Mutate(ctx, inv.CommunityID, func(rec *model.CommunityRecord) error {
		if !rec.IsOwner(inv.AuthorID) {
			return ErrPermissionDenied
		}
		rec.OwnerIDs = model.AddID(rec.OwnerIDs, userID)
		return nil
	})
}

func (s *CommunityService) RemoveOwner(ctx context.Context, inv Invocation, userID uint64) (*model.CommunityRecord, error) {
	return s.store.Mutate(ctx, inv.CommunityID, func(rec *model.CommunityRecord) error {
		if !rec.IsOwner(inv.AuthorID) {
			return ErrPermissionDenied
		}
		if !rec.IsOwner(userID) {
			return ErrNotFound
		}
		if len(rec.OwnerIDs) == 1 {
			return ErrLastOwner
		}
		rec.OwnerIDs = model.RemoveID(rec.OwnerIDs, userID)
		return nil
	})
}

// SetAnnounceChannel channelID 为 0 表示关闭公告
func (s *CommunityService) SetAnnounceChannel(ctx context.Context, inv Invocation, channelID uint64) (*model.CommunityRecord, error) {
	return s.store.Mutate(ctx, inv.CommunityID, func(rec *model.CommunityRecord) error {
		if !rec.IsOwner(inv.AuthorID) {
			return ErrPermissionDenied
		}
		rec.AnnounceChannel = channelID
		return nil
	})
}

func (s *CommunityService) AddAdmin(ctx context.Context, adminID uint64) error {
	if adminID == 0 {
		return ErrInvalidArgument
	}
	return s.roster.AddAdmin(ctx, adminID)
}

func (s *CommunityService) RemoveAdmin(ctx context.Context, adminID uint64) error {
	ok, err := s.roster.IsAdmin(ctx, adminID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return s.roster.RemoveAdmin(ctx, adminID)
}

func (s *CommunityService) ListAdmins(ctx context.Context) ([]model.AdminEntry, error) {
	return s.roster.ListAdmins(ctx)
}

func (s *CommunityService) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	return s.store.Snapshot(ctx)
}

func (s *CommunityService) Restore(ctx context.Context, snap *model.Snapshot) error {
	return s.store.Restore(ctx, snap)
}
