package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"Showtimes_Sync/internal/model"
	"Showtimes_Sync/internal/pkg"
	"Showtimes_Sync/internal/resolver"
)

const collabTokenLength = 16

// CollabService 跨社区共享项目的握手与解除。
// 不存在跨社区的锁：每次只在单个社区的锁内读-改-写，推送各自独立并由对账兜底。
type CollabService struct {
	store   *Store
	roles   RoleProvisioner
	catalog CatalogBinder
	events  Publisher
	now     func() time.Time
	log     *zap.Logger
}

func NewCollabService(store *Store, roles RoleProvisioner, catalog CatalogBinder, events Publisher, log *zap.Logger) *CollabService {
	if events == nil {
		events = pkg.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CollabService{store: store, roles: roles, catalog: catalog, events: events, now: time.Now, log: log}
}

type ConfirmResult struct {
	Title   string
	Origin  uint64
	Members []uint64
}

type UnlinkResult struct {
	Title   string
	Members []uint64 // 解除前的全部成员
	// Rebind 项目绑定的外部目录已解除，各社区可能需要重新绑定
	Rebind bool
}

// Initiate 发起方所有者选择一个尚未共享的项目，在被邀请方记录里写入请求并返回令牌
func (s *CollabService) Initiate(ctx context.Context, inv Invocation, inviteeID uint64, query string, sel resolver.Selector) (string, error) {
	if inviteeID == 0 {
		return "", ErrInvalidArgument
	}
	if inviteeID == inv.CommunityID {
		return "", ErrSelfCollaboration
	}
	origin, err := s.store.loadProvisioned(ctx, inv.CommunityID)
	if err != nil {
		return "", err
	}
	if !origin.IsOwner(inv.AuthorID) {
		return "", ErrPermissionDenied
	}
	title, err := resolveTitle(ctx, origin, query, sel)
	if err != nil {
		return "", err
	}
	p, _ := origin.Project(title)
	if p.Shared() {
		return "", ErrAlreadyShared
	}

	token, err := pkg.RandToken(collabTokenLength)
	if err != nil {
		return "", err
	}
	_, err = s.store.Mutate(ctx, inviteeID, func(rec *model.CommunityRecord) error {
		rec.PendingCollabs[token] = &model.CollabRequest{
			Token:             token,
			ProjectTitle:      title,
			OriginCommunityID: inv.CommunityID,
			CreatedAt:         s.now().UTC(),
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	s.log.Info("collaboration requested",
		zap.Uint64("community_id", inv.CommunityID),
		zap.Uint64("invitee_id", inviteeID),
		zap.String("title", title),
	)
	return token, nil
}

// Confirm 被邀请方确认：令牌只在自己的记录里查找，发起方无法代为确认
func (s *CollabService) Confirm(ctx context.Context, inv Invocation, token string) (*ConfirmResult, error) {
	invitee, err := s.store.loadProvisioned(ctx, inv.CommunityID)
	if err != nil {
		return nil, err
	}
	if !invitee.IsOwner(inv.AuthorID) {
		return nil, ErrPermissionDenied
	}
	req, ok := invitee.PendingCollabs[token]
	if !ok || req == nil {
		return nil, ErrTokenNotFound
	}
	title := req.ProjectTitle
	originID := req.OriginCommunityID

	// 取发起方的当前副本，而不是发起时的
	origin, err := s.store.loadProvisioned(ctx, originID)
	if err != nil {
		return nil, err
	}
	src, ok := origin.Project(title)
	if !ok {
		return nil, ErrProjectNotFound
	}

	var members []uint64
	_, err = s.store.Mutate(ctx, inv.CommunityID, func(rec *model.CommunityRecord) error {
		// 并发确认时只有一个能拿到令牌
		if _, ok := rec.PendingCollabs[token]; !ok {
			return ErrTokenNotFound
		}
		local, hasLocal := rec.Project(title)
		var roleID uint64
		if hasLocal && local.RoleID != 0 {
			roleID = local.RoleID
		} else if s.roles != nil {
			id, err := s.roles.CreateRole(ctx, inv.CommunityID, title)
			if err != nil {
				return err
			}
			roleID = id
		}
		var localMembers []uint64
		if hasLocal {
			localMembers = local.Collaborators
		}
		members = model.UnionIDs(src.Collaborators, localMembers, []uint64{originID, inv.CommunityID})

		cp := src.Clone()
		cp.RoleID = roleID
		cp.CatalogID = ""
		if hasLocal {
			cp.CatalogID = local.CatalogID
		}
		cp.Collaborators = members
		cp.LastUpdate = s.now().UTC()
		// 别名不能与标题重名
		for alias := range rec.Aliases {
			if strings.EqualFold(alias, title) {
				delete(rec.Aliases, alias)
			}
		}
		rec.PutProject(cp)
		delete(rec.PendingCollabs, token)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, m := range members {
		if m == originID || m == inv.CommunityID {
			continue
		}
		s.setCollaborators(ctx, m, title, members)
	}
	s.setCollaborators(ctx, originID, title, members)

	ev := pkg.NewEvent(pkg.EventCollabConfirmed, inv.CommunityID)
	ev.Title = title
	ev.Members = members
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish collab event failed", zap.String("title", title), zap.Error(err))
	}
	s.log.Info("collaboration confirmed",
		zap.Uint64("community_id", inv.CommunityID),
		zap.Uint64("origin_id", originID),
		zap.String("title", title),
		zap.Uint64s("members", members),
	)
	return &ConfirmResult{Title: title, Origin: originID, Members: members}, nil
}

// Cancel 被邀请方删除待确认的请求，不做合并
func (s *CollabService) Cancel(ctx context.Context, inv Invocation, token string) error {
	_, err := s.store.Mutate(ctx, inv.CommunityID, func(rec *model.CommunityRecord) error {
		if !rec.IsOwner(inv.AuthorID) {
			return ErrPermissionDenied
		}
		if _, ok := rec.PendingCollabs[token]; !ok {
			return ErrTokenNotFound
		}
		delete(rec.PendingCollabs, token)
		return nil
	})
	return err
}

// Pending 列出本社区收到的待确认请求
func (s *CollabService) Pending(ctx context.Context, communityID uint64) ([]*model.CollabRequest, error) {
	rec, err := s.store.loadProvisioned(ctx, communityID)
	if err != nil {
		return nil, err
	}
	out := make([]*model.CollabRequest, 0, len(rec.PendingCollabs))
	for _, req := range rec.PendingCollabs {
		if req != nil {
			out = append(out, req)
		}
	}
	// 按创建时间排序，同一时刻按 token
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Token < out[j].Token
	})
	return out, nil
}

// Unlink 调用方社区退出共享：从其他成员的集合里移除自己，只剩自己的成员清空集合
func (s *CollabService) Unlink(ctx context.Context, inv Invocation, query string, sel resolver.Selector) (*UnlinkResult, error) {
	rec, err := s.store.loadProvisioned(ctx, inv.CommunityID)
	if err != nil {
		return nil, err
	}
	title, err := resolveTitle(ctx, rec, query, sel)
	if err != nil {
		return nil, err
	}

	var (
		members   []uint64
		catalogID string
	)
	_, err = s.store.Mutate(ctx, inv.CommunityID, func(rec *model.CommunityRecord) error {
		if !rec.IsOwner(inv.AuthorID) {
			return ErrPermissionDenied
		}
		p, ok := rec.Project(title)
		if !ok {
			return ErrProjectNotFound
		}
		if !p.Shared() {
			return ErrNotShared
		}
		members = p.Collaborators
		catalogID = p.CatalogID
		p.Collaborators = nil
		p.CatalogID = ""
		p.LastUpdate = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, m := range members {
		if m == inv.CommunityID {
			continue
		}
		_, err := s.store.Mutate(ctx, m, func(rec *model.CommunityRecord) error {
			p, ok := rec.Project(title)
			if !ok {
				return ErrProjectNotFound
			}
			p.Collaborators = leaveSet(p.Collaborators, inv.CommunityID, m)
			p.LastUpdate = s.now().UTC()
			return nil
		})
		if err != nil {
			s.log.Warn("unlink from collaborator failed",
				zap.Uint64("community_id", m), zap.String("title", title), zap.Error(err))
		}
	}

	res := &UnlinkResult{Title: title, Members: members}
	if catalogID != "" {
		res.Rebind = true
		if s.catalog != nil {
			if err := s.catalog.Unbind(ctx, inv.CommunityID, title, catalogID); err != nil {
				s.log.Warn("catalog unbind failed",
					zap.Uint64("community_id", inv.CommunityID), zap.String("title", title), zap.Error(err))
			}
		}
	}

	ev := pkg.NewEvent(pkg.EventCollabUnlinked, inv.CommunityID)
	ev.Title = title
	ev.Members = members
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish collab event failed", zap.String("title", title), zap.Error(err))
	}
	s.log.Info("collaboration unlinked",
		zap.Uint64("community_id", inv.CommunityID),
		zap.String("title", title),
		zap.Uint64s("members", members),
	)
	return res, nil
}

// setCollaborators 读-改-写单个成员的副本；失败只记日志
func (s *CollabService) setCollaborators(ctx context.Context, communityID uint64, title string, members []uint64) {
	_, err := s.store.Mutate(ctx, communityID, func(rec *model.CommunityRecord) error {
		p, ok := rec.Project(title)
		if !ok {
			return ErrProjectNotFound
		}
		p.Collaborators = append([]uint64(nil), members...)
		p.LastUpdate = s.now().UTC()
		return nil
	})
	if err != nil {
		s.log.Warn("collaborator fan-out failed",
			zap.Uint64("community_id", communityID), zap.String("title", title), zap.Error(err))
	}
}

// leaveSet 从 self 的成员集合中移除 leaver；只剩 self 时清空
func leaveSet(set []uint64, leaver, self uint64) []uint64 {
	out := model.RemoveID(set, leaver)
	if len(out) == 1 && out[0] == self {
		return nil
	}
	return out
}
