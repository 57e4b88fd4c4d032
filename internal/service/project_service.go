package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"Showtimes_Sync/internal/model"
	"Showtimes_Sync/internal/pkg"
	"Showtimes_Sync/internal/resolver"
)

// ProjectService 项目与集数的操作；共享项目上的修改会重放到每个协作方的副本
type ProjectService struct {
	store  *Store
	roles  RoleProvisioner
	meta   MetadataFetcher
	events Publisher
	now    func() time.Time
	log    *zap.Logger
}

func NewProjectService(store *Store, roles RoleProvisioner, meta MetadataFetcher, events Publisher, log *zap.Logger) *ProjectService {
	if events == nil {
		events = pkg.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ProjectService{store: store, roles: roles, meta: meta, events: events, now: time.Now, log: log}
}

type AddProjectRequest struct {
	Title       string
	ExternalRef string
	Episodes    int // 0 时从 MetadataFetcher 获取
}

type EpisodeSummary struct {
	Number       int
	Released     bool
	PendingRoles []string
	AirTime      time.Time
}

type ProjectStatus struct {
	Title         string
	Staff         map[string]uint64
	Collaborators []uint64
	Episodes      []EpisodeSummary
	LastUpdate    time.Time
}

// authorizer 在修改前校验权限，失败时不产生任何改动
type authorizer func(rec *model.CommunityRecord, p *model.ProjectRecord) error

func ownerOnly(uid uint64) authorizer {
	return func(rec *model.CommunityRecord, _ *model.ProjectRecord) error {
		if !rec.IsOwner(uid) {
			return ErrPermissionDenied
		}
		return nil
	}
}

// ownerOrStaff role 为空时任意被分配的职位都可以
func ownerOrStaff(uid uint64, role string) authorizer {
	return func(rec *model.CommunityRecord, p *model.ProjectRecord) error {
		if rec.IsOwner(uid) || p.IsStaff(uid, role) {
			return nil
		}
		return ErrPermissionDenied
	}
}

// Titles 未匹配到任何项目时用来列出全部标题
func (s *ProjectService) Titles(ctx context.Context, communityID uint64) ([]string, error) {
	rec, err := s.store.loadProvisioned(ctx, communityID)
	if err != nil {
		return nil, err
	}
	return rec.Titles(), nil
}

// Resolve 返回全部匹配的规范标题，不做选择
func (s *ProjectService) Resolve(ctx context.Context, communityID uint64, query string) ([]string, error) {
	rec, err := s.store.loadProvisioned(ctx, communityID)
	if err != nil {
		return nil, err
	}
	return resolver.Resolve(query, rec.Titles(), rec.Aliases), nil
}

func (s *ProjectService) AddProject(ctx context.Context, inv Invocation, req AddProjectRequest) (*model.ProjectRecord, error) {
	rec, err := s.store.loadProvisioned(ctx, inv.CommunityID)
	if err != nil {
		return nil, err
	}
	if !rec.IsOwner(inv.AuthorID) {
		return nil, ErrPermissionDenied
	}

	title := strings.TrimSpace(req.Title)
	count := req.Episodes
	var schedule []time.Time
	if (count <= 0 || title == "") && s.meta != nil && req.ExternalRef != "" {
		md, err := s.meta.Lookup(ctx, req.ExternalRef, 1, req.Episodes)
		if err != nil {
			return nil, err
		}
		if title == "" {
			title = strings.TrimSpace(md.Title)
		}
		if count <= 0 {
			count = md.Episodes
		}
		schedule = md.Schedule
	}
	if title == "" || count <= 0 {
		return nil, ErrInvalidArgument
	}

	var out *model.ProjectRecord
	_, err = s.store.Mutate(ctx, inv.CommunityID, func(rec *model.CommunityRecord) error {
		if !rec.IsOwner(inv.AuthorID) {
			return ErrPermissionDenied
		}
		if titleTaken(rec, title) {
			return ErrTitleExists
		}
		if aliasTaken(rec, title) {
			return ErrAliasConflict
		}
		var roleID uint64
		if s.roles != nil {
			id, err := s.roles.CreateRole(ctx, inv.CommunityID, title)
			if err != nil {
				return err
			}
			roleID = id
		}
		p := model.NewProjectRecord(title, req.ExternalRef, roleID)
		for n := 1; n <= count; n++ {
			p.Episodes[n] = model.NewEpisodeState(airTime(schedule, n-1))
		}
		p.LastUpdate = s.now().UTC()
		rec.PutProject(p)
		out = p.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("project added",
		zap.Uint64("community_id", inv.CommunityID),
		zap.String("title", title),
		zap.Int("episodes", count),
	)
	return out, nil
}

// DropProject 删除项目，并从每个协作方的副本中删除
func (s *ProjectService) DropProject(ctx context.Context, inv Invocation, query string, sel resolver.Selector) (string, []uint64, error) {
	title, err := s.resolve(ctx, inv.CommunityID, query, sel)
	if err != nil {
		return "", nil, err
	}
	var members []uint64
	_, err = s.store.Mutate(ctx, inv.CommunityID, func(rec *model.CommunityRecord) error {
		p, ok := rec.Project(title)
		if !ok {
			return ErrProjectNotFound
		}
		if !rec.IsOwner(inv.AuthorID) {
			return ErrPermissionDenied
		}
		members = model.RemoveID(p.Collaborators, inv.CommunityID)
		rec.RemoveProject(title)
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	for _, m := range members {
		_, err := s.store.Mutate(ctx, m, func(rec *model.CommunityRecord) error {
			if !rec.RemoveProject(title) {
				return ErrProjectNotFound
			}
			return nil
		})
		if err != nil {
			s.logFanOutFailure(m, title, err)
		}
	}
	s.log.Info("project dropped",
		zap.Uint64("community_id", inv.CommunityID),
		zap.String("title", title),
		zap.Uint64s("collaborators", members),
	)
	return title, members, nil
}

// AssignStaff userID 为 0 时清空该职位
func (s *ProjectService) AssignStaff(ctx context.Context, inv Invocation, query string, sel resolver.Selector, role string, userID uint64) (*model.ProjectRecord, error) {
	r := model.NormalizeRole(role)
	if r == "" {
		return nil, ErrInvalidArgument
	}
	return s.edit(ctx, inv, query, sel, ownerOnly(inv.AuthorID), func(p *model.ProjectRecord) error {
		if userID == 0 {
			delete(p.StaffAssignment, r)
			return nil
		}
		p.StaffAssignment[r] = userID
		return nil
	})
}

// AddEpisodes 在末尾追加 count 集，能查到排期时带上播出时间
func (s *ProjectService) AddEpisodes(ctx context.Context, inv Invocation, query string, sel resolver.Selector, count int) (*model.ProjectRecord, error) {
	if count <= 0 {
		return nil, ErrInvalidArgument
	}
	rec, err := s.store.loadProvisioned(ctx, inv.CommunityID)
	if err != nil {
		return nil, err
	}
	title, err := resolveTitle(ctx, rec, query, sel)
	if err != nil {
		return nil, err
	}
	p, _ := rec.Project(title)
	first := p.LastEpisode() + 1
	var schedule []time.Time
	if s.meta != nil && p.ExternalRef != "" {
		md, err := s.meta.Lookup(ctx, p.ExternalRef, first, first+count-1)
		if err != nil {
			s.log.Warn("metadata lookup failed, adding episodes without schedule",
				zap.String("title", title), zap.Error(err))
		} else {
			schedule = md.Schedule
		}
	}
	return s.editTitle(ctx, inv, title, ownerOnly(inv.AuthorID), func(p *model.ProjectRecord) error {
		for i := 0; i < count; i++ {
			n := first + i
			if _, ok := p.Episodes[n]; ok {
				continue
			}
			p.Episodes[n] = model.NewEpisodeState(airTime(schedule, i))
		}
		return nil
	})
}

// RemoveEpisodes 删除 [from, to] 区间内的集数
func (s *ProjectService) RemoveEpisodes(ctx context.Context, inv Invocation, query string, sel resolver.Selector, from, to int) (*model.ProjectRecord, error) {
	if to == 0 {
		to = from
	}
	if from <= 0 || to < from {
		return nil, ErrInvalidArgument
	}
	return s.edit(ctx, inv, query, sel, ownerOnly(inv.AuthorID), func(p *model.ProjectRecord) error {
		removed := 0
		for n := from; n <= to; n++ {
			if _, ok := p.Episodes[n]; ok {
				delete(p.Episodes, n)
				removed++
			}
		}
		if removed == 0 {
			return ErrEpisodeNotFound
		}
		return nil
	})
}

// MarkRoleDone episode 为 0 时取第一个未发布的集数
func (s *ProjectService) MarkRoleDone(ctx context.Context, inv Invocation, query string, sel resolver.Selector, role string, episode int, done bool) (*model.ProjectRecord, error) {
	r := model.NormalizeRole(role)
	if r == "" {
		return nil, ErrInvalidArgument
	}
	title, err := s.resolve(ctx, inv.CommunityID, query, sel)
	if err != nil {
		return nil, err
	}
	ep := episode
	return s.editTitle(ctx, inv, title, func(rec *model.CommunityRecord, p *model.ProjectRecord) error {
		if err := ownerOrStaff(inv.AuthorID, r)(rec, p); err != nil {
			return err
		}
		if ep == 0 {
			n, ok := p.NextUnreleased()
			if !ok {
				return ErrEpisodeNotFound
			}
			ep = n
		}
		return nil
	}, func(p *model.ProjectRecord) error {
		e, ok := p.Episodes[ep]
		if !ok {
			return ErrEpisodeNotFound
		}
		e.StaffDone[r] = done
		return nil
	})
}

// Release 发布一集，episode 为 0 时取第一个未发布的集数
func (s *ProjectService) Release(ctx context.Context, inv Invocation, query string, sel resolver.Selector, episode int) (*model.ProjectRecord, int, error) {
	title, err := s.resolve(ctx, inv.CommunityID, query, sel)
	if err != nil {
		return nil, 0, err
	}
	ep := episode
	p, err := s.editTitle(ctx, inv, title, func(rec *model.CommunityRecord, p *model.ProjectRecord) error {
		if err := ownerOrStaff(inv.AuthorID, "")(rec, p); err != nil {
			return err
		}
		if ep == 0 {
			n, ok := p.NextUnreleased()
			if !ok {
				return ErrEpisodeNotFound
			}
			ep = n
		}
		return nil
	}, func(p *model.ProjectRecord) error {
		e, ok := p.Episodes[ep]
		if !ok {
			return ErrEpisodeNotFound
		}
		if e.Released() {
			return ErrAlreadyReleased
		}
		e.Status = model.EpisodeReleased
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	ev := pkg.NewEvent(pkg.EventEpisodeReleased, inv.CommunityID)
	ev.Title = title
	ev.Episode = ep
	ev.Members = p.Collaborators
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish release event failed", zap.String("title", title), zap.Error(err))
	}
	return p, ep, nil
}

// Revert 把已发布的集数退回未发布，仅所有者或质检可以操作；episode 为 0 时取最后一个已发布的集数
func (s *ProjectService) Revert(ctx context.Context, inv Invocation, query string, sel resolver.Selector, episode int) (*model.ProjectRecord, int, error) {
	title, err := s.resolve(ctx, inv.CommunityID, query, sel)
	if err != nil {
		return nil, 0, err
	}
	ep := episode
	p, err := s.editTitle(ctx, inv, title, func(rec *model.CommunityRecord, p *model.ProjectRecord) error {
		if err := ownerOrStaff(inv.AuthorID, model.RoleQC)(rec, p); err != nil {
			return err
		}
		if ep == 0 {
			nums := p.EpisodeNumbers()
			for i := len(nums) - 1; i >= 0; i-- {
				if p.Episodes[nums[i]].Released() {
					ep = nums[i]
					break
				}
			}
			if ep == 0 {
				return ErrNotReleased
			}
		}
		return nil
	}, func(p *model.ProjectRecord) error {
		e, ok := p.Episodes[ep]
		if !ok {
			return ErrEpisodeNotFound
		}
		if !e.Released() {
			return ErrNotReleased
		}
		e.Status = model.EpisodePending
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return p, ep, nil
}

func (s *ProjectService) Status(ctx context.Context, communityID uint64, query string, sel resolver.Selector) (*ProjectStatus, error) {
	rec, err := s.store.loadProvisioned(ctx, communityID)
	if err != nil {
		return nil, err
	}
	title, err := resolveTitle(ctx, rec, query, sel)
	if err != nil {
		return nil, err
	}
	p, _ := rec.Project(title)
	st := &ProjectStatus{
		Title:         p.Title,
		Staff:         p.StaffAssignment,
		Collaborators: p.Collaborators,
		LastUpdate:    p.LastUpdate,
	}
	for _, n := range p.EpisodeNumbers() {
		e := p.Episodes[n]
		st.Episodes = append(st.Episodes, EpisodeSummary{
			Number:       n,
			Released:     e.Released(),
			PendingRoles: e.PendingRoles(),
			AirTime:      e.ScheduledAirTime,
		})
	}
	return st, nil
}

// AddAlias 别名只属于本社区，不同步给协作方
func (s *ProjectService) AddAlias(ctx context.Context, inv Invocation, query string, sel resolver.Selector, alias string) (string, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return "", ErrInvalidArgument
	}
	title, err := s.resolve(ctx, inv.CommunityID, query, sel)
	if err != nil {
		return "", err
	}
	_, err = s.store.Mutate(ctx, inv.CommunityID, func(rec *model.CommunityRecord) error {
		if !rec.IsOwner(inv.AuthorID) {
			return ErrPermissionDenied
		}
		if _, ok := rec.Project(title); !ok {
			return ErrProjectNotFound
		}
		if titleTaken(rec, alias) || aliasTaken(rec, alias) {
			return ErrAliasConflict
		}
		rec.Aliases[alias] = title
		return nil
	})
	if err != nil {
		return "", err
	}
	return title, nil
}

func (s *ProjectService) RemoveAlias(ctx context.Context, inv Invocation, alias string) error {
	alias = strings.TrimSpace(alias)
	_, err := s.store.Mutate(ctx, inv.CommunityID, func(rec *model.CommunityRecord) error {
		if !rec.IsOwner(inv.AuthorID) {
			return ErrPermissionDenied
		}
		if _, ok := rec.Aliases[alias]; !ok {
			return ErrAliasNotFound
		}
		delete(rec.Aliases, alias)
		return nil
	})
	return err
}

func (s *ProjectService) resolve(ctx context.Context, communityID uint64, query string, sel resolver.Selector) (string, error) {
	rec, err := s.store.loadProvisioned(ctx, communityID)
	if err != nil {
		return "", err
	}
	return resolveTitle(ctx, rec, query, sel)
}

// edit 解析标题后执行 editTitle
func (s *ProjectService) edit(ctx context.Context, inv Invocation, query string, sel resolver.Selector, auth authorizer, apply func(p *model.ProjectRecord) error) (*model.ProjectRecord, error) {
	title, err := s.resolve(ctx, inv.CommunityID, query, sel)
	if err != nil {
		return nil, err
	}
	return s.editTitle(ctx, inv, title, auth, apply)
}

// editTitle 先在调用方社区的副本上校验并执行 apply，再在每个协作方的副本上原样重放。
// 重放失败只记录日志，各社区的推送各自进入写队列。
func (s *ProjectService) editTitle(ctx context.Context, inv Invocation, title string, auth authorizer, apply func(p *model.ProjectRecord) error) (*model.ProjectRecord, error) {
	var (
		out     *model.ProjectRecord
		members []uint64
	)
	_, err := s.store.Mutate(ctx, inv.CommunityID, func(rec *model.CommunityRecord) error {
		p, ok := rec.Project(title)
		if !ok {
			return ErrProjectNotFound
		}
		if err := auth(rec, p); err != nil {
			return err
		}
		if err := apply(p); err != nil {
			return err
		}
		p.LastUpdate = s.now().UTC()
		out = p.Clone()
		members = model.RemoveID(p.Collaborators, inv.CommunityID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.fanOut(ctx, members, title, apply)
	return out, nil
}

func (s *ProjectService) fanOut(ctx context.Context, members []uint64, title string, apply func(p *model.ProjectRecord) error) {
	for _, m := range members {
		_, err := s.store.Mutate(ctx, m, func(rec *model.CommunityRecord) error {
			p, ok := rec.Project(title)
			if !ok {
				return ErrProjectNotFound
			}
			if err := apply(p); err != nil {
				return err
			}
			p.LastUpdate = s.now().UTC()
			return nil
		})
		if err != nil {
			s.logFanOutFailure(m, title, err)
		}
	}
}

func (s *ProjectService) logFanOutFailure(communityID uint64, title string, err error) {
	fields := []zap.Field{zap.Uint64("community_id", communityID), zap.String("title", title), zap.Error(err)}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotProvisioned) || errors.Is(err, ErrConflict) {
		s.log.Info("fan-out skipped collaborator", fields...)
		return
	}
	s.log.Warn("fan-out to collaborator failed", fields...)
}

// 大小写无关地比较：别名不能和任何标题或已有别名重名
func titleTaken(rec *model.CommunityRecord, name string) bool {
	for title := range rec.Projects {
		if strings.EqualFold(title, name) {
			return true
		}
	}
	return false
}

func aliasTaken(rec *model.CommunityRecord, name string) bool {
	for alias := range rec.Aliases {
		if strings.EqualFold(alias, name) {
			return true
		}
	}
	return false
}

func airTime(schedule []time.Time, i int) time.Time {
	if i < 0 || i >= len(schedule) {
		return time.Time{}
	}
	return schedule[i].UTC()
}
