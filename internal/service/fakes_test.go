package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"Showtimes_Sync/internal/model"
	"Showtimes_Sync/internal/pkg"
)

var errRemoteDown = errors.New("remote store unreachable")

// memCache 以序列化后的字节保存，读写之间不共享指针
type memCache struct {
	mu   sync.Mutex
	data map[uint64][]byte
}

func newMemCache() *memCache { return &memCache{data: map[uint64][]byte{}} }

func (c *memCache) Get(_ context.Context, id uint64) (*model.CommunityRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[id]
	if !ok {
		return nil, nil
	}
	return model.Decode(raw)
}

func (c *memCache) Set(_ context.Context, id uint64, rec *model.CommunityRecord) error {
	raw, err := model.Encode(rec.Clone())
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[id] = raw
	return nil
}

func (c *memCache) SetIfAbsent(_ context.Context, id uint64, rec *model.CommunityRecord) (bool, error) {
	raw, err := model.Encode(rec.Clone())
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[id]; ok {
		return false, nil
	}
	c.data[id] = raw
	return true, nil
}

func (c *memCache) Delete(_ context.Context, id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, id)
	return nil
}

type fakeRemote struct {
	mu      sync.Mutex
	docs    map[uint64]*model.CommunityRecord
	down    bool
	updates int
}

func newFakeRemote() *fakeRemote { return &fakeRemote{docs: map[uint64]*model.CommunityRecord{}} }

func (r *fakeRemote) setDown(down bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.down = down
}

func (r *fakeRemote) doc(id uint64) *model.CommunityRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[id].Clone()
}

func (r *fakeRemote) Get(_ context.Context, id uint64) (*model.CommunityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return nil, errRemoteDown
	}
	return r.docs[id].Clone(), nil
}

func (r *fakeRemote) Create(_ context.Context, id uint64, rec *model.CommunityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return errRemoteDown
	}
	if _, ok := r.docs[id]; ok {
		return errors.New("document exists")
	}
	r.docs[id] = rec.Clone()
	return nil
}

func (r *fakeRemote) Update(_ context.Context, id uint64, rec *model.CommunityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	if r.down {
		return errRemoteDown
	}
	r.docs[id] = rec.Clone()
	return nil
}

func (r *fakeRemote) Delete(_ context.Context, id, owner uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return errRemoteDown
	}
	doc, ok := r.docs[id]
	if !ok {
		return errors.New("document not found")
	}
	if !doc.IsOwner(owner) {
		return errors.New("not owner")
	}
	delete(r.docs, id)
	return nil
}

func (r *fakeRemote) Snapshot(context.Context) (*model.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := &model.Snapshot{TakenAt: time.Now().UTC()}
	for _, doc := range r.docs {
		snap.Communities = append(snap.Communities, doc.Clone())
	}
	return snap, nil
}

func (r *fakeRemote) Restore(_ context.Context, snap *model.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range snap.Communities {
		r.docs[rec.CommunityID] = rec.Clone()
	}
	return nil
}

type fakeRoles struct {
	mu      sync.Mutex
	next    uint64
	created []string
}

func (f *fakeRoles) CreateRole(_ context.Context, communityID uint64, title string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.created = append(f.created, title)
	return communityID*1000 + f.next, nil
}

type fakeCatalog struct {
	mu      sync.Mutex
	unbound []string
}

func (f *fakeCatalog) Unbind(_ context.Context, _ uint64, _ string, catalogID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unbound = append(f.unbound, catalogID)
	return nil
}

type fakeMeta struct {
	md    *Metadata
	calls [][2]int
}

func (f *fakeMeta) Lookup(_ context.Context, _ string, from, to int) (*Metadata, error) {
	f.calls = append(f.calls, [2]int{from, to})
	return f.md, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []pkg.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev pkg.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type memRoster struct {
	mu     sync.Mutex
	admins map[uint64]model.AdminEntry
}

func newMemRoster() *memRoster { return &memRoster{admins: map[uint64]model.AdminEntry{}} }

func (r *memRoster) AddAdmin(_ context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admins[id] = model.AdminEntry{AdminID: id}
	return nil
}

func (r *memRoster) RemoveAdmin(_ context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.admins, id)
	return nil
}

func (r *memRoster) IsAdmin(_ context.Context, id uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.admins[id]
	return ok, nil
}

func (r *memRoster) ListAdmins(context.Context) ([]model.AdminEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.AdminEntry
	for _, e := range r.admins {
		out = append(out, e)
	}
	return out, nil
}

type fixedSelector struct{ index int }

func (s fixedSelector) Select(context.Context, []string) (int, error) { return s.index, nil }

type harness struct {
	cache     *memCache
	remote    *fakeRemote
	pending   *MemoryPendingSet
	events    *recordingPublisher
	roles     *fakeRoles
	catalog   *fakeCatalog
	queue     *WriteQueue
	store     *Store
	community *CommunityService
	projects  *ProjectService
	collab    *CollabService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		cache:   newMemCache(),
		remote:  newFakeRemote(),
		pending: NewMemoryPendingSet(),
		events:  &recordingPublisher{},
		roles:   &fakeRoles{},
		catalog: &fakeCatalog{},
	}
	log := zap.NewNop()
	h.queue = NewWriteQueue(h.cache, h.remote, h.pending, h.events, log, time.Second)
	h.store = NewStore(h.cache, h.remote, pkg.NewKeyedMutex(), h.queue, h.pending, log)
	h.community = NewCommunityService(h.store, newMemRoster(), log)
	h.projects = NewProjectService(h.store, h.roles, nil, h.events, log)
	h.collab = NewCollabService(h.store, h.roles, h.catalog, h.events, log)
	t.Cleanup(h.queue.Wait)
	return h
}

func (h *harness) provision(t *testing.T, communityID, ownerID uint64) {
	t.Helper()
	_, err := h.community.Provision(context.Background(), communityID, ownerID)
	require.NoError(t, err)
}

func (h *harness) addProject(t *testing.T, communityID, ownerID uint64, title string, episodes int) {
	t.Helper()
	_, err := h.projects.AddProject(context.Background(), Invocation{CommunityID: communityID, AuthorID: ownerID},
		AddProjectRequest{Title: title, Episodes: episodes})
	require.NoError(t, err)
}

// project 读取本地缓存中的副本
func (h *harness) project(t *testing.T, communityID uint64, title string) *model.ProjectRecord {
	t.Helper()
	rec, err := h.cache.Get(context.Background(), communityID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	p, ok := rec.Project(title)
	require.True(t, ok, "community %d has no project %q", communityID, title)
	return p
}
