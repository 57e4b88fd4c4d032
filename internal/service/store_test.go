package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"Showtimes_Sync/internal/model"
	"Showtimes_Sync/internal/pkg"
	mysqlrepo "Showtimes_Sync/internal/repository/mysql"
	redisrepo "Showtimes_Sync/internal/repository/redis"
)

func TestMutateLeavesRecordUntouchedOnError(t *testing.T) {
	h := newHarness(t)
	h.provision(t, 1, 10)
	ctx := context.Background()

	_, err := h.store.Mutate(ctx, 1, func(rec *model.CommunityRecord) error {
		rec.AnnounceChannel = 5
		return ErrPermissionDenied
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	rec, err := h.cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, rec.AnnounceChannel)

	_, err = h.store.Mutate(ctx, 2, func(*model.CommunityRecord) error { return nil })
	assert.ErrorIs(t, err, ErrNotProvisioned)
}

// gatedRemote 第一次 Get 读到远端后阻塞，直到 release 关闭
type gatedRemote struct {
	*fakeRemote
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (r *gatedRemote) Get(ctx context.Context, id uint64) (*model.CommunityRecord, error) {
	rec, err := r.fakeRemote.Get(ctx, id)
	first := false
	r.once.Do(func() { first = true })
	if first {
		close(r.entered)
		<-r.release
	}
	return rec, err
}

func TestReadThroughDoesNotOverwriteConcurrentMutation(t *testing.T) {
	ctx := context.Background()
	remote := &gatedRemote{fakeRemote: newFakeRemote(), entered: make(chan struct{}), release: make(chan struct{})}
	require.NoError(t, remote.fakeRemote.Create(ctx, 1, model.NewCommunityRecord(1, 10)))

	cache := newMemCache()
	pending := NewMemoryPendingSet()
	log := zap.NewNop()
	queue := NewWriteQueue(cache, remote, pending, &recordingPublisher{}, log, time.Second)
	store := NewStore(cache, remote, pkg.NewKeyedMutex(), queue, pending, log)
	t.Cleanup(queue.Wait)

	type loadResult struct {
		rec *model.CommunityRecord
		err error
	}
	done := make(chan loadResult, 1)
	go func() {
		rec, err := store.Load(ctx, 1)
		done <- loadResult{rec, err}
	}()
	<-remote.entered

	// 慢读还停在远端时，修改先提交
	_, err := store.Mutate(ctx, 1, func(rec *model.CommunityRecord) error {
		rec.OwnerIDs = model.AddID(rec.OwnerIDs, 99)
		return nil
	})
	require.NoError(t, err)

	close(remote.release)
	res := <-done
	require.NoError(t, res.err)
	require.NotNil(t, res.rec)
	assert.Equal(t, []uint64{10, 99}, res.rec.OwnerIDs)

	cached, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 99}, cached.OwnerIDs)

	queue.Wait()
	assert.Equal(t, []uint64{10, 99}, remote.doc(1).OwnerIDs)
}

// 使用 Redis 缓存（miniredis）和 GORM 远端存储（sqlite）跑一遍完整流程
func TestEngineWithRedisAndGorm(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, mysqlrepo.Migrate(db))

	const prefix = "showtimes"
	cache := redisrepo.NewCommunityCache(client, prefix)
	remote := mysqlrepo.NewCommunityRepository(db)
	pending := redisrepo.NewResyncRepository(client, prefix)
	queue := NewWriteQueue(cache, remote, pending, nil, nil, time.Second)
	t.Cleanup(queue.Wait)
	store := NewStore(cache, remote, redisrepo.NewDistLock(client, prefix), queue, pending, nil)
	roles := &fakeRoles{}
	communities := NewCommunityService(store, redisrepo.NewAdminRepository(client, prefix), nil)
	projects := NewProjectService(store, roles, nil, nil, nil)
	collab := NewCollabService(store, roles, nil, nil, nil)
	ctx := context.Background()

	_, err = communities.Provision(ctx, 1, 10)
	require.NoError(t, err)
	_, err = communities.Provision(ctx, 2, 20)
	require.NoError(t, err)
	_, err = projects.AddProject(ctx, Invocation{CommunityID: 1, AuthorID: 10}, AddProjectRequest{Title: "Date A Live", Episodes: 2})
	require.NoError(t, err)

	token, err := collab.Initiate(ctx, Invocation{CommunityID: 1, AuthorID: 10}, 2, "date", nil)
	require.NoError(t, err)
	_, err = collab.Confirm(ctx, Invocation{CommunityID: 2, AuthorID: 20}, token)
	require.NoError(t, err)
	queue.Wait()

	for _, id := range []uint64{1, 2} {
		doc, err := remote.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, doc)
		p, ok := doc.Project("Date A Live")
		require.True(t, ok)
		assert.Equal(t, []uint64{1, 2}, p.Collaborators)
	}
	entries, err := pending.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// 缓存丢失后从远端回源
	mr.Del(prefix + "_2")
	rec, err := communities.Get(ctx, 2)
	require.NoError(t, err)
	_, ok := rec.Project("Date A Live")
	assert.True(t, ok)
	assert.True(t, mr.Exists(prefix+"_2"))
}

func TestSnapshotRestoreOverwritesCache(t *testing.T) {
	h := newHarness(t)
	h.provision(t, 1, 10)
	h.addProject(t, 1, 10, "Railgun", 1)
	h.queue.Wait()
	ctx := context.Background()

	snap, err := h.community.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Communities, 1)

	h.addProject(t, 1, 10, "Date A Live", 1)
	h.queue.Wait()
	require.NoError(t, h.pending.Mark(ctx, 1, errRemoteDown))

	require.NoError(t, h.community.Restore(ctx, snap))
	rec, err := h.cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Railgun"}, rec.Titles())
	ok, _ := h.pending.Contains(ctx, 1)
	assert.False(t, ok)

	assert.ErrorIs(t, h.community.Restore(ctx, nil), ErrInvalidArgument)
}
