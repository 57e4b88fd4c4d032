package mysql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"Showtimes_Sync/internal/model"
)

func newTestRepo(t *testing.T) *CommunityRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库每个连接都是独立的库
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, Migrate(db))
	return NewCommunityRepository(db)
}

func TestCreateRejectsDuplicate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, 1, model.NewCommunityRecord(1, 10)))
	assert.ErrorIs(t, repo.Create(ctx, 1, model.NewCommunityRecord(1, 10)), ErrDocumentExists)
}

func TestUpdateUpsertsAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	got, err := repo.Get(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, got)

	rec := model.NewCommunityRecord(2, 20)
	rec.PutProject(model.NewProjectRecord("Railgun", "anilist:6213", 0))
	require.NoError(t, repo.Update(ctx, 2, rec))

	rec.Aliases["rg"] = "Railgun"
	require.NoError(t, repo.Update(ctx, 2, rec))

	got, err = repo.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestDeleteChecksOwner(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := model.NewCommunityRecord(3, 30)
	rec.OwnerIDs = model.AddID(rec.OwnerIDs, 31)
	require.NoError(t, repo.Create(ctx, 3, rec))

	assert.ErrorIs(t, repo.Delete(ctx, 3, 99), ErrNotOwner)
	require.NoError(t, repo.Delete(ctx, 3, 31))
	assert.ErrorIs(t, repo.Delete(ctx, 3, 30), ErrDocumentNotFound)
}

func TestSnapshotRestore(t *testing.T) {
	src := newTestRepo(t)
	ctx := context.Background()
	for _, id := range []uint64{5, 4} {
		rec := model.NewCommunityRecord(id, id*10)
		rec.PutProject(model.NewProjectRecord("Show", "", 0))
		require.NoError(t, src.Update(ctx, id, rec))
	}

	snap, err := src.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Communities, 2)
	assert.Equal(t, uint64(4), snap.Communities[0].CommunityID)

	dst := newTestRepo(t)
	require.NoError(t, dst.Restore(ctx, snap))
	again, err := dst.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Communities, again.Communities)

	bad := &model.Snapshot{Communities: []*model.CommunityRecord{{}}}
	assert.Error(t, dst.Restore(ctx, bad))
}
