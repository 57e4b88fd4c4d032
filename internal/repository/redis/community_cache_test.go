package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Showtimes_Sync/internal/model"
)

func TestCommunityCacheGetUnprovisioned(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewCommunityCache(client, "showtimes")

	rec, err := cache.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCommunityCacheSetGetDeepEqual(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewCommunityCache(client, "showtimes")
	ctx := context.Background()

	rec := model.NewCommunityRecord(123, 9)
	p := model.NewProjectRecord("Date A Live", "anilist:15583", 77)
	p.StaffAssignment[model.RoleQC] = 10
	p.Episodes[1] = model.NewEpisodeState(time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC))
	p.Collaborators = []uint64{123, 456}
	rec.PutProject(p)
	rec.Aliases["dal"] = "Date A Live"

	require.NoError(t, cache.Set(ctx, 123, rec))
	assert.True(t, mr.Exists("showtimes_123"))

	got, err := cache.Get(ctx, 123)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestCommunityCacheCorruptRecord(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewCommunityCache(client, "showtimes")
	require.NoError(t, mr.Set("showtimes_5", "{not json"))

	_, err := cache.Get(context.Background(), 5)
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestCommunityCacheUnavailable(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewCommunityCache(client, "showtimes")
	mr.Close()

	_, err := cache.Get(context.Background(), 5)
	assert.ErrorIs(t, err, ErrCacheUnavailable)
}

func TestCommunityCacheDeleteAndList(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewCommunityCache(client, "showtimes")
	admins := NewAdminRepository(client, "showtimes")
	resync := NewResyncRepository(client, "showtimes")
	ctx := context.Background()

	for _, id := range []uint64{30, 10, 20} {
		require.NoError(t, cache.Set(ctx, id, model.NewCommunityRecord(id, 1)))
	}
	// 管理员和重推集合的 key 不能混进社区列表
	require.NoError(t, admins.AddAdmin(ctx, 99))
	require.NoError(t, resync.Mark(ctx, 10, nil))

	ids, err := cache.ListCommunities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 20, 30}, ids)

	require.NoError(t, cache.Delete(ctx, 20))
	require.NoError(t, cache.Delete(ctx, 20))
	ids, err = cache.ListCommunities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 30}, ids)
}

func TestCommunityCacheSetIfAbsentKeepsExisting(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewCommunityCache(client, "showtimes")
	ctx := context.Background()

	fresh := model.NewCommunityRecord(5, 1)
	fresh.OwnerIDs = model.AddID(fresh.OwnerIDs, 2)
	require.NoError(t, cache.Set(ctx, 5, fresh))

	filled, err := cache.SetIfAbsent(ctx, 5, model.NewCommunityRecord(5, 1))
	require.NoError(t, err)
	assert.False(t, filled)
	got, err := cache.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, got.OwnerIDs)

	filled, err = cache.SetIfAbsent(ctx, 6, model.NewCommunityRecord(6, 3))
	require.NoError(t, err)
	assert.True(t, filled)
	got, err = cache.Get(ctx, 6)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, got.OwnerIDs)
}
