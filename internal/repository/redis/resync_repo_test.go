package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Showtimes_Sync/internal/model"
)

func TestResyncRepositoryMarkIsAppendIfAbsent(t *testing.T) {
	client, _ := newTestClient(t)
	repo := NewResyncRepository(client, "showtimes")
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, repo.Mark(ctx, 7, errors.New("timeout")))
	require.NoError(t, repo.Update(ctx, model.ResyncEntry{CommunityID: 7, Attempts: 3, FirstFailure: now, LastError: "boom"}))

	repo.now = func() time.Time { return now.Add(time.Hour) }
	require.NoError(t, repo.Mark(ctx, 7, errors.New("again")))

	entries, err := repo.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].Attempts)
	assert.Equal(t, now, entries[0].FirstFailure)
	assert.Equal(t, "boom", entries[0].LastError)
}

func TestResyncRepositoryUpdateDoesNotResurrect(t *testing.T) {
	client, _ := newTestClient(t)
	repo := NewResyncRepository(client, "showtimes")
	ctx := context.Background()

	require.NoError(t, repo.Update(ctx, model.ResyncEntry{CommunityID: 9, Attempts: 1}))
	ok, err := repo.Contains(ctx, 9)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResyncRepositorySurvivesNewClient(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, NewResyncRepository(client, "showtimes").Mark(ctx, 3, nil))
	require.NoError(t, NewResyncRepository(client, "showtimes").Mark(ctx, 1, nil))

	// 模拟进程重启：新的客户端读到同一份待重推集合
	other, err := Open(ctx, mr.Addr(), "", 0)
	require.NoError(t, err)
	defer other.Close()
	repo := NewResyncRepository(other, "showtimes")

	entries, err := repo.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(1), entries[0].CommunityID)
	assert.Equal(t, uint64(3), entries[1].CommunityID)

	require.NoError(t, repo.Remove(ctx, 1))
	ok, err := repo.Contains(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}
