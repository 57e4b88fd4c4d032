package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminRepository(t *testing.T) {
	client, mr := newTestClient(t)
	repo := NewAdminRepository(client, "showtimes")
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return first }
	ctx := context.Background()

	require.NoError(t, repo.AddAdmin(ctx, 5))
	require.NoError(t, repo.AddAdmin(ctx, 2))
	assert.True(t, mr.Exists("showtimesadmin_5"))

	repo.now = func() time.Time { return first.Add(time.Hour) }
	require.NoError(t, repo.AddAdmin(ctx, 5))

	list, err := repo.ListAdmins(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, uint64(2), list[0].AdminID)
	assert.Equal(t, uint64(5), list[1].AdminID)
	assert.Equal(t, first, list[1].AddedAt)

	ok, err := repo.IsAdmin(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.RemoveAdmin(ctx, 5))
	assert.ErrorIs(t, repo.RemoveAdmin(ctx, 5), ErrAdminNotFound)
	ok, err = repo.IsAdmin(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok)
}
