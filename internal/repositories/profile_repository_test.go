package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureProfileKeepsExistingFields(t *testing.T) {
	repo := NewProfileRepo(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.EnsureProfile(ctx, "alice", "Alice", "http://a/avatar.png"))
	require.NoError(t, repo.EnsureProfile(ctx, "alice", "", ""))

	p, err := repo.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.DisplayName)
	assert.Equal(t, "http://a/avatar.png", p.AvatarURL)

	require.NoError(t, repo.EnsureProfile(ctx, "alice", "Al", ""))
	p, err = repo.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Al", p.DisplayName)
}

func TestTouchLastSeenUpserts(t *testing.T) {
	repo := NewProfileRepo(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.TouchLastSeen(ctx, "bob", 500))
	p, err := repo.GetProfile(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(500), p.LastSeen)

	require.NoError(t, repo.EnsureProfile(ctx, "bob", "Bob", ""))
	require.NoError(t, repo.TouchLastSeen(ctx, "bob", 900))
	p, err = repo.GetProfile(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(900), p.LastSeen)
	assert.Equal(t, "Bob", p.DisplayName)
}

func TestGetProfiles(t *testing.T) {
	repo := NewProfileRepo(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.EnsureProfile(ctx, "alice", "Alice", ""))
	require.NoError(t, repo.EnsureProfile(ctx, "bob", "Bob", ""))

	profiles, err := repo.GetProfiles(ctx, []string{"alice", "bob", "ghost"})
	require.NoError(t, err)
	assert.Len(t, profiles, 2)
	assert.Equal(t, "Bob", profiles["bob"].DisplayName)

	_, err = repo.GetProfile(ctx, "ghost")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}
