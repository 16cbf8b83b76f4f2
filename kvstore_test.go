package auth_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pestline/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemoryStore()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "a", "1"))
	require.NoError(t, store.Set(ctx, "b", "2"))

	v, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	require.NoError(t, store.Delete(ctx, "a", "b", "c"))
	_, ok, _ = store.Get(ctx, "b")
	assert.False(t, ok)
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "state")

	first, err := auth.NewFileStoreInDir(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, auth.DefaultStateFile), first.Path())

	_, ok, err := first.Get(ctx, auth.SnapshotKeyRoles)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Set(ctx, auth.SnapshotKeyRoles, `["admin"]`))

	info, err := os.Stat(first.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := auth.NewFileStoreInDir(dir)
	require.NoError(t, err)
	v, ok, err := second.Get(ctx, auth.SnapshotKeyRoles)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `["admin"]`, v)

	require.NoError(t, second.Delete(ctx, auth.SnapshotKeyRoles))
	require.NoError(t, second.Delete(ctx, auth.SnapshotKeyRoles))
	_, ok, err = first.Get(ctx, auth.SnapshotKeyRoles)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreUnreadableFileIsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store, err := auth.NewFileStore(path)
	require.NoError(t, err)

	_, ok, err := store.Get(ctx, "anything")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "k", "v"))
	v, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}
