package redisstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/pestline/go-auth"
	"github.com/pestline/go-auth/adapters/redisstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *redisstore.Store {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redisstore.NewClient(addr, os.Getenv("REDIS_PASSWORD"), 0)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	return redisstore.New(client, redisstore.Options{Prefix: "test:" + uuid.NewString() + ":"})
}

func TestStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "auth.roles", `["admin"]`))
	v, ok, err := store.Get(ctx, "auth.roles")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `["admin"]`, v)

	require.NoError(t, store.Delete(ctx, "auth.roles", "never-set"))
	_, ok, err = store.Get(ctx, "auth.roles")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_BacksSnapshotCache(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	cache := auth.NewSnapshotCache(store)

	approved := true
	require.NoError(t, cache.Store(ctx, auth.RoleSnapshot{
		Roles:       []string{auth.RoleUser},
		IsApproved:  &approved,
		LoginMethod: auth.LoginMethodEmail,
		Email:       "tech@example.com",
	}))

	snap, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Complete())
	assert.True(t, snap.BelongsTo("tech@example.com"))

	require.NoError(t, cache.Clear(ctx))
	_, err = cache.Load(ctx)
	assert.ErrorIs(t, err, auth.ErrSnapshotMissing)
}
