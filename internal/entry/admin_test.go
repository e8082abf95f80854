package entry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secretproxy/internal/fakes"
)

func TestAdminListKeys(t *testing.T) {
	f := newFixture(t, fakes.NewFakeBackend())
	ctx := context.Background()

	assert.Empty(t, f.admin.ListKeys(ctx))

	require.NoError(t, f.svc.Put(ctx, "b", "2"))
	require.NoError(t, f.svc.Put(ctx, "a", "1"))
	assert.Equal(t, []string{"a", "b"}, f.admin.ListKeys(ctx))
}

func TestAdminInvalidateNeverCachedIsNoOp(t *testing.T) {
	fb := fakes.NewFakeBackend()
	f := newFixture(t, fb)
	ctx := context.Background()

	assert.NotPanics(t, func() { f.admin.Invalidate(ctx, "ghost") })
	assert.Empty(t, f.admin.ListKeys(ctx))
	assert.Zero(t, fb.CallCount("Get"))
	assert.Zero(t, fb.CallCount("Set"))
	assert.Zero(t, fb.CallCount("Delete"))
	assert.Contains(t, f.logs.String(), "Cache entry invalidated: key = ghost")
}

func TestAdminInvalidateForcesReload(t *testing.T) {
	fb := fakes.NewFakeBackend()
	f := newFixture(t, fb)
	ctx := context.Background()

	require.NoError(t, f.svc.Put(ctx, "k", "v"))
	f.admin.Invalidate(ctx, "k")
	assert.Empty(t, f.admin.ListKeys(ctx))

	v, err := f.svc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.Equal(t, 1, fb.CallCount("Get"))

	// Backend untouched by invalidation.
	stored, ok := fb.Value("k")
	require.True(t, ok)
	assert.Equal(t, "v", stored)
}

func TestAdminInvalidateAll(t *testing.T) {
	fb := fakes.NewFakeBackend()
	f := newFixture(t, fb)
	ctx := context.Background()

	require.NoError(t, f.svc.Put(ctx, "a", "1"))
	require.NoError(t, f.svc.Put(ctx, "b", "2"))

	f.admin.InvalidateAll(ctx)
	f.admin.InvalidateAll(ctx)

	assert.Empty(t, f.admin.ListKeys(ctx))
	assert.Contains(t, f.logs.String(), "All cache entries invalidated")
	assert.Zero(t, fb.CallCount("Delete"))
}
