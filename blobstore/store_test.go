package blobstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, "ckpt/000001", []byte("one")))
	require.NoError(t, store.Put(ctx, "ckpt/000002", []byte("two")))
	require.NoError(t, store.Put(ctx, "other", []byte("x")))

	data, err := store.Get(ctx, "ckpt/000001")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), data)

	// Overwrite replaces content.
	require.NoError(t, store.Put(ctx, "ckpt/000001", []byte("one-b")))
	data, err = store.Get(ctx, "ckpt/000001")
	require.NoError(t, err)
	assert.Equal(t, []byte("one-b"), data)

	names, err := store.List(ctx, "ckpt/")
	require.NoError(t, err)
	assert.Equal(t, []string{"ckpt/000001", "ckpt/000002"}, names)

	require.NoError(t, store.Delete(ctx, "ckpt/000001"))
	require.NoError(t, store.Delete(ctx, "ckpt/000001"), "double delete is silent")

	_, err = store.Get(ctx, "ckpt/000001")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	testStore(t, store)
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	buf := []byte("abc")
	require.NoError(t, store.Put(ctx, "a", buf))
	buf[0] = 'z'

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	got[1] = 'z'
	again, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestLocalStoreHidesTempFiles(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "snap", []byte("data")))
	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"snap"}, names)
}
