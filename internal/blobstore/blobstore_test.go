package blobstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetExists(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	data := []byte("hello, world")
	hash, err := store.Put(data)
	require.NoError(t, err)
	assert.Len(t, hash, 64) // sha512/256 hex digest

	assert.True(t, store.Exists(hash))

	got, err := store.Get(hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestPutIdempotent(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	data := []byte("same bytes twice")
	h1, err := store.Put(data)
	require.NoError(t, err)
	h2, err := store.Put(data)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestGetNotFound(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	_, err = store.Get("deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGC(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	keep, err := store.Put([]byte("keep me"))
	require.NoError(t, err)
	drop, err := store.Put([]byte("drop me"))
	require.NoError(t, err)

	removed, err := store.GC(map[string]struct{}{keep: {}})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.True(t, store.Exists(keep))
	assert.False(t, store.Exists(drop))
}

func TestPathSharding(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	hash, err := store.Put([]byte("shard check"))
	require.NoError(t, err)

	expected := filepath.Join(dir, hash[:2], hash)
	_, statErr := filepath.Abs(expected)
	require.NoError(t, statErr)
	assert.Equal(t, expected, store.pathFor(hash))
}
