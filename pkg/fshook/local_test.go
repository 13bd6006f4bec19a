package fshook

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, name string, size int) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, make([]byte, size), 0o644))
}

func TestLocalStat(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "data/file", 20)
	hook := NewLocal(root)
	ctx := context.Background()

	info, err := hook.Stat(ctx, "data/file")
	require.NoError(t, err)
	assert.Equal(t, "data/file", info.Path)
	assert.Equal(t, "file", info.Name)
	assert.Equal(t, int64(20), info.Size)
	assert.False(t, info.IsDir)
	assert.False(t, info.ModTime.IsZero())

	info, err = hook.Stat(ctx, "data")
	require.NoError(t, err)
	assert.True(t, info.IsDir)

	_, err = hook.Stat(ctx, "missing")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLocalList(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dir/a", 1)
	writeFile(t, root, "dir/b._COPYING_", 2)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dir", "sub"), 0o755))
	hook := NewLocal(root)

	entries, err := hook.List(context.Background(), "dir")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// os.ReadDir sorts by name
	assert.Equal(t, "dir/a", entries[0].Path)
	assert.Equal(t, "b._COPYING_", entries[1].Name)
	assert.Equal(t, int64(2), entries[1].Size)
	assert.True(t, entries[2].IsDir)

	_, err = hook.List(context.Background(), "nope")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLocalCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocal(t.TempDir()).Stat(ctx, ".")
	assert.ErrorIs(t, err, context.Canceled)
}
