package sandboxfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveWithinBase(t *testing.T) {
	dir := t.TempDir()
	fs, err := New(dir)
	require.NoError(t, err)

	resolved, err := fs.Resolve("notes/todo.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "notes", "todo.txt"), resolved)
}

func TestResolveRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	fs, err := New(dir)
	require.NoError(t, err)

	_, err = fs.Resolve("../../../etc/passwd")
	assert.Error(t, err)
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("nope"), 0o644))

	fs, err := New(dir)
	require.NoError(t, err)

	link := filepath.Join(dir, "escape")
	require.NoError(t, os.Symlink(outside, link))

	_, err = fs.Resolve("escape/secret.txt")
	assert.Error(t, err)
}

func TestWriteReadFile(t *testing.T) {
	dir := t.TempDir()
	fs, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, fs.WriteFile("a/b/c.txt", []byte("hello")))
	data, err := fs.ReadFile("a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestListDirectoryTruncates(t *testing.T) {
	dir := t.TempDir()
	fs, err := New(dir)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, fs.WriteFile(filepath.Join("d", string(rune('a'+i))+".txt"), []byte("x")))
	}

	tree, err := fs.ListDirectory("d", 3)
	require.NoError(t, err)
	assert.True(t, tree.Truncated)
	assert.Len(t, tree.Children, 3)
}

func TestGlob(t *testing.T) {
	dir := t.TempDir()
	fs, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, fs.WriteFile("src/a.go", []byte("x")))
	require.NoError(t, fs.WriteFile("src/nested/b.go", []byte("x")))
	require.NoError(t, fs.WriteFile("README.md", []byte("x")))

	matches, err := fs.Glob("**/*.go")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestFindBestDriveLetter(t *testing.T) {
	letter, err := FindBestDriveLetter(0)
	require.NoError(t, err)
	assert.Contains(t, []byte{'M', 'N'}, letter)

	used := uint32(1) | uint32(1)<<25 // A and Z taken
	letter, err = FindBestDriveLetter(used)
	require.NoError(t, err)
	assert.Contains(t, []byte{'M', 'N'}, letter)

	_, err = FindBestDriveLetter((1 << 26) - 1)
	assert.Error(t, err)
}
