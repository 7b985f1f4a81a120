package filesystem

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	obserrors "github.com/observefs/observefs/pkg/errors"
)

func newLocalFixture(t *testing.T) (*LocalFileSystem, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte("0123456789"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.csv"), []byte("xy"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	fs, err := NewLocalFileSystem(dir)
	require.NoError(t, err)
	return fs, dir
}

func TestLocalFileSystemRead(t *testing.T) {
	ctx := context.Background()
	fs, dir := newLocalFixture(t)
	assert.Equal(t, "local", fs.Name())

	fh, err := fs.Open(ctx, "a.csv")
	require.NoError(t, err)
	defer fh.Close()
	assert.Equal(t, filepath.Join(dir, "a.csv"), fh.Path())

	size, err := fs.GetFileSize(ctx, fh)
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)

	buf := make([]byte, 4)
	n, err := fs.Read(ctx, fh, buf, 3)
	require.NoError(t, err)
	assert.Equal(t, "3456", string(buf[:n]))

	n, err = fs.Read(ctx, fh, buf, 8)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "89", string(buf[:n]))

	abs, err := fs.Open(ctx, "file://"+filepath.Join(dir, "b.csv"))
	require.NoError(t, err)
	defer abs.Close()
	assert.Equal(t, filepath.Join(dir, "b.csv"), abs.Path())
}

func TestLocalFileSystemErrors(t *testing.T) {
	ctx := context.Background()
	fs, dir := newLocalFixture(t)

	_, err := fs.Open(ctx, "missing.csv")
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, obserrors.ErrCodeFileNotFound, obserrors.CodeOf(err))

	_, err = fs.Open(ctx, "sub")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = fs.Read(ctx, &memHandle{path: "x"}, make([]byte, 1), 0)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = NewLocalFileSystem(filepath.Join(dir, "a.csv"))
	assert.Equal(t, obserrors.ErrCodePathInvalid, obserrors.CodeOf(err))

	_, err = NewLocalFileSystem(filepath.Join(dir, "nope"))
	assert.Equal(t, obserrors.ErrCodeFileNotFound, obserrors.CodeOf(err))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = fs.Open(canceled, "a.csv")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalFileSystemListAndGlob(t *testing.T) {
	ctx := context.Background()
	fs, dir := newLocalFixture(t)

	entries, err := fs.List(ctx, dir)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "a.csv", entries[0].Name)
	assert.Equal(t, int64(10), entries[0].Size)
	assert.Equal(t, FileTypeRegular, entries[0].Type)
	assert.Equal(t, "sub", entries[3].Name)
	assert.True(t, entries[3].IsDir)
	assert.Equal(t, FileTypeDirectory, entries[3].Type)

	matches, err := fs.Glob(ctx, "*.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.csv"), filepath.Join(dir, "b.csv")}, matches)

	_, err = fs.Glob(ctx, "[")
	assert.Equal(t, obserrors.ErrCodePathInvalid, obserrors.CodeOf(err))

	_, err = fs.List(ctx, "missing")
	assert.Equal(t, obserrors.ErrCodeFileNotFound, obserrors.CodeOf(err))
}

func TestFileTypeString(t *testing.T) {
	assert.Equal(t, "file", FileTypeRegular.String())
	assert.Equal(t, "directory", FileTypeDirectory.String())
	assert.Equal(t, "symlink", FileTypeSymlink.String())
	assert.Equal(t, "unknown", FileTypeUnknown.String())
}
