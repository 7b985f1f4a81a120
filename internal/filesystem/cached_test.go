package filesystem

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observefs/observefs/internal/cache"
)

func newCachedFS(t *testing.T, inner FileSystem) *CachedFileSystem {
	t.Helper()
	c, err := cache.NewBlockCache(&cache.CacheConfig{MaxSize: 1024, MaxEntries: 64, BlockSize: 16})
	require.NoError(t, err)
	return NewCachedFileSystem(inner, c)
}

func TestCachedFileSystemReadsAlignedBlocks(t *testing.T) {
	ctx := context.Background()
	mem := newMemFS("mem")
	mem.put("/f", sequentialBytes(100))
	fs := newCachedFS(t, mem)
	assert.Equal(t, "mem", fs.Name())

	fh, err := fs.Open(ctx, "/f")
	require.NoError(t, err)
	size, err := fs.GetFileSize(ctx, fh)
	require.NoError(t, err)
	assert.Equal(t, int64(100), size)

	buf := make([]byte, 20)
	n, err := fs.Read(ctx, fh, buf, 10)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, sequentialBytes(30)[10:], buf)
	assert.Equal(t, int64(2), mem.reads.Load(), "blocks 0 and 16 fetched")

	n, err = fs.Read(ctx, fh, buf, 12)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, sequentialBytes(32)[12:], buf)
	assert.Equal(t, int64(2), mem.reads.Load(), "served from cache")

	blocks := fs.Cache().CachedBlocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, cache.BlockDescriptor{Path: "/f", Offset: 0, Length: 16, Loaded: true}, blocks[0])
	assert.Equal(t, cache.BlockDescriptor{Path: "/f", Offset: 16, Length: 16, Loaded: true}, blocks[1])
}

func TestCachedFileSystemEndOfFile(t *testing.T) {
	ctx := context.Background()
	mem := newMemFS("mem")
	mem.put("/f", sequentialBytes(100))
	fs := newCachedFS(t, mem)

	fh, err := fs.Open(ctx, "/f")
	require.NoError(t, err)

	buf := make([]byte, 20)
	n, err := fs.Read(ctx, fh, buf, 90)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 10, n)
	assert.Equal(t, sequentialBytes(100)[90:], buf[:n])

	blocks := fs.Cache().CachedBlocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, uint64(4), blocks[1].Length, "tail block is short")

	n, err = fs.Read(ctx, fh, buf, 100)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 0, n)

	_, err = fs.Read(ctx, fh, buf, -1)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCachedFileSystemFetchFailure(t *testing.T) {
	ctx := context.Background()
	mem := newMemFS("mem")
	mem.put("/f", sequentialBytes(64))
	fs := newCachedFS(t, mem)

	fh, err := fs.Open(ctx, "/f")
	require.NoError(t, err)

	boom := errors.New("backend unavailable")
	mem.fail["/f"] = boom
	_, err = fs.Read(ctx, fh, make([]byte, 8), 0)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, fs.Cache().CachedBlocks(), "failed fetch leaves no loading block")

	delete(mem.fail, "/f")
	n, err := fs.Read(ctx, fh, make([]byte, 8), 0)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestCachedFileSystemForeignHandle(t *testing.T) {
	fs := newCachedFS(t, newMemFS("mem"))
	_, err := fs.Read(context.Background(), &memHandle{path: "/f"}, make([]byte, 1), 0)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCachedFileSystemPassThrough(t *testing.T) {
	ctx := context.Background()
	mem := newMemFS("mem")
	mem.put("/d/a", []byte("a"))
	mem.put("/d/b", []byte("bb"))
	fs := newCachedFS(t, mem)

	entries, err := fs.List(ctx, "/d")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	matches, err := fs.Glob(ctx, "/d/*")
	require.NoError(t, err)
	assert.Equal(t, []string{"/d/a", "/d/b"}, matches)

	_, err = fs.Open(ctx, "/missing")
	assert.Error(t, err)
}
