package filesystem

import (
	"context"
	"errors"
	"io"

	"github.com/observefs/observefs/internal/cache"
)

// CachedFileSystem serves reads from aligned blocks held in a BlockCache,
// fetching missing blocks from the wrapped filesystem.
type CachedFileSystem struct {
	inner FileSystem
	cache *cache.BlockCache
}

type cachedHandle struct {
	inner FileHandle
	size  int64
}

func (h *cachedHandle) Path() string { return h.inner.Path() }
func (h *cachedHandle) Close() error { return h.inner.Close() }

// NewCachedFileSystem wraps inner with c.
func NewCachedFileSystem(inner FileSystem, c *cache.BlockCache) *CachedFileSystem {
	return &CachedFileSystem{inner: inner, cache: c}
}

// Name reports the wrapped filesystem's name.
func (c *CachedFileSystem) Name() string { return c.inner.Name() }

// Cache returns the block cache.
func (c *CachedFileSystem) Cache() *cache.BlockCache { return c.cache }

// Inner returns the wrapped filesystem.
func (c *CachedFileSystem) Inner() FileSystem { return c.inner }

func (c *CachedFileSystem) Open(ctx context.Context, path string) (FileHandle, error) {
	h, err := c.inner.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	size, err := c.inner.GetFileSize(ctx, h)
	if err != nil {
		h.Close()
		return nil, err
	}
	return &cachedHandle{inner: h, size: size}, nil
}

func (c *CachedFileSystem) handle(op string, fh FileHandle) (*cachedHandle, error) {
	h, ok := fh.(*cachedHandle)
	if !ok || h == nil {
		return nil, opError(op, handlePath(fh), ErrInvalid)
	}
	return h, nil
}

func (c *CachedFileSystem) Read(ctx context.Context, fh FileHandle, buf []byte, offset int64) (int, error) {
	h, err := c.handle("read", fh)
	if err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, opError("read", h.Path(), ErrInvalid)
	}
	if offset >= h.size {
		if len(buf) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}

	end := offset + int64(len(buf))
	if end > h.size {
		end = h.size
	}

	bs := c.cache.BlockSize()
	n := 0
	for start := offset / bs * bs; start < end; start += bs {
		length := bs
		if start+length > h.size {
			length = h.size - start
		}
		block, err := c.block(ctx, h, start, length)
		if err != nil {
			return n, err
		}

		from := max(offset, start)
		to := min(end, start+int64(len(block)))
		if to > from {
			n += copy(buf[from-offset:], block[from-start:to-start])
		}
		if int64(len(block)) < length {
			break
		}
	}

	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

// block returns the cached block at start, fetching it when absent. The
// block is reported as loading while the fetch is in flight.
func (c *CachedFileSystem) block(ctx context.Context, h *cachedHandle, start, length int64) ([]byte, error) {
	path := h.Path()
	if data, ok := c.cache.Get(path, start); ok && int64(len(data)) >= length {
		return data, nil
	}

	c.cache.MarkLoading(path, start, length)
	data := make([]byte, length)
	n, err := c.inner.Read(ctx, h.inner, data, start)
	if err != nil && !errors.Is(err, io.EOF) {
		c.cache.Forget(path, start)
		return nil, err
	}
	if n == 0 {
		c.cache.Forget(path, start)
		return nil, nil
	}

	data = data[:n]
	c.cache.Put(path, start, data)
	return data, nil
}

func (c *CachedFileSystem) GetFileSize(ctx context.Context, fh FileHandle) (int64, error) {
	h, err := c.handle("stat", fh)
	if err != nil {
		return 0, err
	}
	return h.size, nil
}

func (c *CachedFileSystem) List(ctx context.Context, dir string) ([]DirEntry, error) {
	return c.inner.List(ctx, dir)
}

func (c *CachedFileSystem) Glob(ctx context.Context, pattern string) ([]string, error) {
	return c.inner.Glob(ctx, pattern)
}
