package filesystem

import (
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	obserrors "github.com/observefs/observefs/pkg/errors"
)

// memFS is an in-memory FileSystem keyed by full path.
type memFS struct {
	name  string
	mu    sync.Mutex
	files map[string][]byte
	fail  map[string]error
	reads atomic.Int64
}

type memHandle struct {
	path   string
	closed bool
}

func (h *memHandle) Path() string { return h.path }
func (h *memHandle) Close() error { h.closed = true; return nil }

func newMemFS(name string) *memFS {
	return &memFS{name: name, files: make(map[string][]byte), fail: make(map[string]error)}
}

func (m *memFS) put(p string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[p] = data
}

func (m *memFS) Name() string { return m.name }

func (m *memFS) Open(_ context.Context, p string) (FileHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[p]; !ok {
		return nil, obserrors.Newf(obserrors.ErrCodeFileNotFound, "open %s", p)
	}
	return &memHandle{path: p}, nil
}

func (m *memFS) Read(_ context.Context, fh FileHandle, buf []byte, offset int64) (int, error) {
	m.reads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[fh.Path()]; err != nil {
		return 0, err
	}
	data := m.files[fh.Path()]
	if offset >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(buf, data[offset:])
	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memFS) GetFileSize(_ context.Context, fh FileHandle) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.files[fh.Path()])), nil
}

func (m *memFS) List(_ context.Context, dir string) ([]DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(dir, "/") + "/"
	var entries []DirEntry
	for p, data := range m.files {
		if rest, ok := strings.CutPrefix(p, prefix); ok && !strings.Contains(rest, "/") {
			entries = append(entries, DirEntry{Name: rest, Path: p, Size: int64(len(data))})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (m *memFS) Glob(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matches []string
	for p := range m.files {
		if ok, _ := path.Match(pattern, p); ok {
			matches = append(matches, p)
		}
	}
	sort.Strings(matches)
	return matches, nil
}

func sequentialBytes(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}
