package filesystem

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	obserrors "github.com/observefs/observefs/pkg/errors"
)

const fileScheme = "file://"

// LocalFileSystem reads files from the host filesystem. Relative paths are
// resolved against its root directory.
type LocalFileSystem struct {
	root string
}

type localHandle struct {
	path string
	file *os.File
}

func (h *localHandle) Path() string { return h.path }
func (h *localHandle) Close() error { return h.file.Close() }

// NewLocalFileSystem creates a local filesystem rooted at root, which may be
// a plain path or a file:// URI. An empty root selects the working directory.
func NewLocalFileSystem(root string) (*LocalFileSystem, error) {
	root = strings.TrimPrefix(root, fileScheme)
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, localError("init", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, localError("init", abs, err)
	}
	if !info.IsDir() {
		return nil, obserrors.Newf(obserrors.ErrCodePathInvalid, "root %s is not a directory", abs).
			WithComponent("local-filesystem")
	}
	return &LocalFileSystem{root: abs}, nil
}

// Root returns the absolute root directory.
func (l *LocalFileSystem) Root() string { return l.root }

func (l *LocalFileSystem) Name() string { return "local" }

func (l *LocalFileSystem) resolve(path string) string {
	path = strings.TrimPrefix(path, fileScheme)
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.root, path)
	}
	return filepath.Clean(path)
}

func (l *LocalFileSystem) Open(ctx context.Context, path string) (FileHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resolved := l.resolve(path)
	f, err := os.Open(resolved)
	if err != nil {
		return nil, localError("open", resolved, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, localError("open", resolved, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, opError("open", resolved, ErrInvalid)
	}
	return &localHandle{path: resolved, file: f}, nil
}

func (l *LocalFileSystem) handle(op string, fh FileHandle) (*localHandle, error) {
	h, ok := fh.(*localHandle)
	if !ok || h == nil {
		return nil, opError(op, handlePath(fh), ErrInvalid)
	}
	return h, nil
}

func (l *LocalFileSystem) Read(ctx context.Context, fh FileHandle, buf []byte, offset int64) (int, error) {
	h, err := l.handle("read", fh)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := h.file.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, localError("read", h.path, err)
	}
	return n, err
}

func (l *LocalFileSystem) GetFileSize(ctx context.Context, fh FileHandle) (int64, error) {
	h, err := l.handle("stat", fh)
	if err != nil {
		return 0, err
	}
	info, err := h.file.Stat()
	if err != nil {
		return 0, localError("stat", h.path, err)
	}
	return info.Size(), nil
}

func (l *LocalFileSystem) List(ctx context.Context, dir string) ([]DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resolved := l.resolve(dir)
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, localError("list", resolved, err)
	}

	result := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		entry := DirEntry{
			Name:  e.Name(),
			Path:  filepath.Join(resolved, e.Name()),
			Type:  fileType(e.Type()),
			IsDir: e.IsDir(),
		}
		if info, err := e.Info(); err == nil {
			entry.Size = info.Size()
			entry.ModTime = info.ModTime()
		}
		result = append(result, entry)
	}
	return result, nil
}

func (l *LocalFileSystem) Glob(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resolved := l.resolve(pattern)
	matches, err := filepath.Glob(resolved)
	if err != nil {
		return nil, obserrors.Newf(obserrors.ErrCodePathInvalid, "bad glob pattern %q", pattern).
			WithComponent("local-filesystem").
			WithOperation("glob").
			WithCause(err)
	}
	sort.Strings(matches)
	return matches, nil
}

func fileType(mode fs.FileMode) FileType {
	switch {
	case mode.IsDir():
		return FileTypeDirectory
	case mode&fs.ModeSymlink != 0:
		return FileTypeSymlink
	case mode.IsRegular():
		return FileTypeRegular
	default:
		return FileTypeUnknown
	}
}

func localError(op, path string, err error) error {
	code := obserrors.ErrCodeOperationFailed
	switch {
	case errors.Is(err, fs.ErrNotExist):
		code = obserrors.ErrCodeFileNotFound
	case errors.Is(err, fs.ErrPermission):
		code = obserrors.ErrCodeAccessDenied
	}
	return obserrors.Newf(code, "%s %s", op, path).
		WithComponent("local-filesystem").
		WithOperation(op).
		WithCause(err)
}

func handlePath(fh FileHandle) string {
	if fh == nil {
		return ""
	}
	return fh.Path()
}
