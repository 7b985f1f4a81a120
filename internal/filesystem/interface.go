// Package filesystem defines the read-side filesystem interface that every
// storage backend implements, and the wrappers that cache and observe it.
package filesystem

import (
	"context"
	"os"
	"time"
)

// FileSystem is the set of operations observefs instruments. Paths are
// backend specific: absolute local paths or s3://bucket/key URIs.
type FileSystem interface {
	// Name identifies the filesystem in reports and registries.
	Name() string

	Open(ctx context.Context, path string) (FileHandle, error)

	// Read fills buf from offset. Like io.ReaderAt it returns a non-nil
	// error whenever fewer than len(buf) bytes are read, io.EOF at the end
	// of the file.
	Read(ctx context.Context, fh FileHandle, buf []byte, offset int64) (int, error)
	GetFileSize(ctx context.Context, fh FileHandle) (int64, error)

	// List returns the direct children of dir.
	List(ctx context.Context, dir string) ([]DirEntry, error)

	// Glob returns the paths matching pattern in lexical order.
	Glob(ctx context.Context, pattern string) ([]string, error)
}

// FileHandle represents an open file returned by FileSystem.Open
type FileHandle interface {
	Path() string
	Close() error
}

// DirEntry represents a directory entry returned by List
type DirEntry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Type    FileType  `json:"type"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	IsDir   bool      `json:"is_dir"`
}

// FileType represents the type of a file system entry
type FileType uint8

const (
	FileTypeRegular FileType = iota
	FileTypeDirectory
	FileTypeSymlink
	FileTypeUnknown
)

func (t FileType) String() string {
	switch t {
	case FileTypeRegular:
		return "file"
	case FileTypeDirectory:
		return "directory"
	case FileTypeSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// FilesystemError records the operation and path that failed.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// Common error variables
var (
	ErrNotExist = os.ErrNotExist
	ErrInvalid  = os.ErrInvalid
)

func opError(op, path string, err error) error {
	return &FilesystemError{Op: op, Path: path, Err: err}
}
