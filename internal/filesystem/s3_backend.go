package filesystem

import (
	"context"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/observefs/observefs/internal/storage/s3"
	obserrors "github.com/observefs/observefs/pkg/errors"
)

// ObjectStore is the part of the S3 backend the filesystem adapter needs.
type ObjectStore interface {
	HeadObject(ctx context.Context, bucket, key string) (*s3.ObjectInfo, error)
	GetObjectRange(ctx context.Context, bucket, key string, offset, size int64) ([]byte, error)
	ListObjects(ctx context.Context, bucket, prefix, delimiter string) (*s3.ListResult, error)
}

// S3FileSystem adapts an object store to FileSystem over s3://bucket/key
// paths. Directories are key prefixes ending in "/".
type S3FileSystem struct {
	store ObjectStore
}

// S3FileHandle is an open object. The object size is captured at open time.
type S3FileHandle struct {
	path   string
	bucket string
	key    string
	info   *s3.ObjectInfo
}

func (h *S3FileHandle) Path() string         { return h.path }
func (h *S3FileHandle) Close() error         { return nil }
func (h *S3FileHandle) Bucket() string       { return h.bucket }
func (h *S3FileHandle) Key() string          { return h.key }
func (h *S3FileHandle) Size() int64          { return h.info.Size }
func (h *S3FileHandle) Info() *s3.ObjectInfo { return h.info }

// NewS3FileSystem creates a filesystem adapter around the S3 backend
func NewS3FileSystem(store ObjectStore) *S3FileSystem {
	return &S3FileSystem{store: store}
}

func (fs *S3FileSystem) Name() string { return "s3" }

func (fs *S3FileSystem) Open(ctx context.Context, p string) (FileHandle, error) {
	bucket, key, err := s3.ParseURI(p)
	if err != nil {
		return nil, invalidPath("open", p, err)
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return nil, opError("open", p, ErrInvalid)
	}

	info, err := fs.store.HeadObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return &S3FileHandle{
		path:   s3.FormatURI(bucket, key),
		bucket: bucket,
		key:    key,
		info:   info,
	}, nil
}

func (fs *S3FileSystem) handle(op string, fh FileHandle) (*S3FileHandle, error) {
	h, ok := fh.(*S3FileHandle)
	if !ok || h == nil {
		return nil, opError(op, handlePath(fh), ErrInvalid)
	}
	return h, nil
}

func (fs *S3FileSystem) Read(ctx context.Context, fh FileHandle, buf []byte, offset int64) (int, error) {
	h, err := fs.handle("read", fh)
	if err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, opError("read", h.path, ErrInvalid)
	}
	if offset >= h.info.Size {
		return 0, io.EOF
	}

	want := int64(len(buf))
	if remaining := h.info.Size - offset; want > remaining {
		want = remaining
	}
	if want == 0 {
		return 0, nil
	}

	data, err := fs.store.GetObjectRange(ctx, h.bucket, h.key, offset, want)
	if err != nil {
		return 0, err
	}
	n := copy(buf, data)
	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

func (fs *S3FileSystem) GetFileSize(ctx context.Context, fh FileHandle) (int64, error) {
	h, err := fs.handle("stat", fh)
	if err != nil {
		return 0, err
	}
	return h.info.Size, nil
}

func (fs *S3FileSystem) List(ctx context.Context, dir string) ([]DirEntry, error) {
	bucket, prefix, err := s3.ParseURI(dir)
	if err != nil {
		return nil, invalidPath("list", dir, err)
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	result, err := fs.store.ListObjects(ctx, bucket, prefix, "/")
	if err != nil {
		return nil, err
	}

	entries := make([]DirEntry, 0, len(result.Objects)+len(result.Prefixes))
	for _, p := range result.Prefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(p, prefix), "/")
		entries = append(entries, DirEntry{
			Name:  name,
			Path:  s3.FormatURI(bucket, p),
			Type:  FileTypeDirectory,
			IsDir: true,
		})
	}
	for _, obj := range result.Objects {
		// Zero-byte directory markers list as the prefix itself.
		if obj.Key == prefix {
			continue
		}
		entries = append(entries, DirEntry{
			Name:    strings.TrimPrefix(obj.Key, prefix),
			Path:    s3.FormatURI(bucket, obj.Key),
			Type:    FileTypeRegular,
			Size:    obj.Size,
			ModTime: obj.LastModified,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Glob lists every key under the literal prefix of pattern and keeps those
// matching it with path.Match semantics, where '*' does not cross '/'.
func (fs *S3FileSystem) Glob(ctx context.Context, pattern string) ([]string, error) {
	bucket, keyPattern, err := s3.ParseURI(pattern)
	if err != nil {
		return nil, invalidPath("glob", pattern, err)
	}
	if _, err := path.Match(keyPattern, ""); err != nil {
		return nil, invalidPath("glob", pattern, err)
	}

	prefix := keyPattern
	if i := strings.IndexAny(keyPattern, `*?[\`); i >= 0 {
		prefix = keyPattern[:i]
	}

	result, err := fs.store.ListObjects(ctx, bucket, prefix, "")
	if err != nil {
		return nil, err
	}

	var matches []string
	for _, obj := range result.Objects {
		if ok, _ := path.Match(keyPattern, obj.Key); ok {
			matches = append(matches, s3.FormatURI(bucket, obj.Key))
		}
	}
	sort.Strings(matches)
	return matches, nil
}

func invalidPath(op, p string, err error) error {
	return obserrors.Newf(obserrors.ErrCodePathInvalid, "%s: invalid s3 path %q", op, p).
		WithComponent("s3-filesystem").
		WithOperation(op).
		WithCause(err)
}
