package filesystem

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	obserrors "github.com/observefs/observefs/pkg/errors"
)

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	a := NewObservedFileSystem(newMemFS("a"), nil, nil)
	b := NewObservedFileSystem(newMemFS("b"), nil, nil)

	require.NoError(t, r.Register(b))
	require.NoError(t, r.Register(a))
	assert.Equal(t, []string{"observability-a", "observability-b"}, r.Names())

	err := r.Register(NewObservedFileSystem(newMemFS("a"), nil, nil))
	assert.Equal(t, obserrors.ErrCodeFilesystemExists, obserrors.CodeOf(err))

	err = r.Register(NewObservedFileSystem(a, nil, nil))
	assert.Equal(t, obserrors.ErrCodeFilesystemExists, obserrors.CodeOf(err))
	assert.Contains(t, err.Error(), "cannot wrap observability filesystem")

	assert.Error(t, r.Register(nil))

	got, err := r.Get("observability-a")
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = r.Get("observability-c")
	assert.Equal(t, obserrors.ErrCodeFilesystemUnknown, obserrors.CodeOf(err))

	require.NoError(t, r.Unregister("observability-b"))
	assert.Equal(t, []string{"observability-a"}, r.Names())
	assert.Equal(t, obserrors.ErrCodeFilesystemUnknown, obserrors.CodeOf(r.Unregister("observability-b")))
}

func TestRegistryReport(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	mem := newMemFS("mem")
	mem.put("/f", []byte("data"))
	busy := NewObservedFileSystem(mem, nil, nil)
	idle := NewObservedFileSystem(newMemFS("idle"), nil, nil)
	require.NoError(t, r.Register(busy))
	require.NoError(t, r.Register(idle))

	assert.Equal(t,
		"Current filesystem: observability-mem\nNo interested IO operations issued.\n"+
			"Current filesystem: observability-idle\nNo interested IO operations issued.\n",
		r.Report())

	fh, err := busy.Open(ctx, "/f")
	require.NoError(t, err)
	_, err = busy.Read(ctx, fh, make([]byte, 4), 0)
	require.NoError(t, err)

	report := r.Report()
	assert.True(t, strings.HasPrefix(report, "Current filesystem: observability-mem\n\n\nopen operation histogram is"))
	assert.Contains(t, report, "read operation request size histogram is")
	assert.True(t, strings.HasSuffix(report,
		"\nCurrent filesystem: observability-idle\nNo interested IO operations issued.\n"))

	single, err := r.ReportFor("observability-idle")
	require.NoError(t, err)
	assert.Equal(t, "No interested IO operations issued.", single)
	_, err = r.ReportFor("observability-none")
	assert.Equal(t, obserrors.ErrCodeFilesystemUnknown, obserrors.CodeOf(err))

	snaps := r.Snapshots()
	require.Len(t, snaps, 2)
	assert.Len(t, snaps["observability-mem"].Overall, 2)
	assert.Empty(t, snaps["observability-idle"].Overall)

	r.ClearAll()
	assert.NotContains(t, r.Report(), "histogram")
	assert.Len(t, r.All(), 2)
}
