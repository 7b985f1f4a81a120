package filesystem

import (
	"sort"
	"strings"
	"sync"

	"github.com/observefs/observefs/internal/metrics"
	obserrors "github.com/observefs/observefs/pkg/errors"
)

const noOperationsMessage = "No interested IO operations issued."

// Registry tracks the observed filesystems of a session in registration
// order.
type Registry struct {
	mu          sync.RWMutex
	filesystems []*ObservedFileSystem
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds fs. Observing an observed filesystem, or registering a
// second wrapper around a filesystem with the same name, is rejected.
func (r *Registry) Register(fs *ObservedFileSystem) error {
	if fs == nil {
		return obserrors.NewError(obserrors.ErrCodeInvalidConfig, "nil filesystem").
			WithComponent("registry")
	}
	if _, nested := fs.Inner().(*ObservedFileSystem); nested {
		return obserrors.Newf(obserrors.ErrCodeFilesystemExists,
			"cannot wrap observability filesystem %s", fs.Inner().Name()).
			WithComponent("registry").
			WithOperation("register")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.filesystems {
		if existing.Name() == fs.Name() {
			return obserrors.Newf(obserrors.ErrCodeFilesystemExists,
				"filesystem %s is already registered", fs.Inner().Name()).
				WithComponent("registry").
				WithOperation("register")
		}
	}
	r.filesystems = append(r.filesystems, fs)
	return nil
}

// Unregister removes the filesystem with the given name.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, fs := range r.filesystems {
		if fs.Name() == name {
			r.filesystems = append(r.filesystems[:i], r.filesystems[i+1:]...)
			return nil
		}
	}
	return unknownFilesystem(name)
}

// Get returns the filesystem with the given name.
func (r *Registry) Get(name string) (*ObservedFileSystem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, fs := range r.filesystems {
		if fs.Name() == name {
			return fs, nil
		}
	}
	return nil, unknownFilesystem(name)
}

// All returns the registered filesystems in registration order.
func (r *Registry) All() []*ObservedFileSystem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*ObservedFileSystem(nil), r.filesystems...)
}

// Names returns the registered names in lexical order.
func (r *Registry) Names() []string {
	all := r.All()
	names := make([]string, 0, len(all))
	for _, fs := range all {
		names = append(names, fs.Name())
	}
	sort.Strings(names)
	return names
}

// Report renders every filesystem's statistics, one section per filesystem
// in registration order.
func (r *Registry) Report() string {
	var sb strings.Builder
	for _, fs := range r.All() {
		sb.WriteString("Current filesystem: ")
		sb.WriteString(fs.Name())
		sb.WriteString("\n")
		if report := fs.Report(); report != "" {
			sb.WriteString(report)
		} else {
			sb.WriteString(noOperationsMessage)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// ReportFor renders the statistics of a single filesystem.
func (r *Registry) ReportFor(name string) (string, error) {
	fs, err := r.Get(name)
	if err != nil {
		return "", err
	}
	if report := fs.Report(); report != "" {
		return report, nil
	}
	return noOperationsMessage, nil
}

// ClearAll drops the statistics of every registered filesystem.
func (r *Registry) ClearAll() {
	for _, fs := range r.All() {
		fs.Clear()
	}
}

// Snapshots returns the statistics of every filesystem keyed by name.
func (r *Registry) Snapshots() map[string]metrics.AggregateSnapshot {
	all := r.All()
	snaps := make(map[string]metrics.AggregateSnapshot, len(all))
	for _, fs := range all {
		snaps[fs.Name()] = fs.Aggregator().Snapshot()
	}
	return snaps
}

func unknownFilesystem(name string) error {
	return obserrors.Newf(obserrors.ErrCodeFilesystemUnknown, "filesystem %s is not registered", name).
		WithComponent("registry")
}
