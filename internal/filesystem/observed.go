package filesystem

import (
	"context"

	"github.com/observefs/observefs/internal/cache"
	"github.com/observefs/observefs/internal/metrics"
)

const observedPrefix = "observability-"

// ObservedFileSystem forwards every call to the wrapped filesystem and
// records its latency. Reads also record their size and, when a classifier
// is attached, whether the requested range was already cached.
type ObservedFileSystem struct {
	inner      FileSystem
	aggregator *metrics.Aggregator
	classifier *cache.Classifier
}

// NewObservedFileSystem wraps inner. A nil aggregator gets a default one;
// a nil classifier disables access classification.
func NewObservedFileSystem(inner FileSystem, aggregator *metrics.Aggregator, classifier *cache.Classifier) *ObservedFileSystem {
	if aggregator == nil {
		aggregator = metrics.NewAggregator(metrics.Options{})
	}
	return &ObservedFileSystem{
		inner:      inner,
		aggregator: aggregator,
		classifier: classifier,
	}
}

func (o *ObservedFileSystem) Name() string {
	return observedPrefix + o.inner.Name()
}

// Inner returns the wrapped filesystem.
func (o *ObservedFileSystem) Inner() FileSystem { return o.inner }

// Aggregator returns the statistics recorded for this filesystem.
func (o *ObservedFileSystem) Aggregator() *metrics.Aggregator { return o.aggregator }

// Classifier returns the attached classifier, if any.
func (o *ObservedFileSystem) Classifier() *cache.Classifier { return o.classifier }

// Report renders the recorded statistics, or "" when nothing was recorded.
func (o *ObservedFileSystem) Report() string {
	if !o.aggregator.HasData() {
		return ""
	}
	return o.aggregator.Report()
}

// Clear drops all recorded statistics.
func (o *ObservedFileSystem) Clear() {
	o.aggregator.Reset()
}

func (o *ObservedFileSystem) Open(ctx context.Context, path string) (FileHandle, error) {
	defer o.aggregator.RecordOperationStart(metrics.OpOpen, path).End()
	return o.inner.Open(ctx, path)
}

func (o *ObservedFileSystem) Read(ctx context.Context, fh FileHandle, buf []byte, offset int64) (int, error) {
	path := handlePath(fh)
	if o.classifier != nil && offset >= 0 {
		o.classifier.ClassifyAndRecord(path, uint64(offset), uint64(len(buf)))
	}
	defer o.aggregator.RecordOperationStartWithSize(metrics.OpRead, path, int64(len(buf))).End()
	return o.inner.Read(ctx, fh, buf, offset)
}

func (o *ObservedFileSystem) GetFileSize(ctx context.Context, fh FileHandle) (int64, error) {
	defer o.aggregator.RecordOperationStart(metrics.OpGetFileSize, handlePath(fh)).End()
	return o.inner.GetFileSize(ctx, fh)
}

func (o *ObservedFileSystem) List(ctx context.Context, dir string) ([]DirEntry, error) {
	defer o.aggregator.RecordOperationStart(metrics.OpList, dir).End()
	return o.inner.List(ctx, dir)
}

func (o *ObservedFileSystem) Glob(ctx context.Context, pattern string) ([]string, error) {
	defer o.aggregator.RecordOperationStart(metrics.OpGlob, pattern).End()
	return o.inner.Glob(ctx, pattern)
}
