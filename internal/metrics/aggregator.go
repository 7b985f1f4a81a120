package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// BucketResolver derives a storage bucket name from a path. An empty result
// disables per-bucket tracking for that path.
type BucketResolver func(path string) string

// Options configures an Aggregator.
type Options struct {
	// QuantileThreshold is the exact-to-streaming switch point of every
	// quantile estimator. Zero selects DefaultStreamingThreshold.
	QuantileThreshold int
	Clock             Clock
	BucketResolver    BucketResolver
}

var objectStorageSchemes = []string{"s3://", "s3a://", "gs://", "gcs://"}

// ObjectStorageBucket returns the bucket component of an object storage URI
// such as s3://bucket/key, or "" for any other path.
func ObjectStorageBucket(path string) string {
	for _, scheme := range objectStorageSchemes {
		if !strings.HasPrefix(path, scheme) {
			continue
		}
		rest := path[len(scheme):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return rest[:i]
		}
		return rest
	}
	return ""
}

// Aggregator owns an overall OperationCollector and one collector per
// observed storage bucket.
type Aggregator struct {
	mu      sync.Mutex
	opts    Options
	overall *OperationCollector
	buckets map[string]*OperationCollector
}

// AggregateSnapshot is a copy of all recorded operation statistics.
type AggregateSnapshot struct {
	Overall []OperationSnapshot            `json:"overall"`
	Buckets map[string][]OperationSnapshot `json:"buckets,omitempty"`
}

// NewAggregator creates an empty aggregator.
func NewAggregator(opts Options) *Aggregator {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.BucketResolver == nil {
		opts.BucketResolver = ObjectStorageBucket
	}
	a := &Aggregator{opts: opts}
	a.resetLocked()
	return a
}

func (a *Aggregator) newCollector() *OperationCollector {
	return NewOperationCollector(a.opts.QuantileThreshold, a.opts.Clock)
}

func (a *Aggregator) resetLocked() {
	a.overall = a.newCollector()
	a.buckets = make(map[string]*OperationCollector)
}

// collectorsFor returns the overall collector and, when path names a bucket,
// that bucket's collector, creating it on first use.
func (a *Aggregator) collectorsFor(path string) (*OperationCollector, *OperationCollector) {
	bucket := a.opts.BucketResolver(path)

	a.mu.Lock()
	defer a.mu.Unlock()

	if bucket == "" {
		return a.overall, nil
	}
	bc, ok := a.buckets[bucket]
	if !ok {
		bc = a.newCollector()
		a.buckets[bucket] = bc
	}
	return a.overall, bc
}

// GuardGroup times one operation for the overall collector and, when the
// path names a bucket, for that bucket's collector. Both receive the same
// latency.
type GuardGroup struct {
	clock   Clock
	op      IoOperation
	start   time.Time
	overall *OperationCollector
	bucket  *OperationCollector
	ended   bool
}

// End records the latency once. Further calls and calls on a nil group are
// no-ops.
func (g *GuardGroup) End() {
	if g == nil || g.ended {
		return
	}
	g.ended = true
	elapsed := g.clock().Sub(g.start)
	g.overall.RecordLatency(g.op, elapsed)
	if g.bucket != nil {
		g.bucket.RecordLatency(g.op, elapsed)
	}
}

// RecordOperationStart starts timing op against path.
func (a *Aggregator) RecordOperationStart(op IoOperation, path string) *GuardGroup {
	overall, bucket := a.collectorsFor(path)
	return &GuardGroup{
		clock:   a.opts.Clock,
		op:      op,
		start:   a.opts.Clock(),
		overall: overall,
		bucket:  bucket,
	}
}

// RecordOperationStartWithSize starts timing op and records its request size.
func (a *Aggregator) RecordOperationStartWithSize(op IoOperation, path string, size int64) *GuardGroup {
	g := a.RecordOperationStart(op, path)
	g.overall.RecordSize(op, size)
	if g.bucket != nil {
		g.bucket.RecordSize(op, size)
	}
	return g
}

// Measure times fn as op against path.
func (a *Aggregator) Measure(op IoOperation, path string, fn func() error) error {
	defer a.RecordOperationStart(op, path).End()
	return fn()
}

// Report renders the overall statistics followed by a "Bucket: <name>"
// section for every bucket with data, in name order.
func (a *Aggregator) Report() string {
	a.mu.Lock()
	overall := a.overall
	names := make([]string, 0, len(a.buckets))
	for name := range a.buckets {
		names = append(names, name)
	}
	buckets := make(map[string]*OperationCollector, len(a.buckets))
	for name, c := range a.buckets {
		buckets[name] = c
	}
	a.mu.Unlock()
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(overall.Format())
	for _, name := range names {
		section := buckets[name].Format()
		if section == "" {
			continue
		}
		sb.WriteString("\n\nBucket: ")
		sb.WriteString(name)
		sb.WriteString(section)
	}
	return sb.String()
}

// HasData reports whether anything has been recorded since the last reset.
func (a *Aggregator) HasData() bool {
	a.mu.Lock()
	overall := a.overall
	a.mu.Unlock()
	return overall.HasData()
}

// Buckets returns the names of all observed buckets, sorted.
func (a *Aggregator) Buckets() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.buckets))
	for name := range a.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot copies the overall and per-bucket statistics.
func (a *Aggregator) Snapshot() AggregateSnapshot {
	a.mu.Lock()
	overall := a.overall
	buckets := make(map[string]*OperationCollector, len(a.buckets))
	for name, c := range a.buckets {
		buckets[name] = c
	}
	a.mu.Unlock()

	snap := AggregateSnapshot{Overall: overall.Snapshot()}
	for name, c := range buckets {
		ops := c.Snapshot()
		if len(ops) == 0 {
			continue
		}
		if snap.Buckets == nil {
			snap.Buckets = make(map[string][]OperationSnapshot)
		}
		snap.Buckets[name] = ops
	}
	return snap
}

// Reset discards all collectors. Guards started before the reset record
// into the discarded collectors.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
}
