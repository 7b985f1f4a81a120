package metrics

import (
	"strings"
	"sync"
	"time"
)

const (
	latencyItem = "latency"
	latencyUnit = "millisec"
	sizeItem    = "request_size"
	sizeUnit    = "bytes"
)

// Clock returns the current time. Durations are measured between two Clock
// readings, so the default time.Now is monotonic.
type Clock func() time.Time

type latencyStats struct {
	histogram *Histogram
	quantiles *QuantileEstimator
}

// OperationCollector records latency and request size distributions for
// every IoOperation. It is safe for concurrent use.
type OperationCollector struct {
	mu      sync.Mutex
	clock   Clock
	latency [ioOperationCount]latencyStats
	sizes   [ioOperationCount]*Histogram
}

// OperationSnapshot is a copy of one operation's recorded distributions.
type OperationSnapshot struct {
	Operation IoOperation       `json:"-"`
	Name      string            `json:"operation"`
	Latency   HistogramSnapshot `json:"latency"`
	Quantiles QuantileSnapshot  `json:"quantiles"`
	Size      HistogramSnapshot `json:"size"`
}

// NewOperationCollector creates a collector. A threshold <= 0 uses
// DefaultStreamingThreshold and a nil clock uses time.Now.
func NewOperationCollector(threshold int, clock Clock) *OperationCollector {
	if clock == nil {
		clock = time.Now
	}
	c := &OperationCollector{clock: clock}
	for _, op := range IoOperations() {
		h := op.Latency()
		hist := NewHistogram(h.MinMillis, h.MaxMillis, h.Buckets)
		hist.SetItem(latencyItem, latencyUnit)
		c.latency[op] = latencyStats{
			histogram: hist,
			quantiles: NewQuantileEstimator(latencyItem, latencyUnit, threshold),
		}

		size := NewHistogram(requestSizeMin, requestSizeMax, requestSizeBuckets)
		size.SetItem(sizeItem, sizeUnit)
		c.sizes[op] = size
	}
	return c
}

// LatencyGuard measures one operation. End records the elapsed time; it is
// meant to be deferred right after RecordOperationStart.
type LatencyGuard struct {
	collector *OperationCollector
	op        IoOperation
	start     time.Time
	ended     bool
}

// RecordOperationStart starts timing op.
func (c *OperationCollector) RecordOperationStart(op IoOperation) *LatencyGuard {
	return &LatencyGuard{collector: c, op: op, start: c.clock()}
}

// End records the latency once. Further calls and calls on a nil guard are
// no-ops.
func (g *LatencyGuard) End() {
	if g == nil || g.ended {
		return
	}
	g.ended = true
	g.collector.RecordLatency(g.op, g.collector.clock().Sub(g.start))
}

// Measure times fn and records its latency however fn returns.
func (c *OperationCollector) Measure(op IoOperation, fn func() error) error {
	defer c.RecordOperationStart(op).End()
	return fn()
}

// RecordLatency records an already measured latency for op.
func (c *OperationCollector) RecordLatency(op IoOperation, d time.Duration) {
	if !op.Valid() {
		return
	}
	ms := float64(d) / float64(time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.latency[op].histogram.Add(ms)
	c.latency[op].quantiles.Add(ms)
}

// RecordSize records the request size of op in bytes.
func (c *OperationCollector) RecordSize(op IoOperation, bytes int64) {
	if !op.Valid() {
		return
	}
	c.mu.Lock()
	c.sizes[op].Add(float64(bytes))
	c.mu.Unlock()
}

// HasData reports whether any latency or size has been recorded.
func (c *OperationCollector) HasData() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for op := range c.latency {
		if c.latency[op].histogram.Count() > 0 || c.sizes[op].Count() > 0 {
			return true
		}
	}
	return false
}

// Snapshot returns the state of every operation that has recorded samples.
func (c *OperationCollector) Snapshot() []OperationSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []OperationSnapshot
	for _, op := range IoOperations() {
		lat, size := c.latency[op], c.sizes[op]
		if lat.histogram.Count() == 0 && size.Count() == 0 {
			continue
		}
		out = append(out, OperationSnapshot{
			Operation: op,
			Name:      op.String(),
			Latency:   lat.histogram.Snapshot(),
			Quantiles: lat.quantiles.Snapshot(),
			Size:      size.Snapshot(),
		})
	}
	return out
}

// Format renders every operation with samples; operations without samples
// are omitted. The result is empty when nothing has been recorded.
func (c *OperationCollector) Format() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sb strings.Builder
	for _, op := range IoOperations() {
		lat := c.latency[op]
		if lat.histogram.Count() == 0 {
			continue
		}
		name := op.String()
		sb.WriteString("\n\n")
		sb.WriteString(name)
		sb.WriteString(" operation histogram is ")
		sb.WriteString(lat.histogram.Format())
		sb.WriteString("\n")
		sb.WriteString(name)
		sb.WriteString(" operation quantile is\n")
		sb.WriteString(lat.quantiles.Format())
	}

	for _, op := range IoOperations() {
		size := c.sizes[op]
		if size.Count() == 0 {
			continue
		}
		sb.WriteString("\n\n")
		sb.WriteString(op.String())
		sb.WriteString(" operation request size histogram is ")
		sb.WriteString(size.Format())
	}
	return sb.String()
}
