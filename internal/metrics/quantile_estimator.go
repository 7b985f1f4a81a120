package metrics

import (
	"fmt"
	"strings"
	"sync"
)

// DefaultStreamingThreshold is the buffered sample count at which a
// QuantileEstimator switches from exact to streaming estimation.
const DefaultStreamingThreshold = 512

// trackedQuantiles lists the percentiles every estimator reports.
var trackedQuantiles = [...]struct {
	pct  int
	prob float64
}{
	{50, 0.50},
	{75, 0.75},
	{90, 0.90},
	{95, 0.95},
	{99, 0.99},
}

// QuantileSnapshot holds the tracked percentiles at one point in time.
type QuantileSnapshot struct {
	Count uint64  `json:"count"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// QuantileEstimator reports p50/p75/p90/p95/p99 of a metric. It keeps exact
// samples until the streaming threshold is reached, then seeds one
// P2Quantile per percentile from those samples and drops them.
type QuantileEstimator struct {
	mu        sync.Mutex
	name      string
	unit      string
	threshold int
	count     uint64

	lite      *QuantileLite
	streaming []*P2Quantile
}

// NewQuantileEstimator creates an estimator. A threshold <= 0 selects
// DefaultStreamingThreshold.
func NewQuantileEstimator(name, unit string, threshold int) *QuantileEstimator {
	if threshold <= 0 {
		threshold = DefaultStreamingThreshold
	}
	return &QuantileEstimator{
		name:      name,
		unit:      unit,
		threshold: threshold,
		lite:      NewQuantileLite(),
	}
}

// Add records one sample.
func (e *QuantileEstimator) Add(value float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.count++
	if e.streaming != nil {
		for _, est := range e.streaming {
			est.Add(value)
		}
		return
	}

	e.lite.Add(value)
	if e.lite.Count() >= e.threshold {
		e.switchToStreaming()
	}
}

func (e *QuantileEstimator) switchToStreaming() {
	seed := e.lite.Extract()
	e.streaming = make([]*P2Quantile, len(trackedQuantiles))
	for i, tq := range trackedQuantiles {
		est := NewP2Quantile(tq.prob)
		est.BulkAdd(seed)
		e.streaming[i] = est
	}
	e.lite = nil
}

// Streaming reports whether the estimator has switched to P² estimation.
func (e *QuantileEstimator) Streaming() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streaming != nil
}

// Count returns the number of samples recorded.
func (e *QuantileEstimator) Count() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

func (e *QuantileEstimator) P50() float64 { return e.percentile(50) }
func (e *QuantileEstimator) P75() float64 { return e.percentile(75) }
func (e *QuantileEstimator) P90() float64 { return e.percentile(90) }
func (e *QuantileEstimator) P95() float64 { return e.percentile(95) }
func (e *QuantileEstimator) P99() float64 { return e.percentile(99) }

// percentile returns the estimate for a tracked percentile. Only P50..P99
// call it, so any other percentile is a programming error and panics.
func (e *QuantileEstimator) percentile(pct int) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, tq := range trackedQuantiles {
		if tq.pct == pct {
			return e.quantileAt(i)
		}
	}
	panic(fmt.Sprintf("metrics: percentile %d is not tracked", pct))
}

func (e *QuantileEstimator) quantileAt(i int) float64 {
	if e.streaming != nil {
		return e.streaming[i].Get()
	}
	return e.lite.Quantile(trackedQuantiles[i].prob)
}

// Snapshot returns all tracked percentiles under a single lock.
func (e *QuantileEstimator) Snapshot() QuantileSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return QuantileSnapshot{
		Count: e.count,
		P50:   e.quantileAt(0),
		P75:   e.quantileAt(1),
		P90:   e.quantileAt(2),
		P95:   e.quantileAt(3),
		P99:   e.quantileAt(4),
	}
}

// Format renders one "P<pct> <name> <value> <unit>" line per percentile.
func (e *QuantileEstimator) Format() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	lines := make([]string, len(trackedQuantiles))
	for i, tq := range trackedQuantiles {
		lines[i] = fmt.Sprintf("P%d %s %f %s", tq.pct, e.name, e.quantileAt(i), e.unit)
	}
	return strings.Join(lines, "\n")
}
