package metrics

import (
	"fmt"
	"math"
	"strings"
)

// Histogram counts samples of one metric in fixed-width buckets over
// [min, max]. Samples outside the range are clamped into the first or last
// bucket and also tallied as outliers. Histogram is not safe for concurrent
// use; OperationCollector serializes access to the histograms it owns.
type Histogram struct {
	min         float64
	max         float64
	bucketWidth float64
	buckets     []uint64

	count      uint64
	sum        float64
	belowRange uint64
	aboveRange uint64

	item string
	unit string
}

// HistogramSnapshot is a point-in-time copy of a histogram's state.
type HistogramSnapshot struct {
	Min        float64  `json:"min"`
	Max        float64  `json:"max"`
	Buckets    []uint64 `json:"buckets"`
	Count      uint64   `json:"count"`
	Sum        float64  `json:"sum"`
	BelowRange uint64   `json:"below_range"`
	AboveRange uint64   `json:"above_range"`
}

// NewHistogram creates a histogram over [min, max] with the given number of
// equal-width buckets. A degenerate range or bucket count is widened to a
// single bucket over [min, min+1].
func NewHistogram(min, max float64, buckets int) *Histogram {
	if buckets < 1 || !(max > min) {
		buckets = 1
		max = min + 1
	}
	return &Histogram{
		min:         min,
		max:         max,
		bucketWidth: (max - min) / float64(buckets),
		buckets:     make([]uint64, buckets),
	}
}

// SetItem sets the metric name and unit used by Format.
func (h *Histogram) SetItem(item, unit string) {
	h.item = item
	h.unit = unit
}

// Add records one sample.
func (h *Histogram) Add(value float64) {
	h.buckets[h.bucketIndex(value)]++
	h.count++
	if !math.IsNaN(value) {
		h.sum += value
	}
}

func (h *Histogram) bucketIndex(value float64) int {
	switch {
	case math.IsNaN(value):
		return 0
	case value < h.min:
		h.belowRange++
		return 0
	case value >= h.max:
		if value > h.max {
			h.aboveRange++
		}
		return len(h.buckets) - 1
	}

	idx := int((value - h.min) / h.bucketWidth)
	if idx >= len(h.buckets) {
		idx = len(h.buckets) - 1
	}
	return idx
}

// Count returns the number of samples recorded.
func (h *Histogram) Count() uint64 {
	return h.count
}

// Sum returns the sum of all finite samples recorded.
func (h *Histogram) Sum() float64 {
	return h.sum
}

// Outliers returns how many samples fell below min and above max.
func (h *Histogram) Outliers() (below, above uint64) {
	return h.belowRange, h.aboveRange
}

// BucketCount returns the number of buckets.
func (h *Histogram) BucketCount() int {
	return len(h.buckets)
}

// BucketBounds returns the [lower, upper) bounds of bucket i.
func (h *Histogram) BucketBounds(i int) (lower, upper float64) {
	lower = h.min + float64(i)*h.bucketWidth
	upper = lower + h.bucketWidth
	if i == len(h.buckets)-1 {
		upper = h.max
	}
	return lower, upper
}

// Buckets returns a copy of the per-bucket counts.
func (h *Histogram) Buckets() []uint64 {
	out := make([]uint64, len(h.buckets))
	copy(out, h.buckets)
	return out
}

// Snapshot returns a copy of the histogram state.
func (h *Histogram) Snapshot() HistogramSnapshot {
	return HistogramSnapshot{
		Min:        h.min,
		Max:        h.max,
		Buckets:    h.Buckets(),
		Count:      h.count,
		Sum:        h.sum,
		BelowRange: h.belowRange,
		AboveRange: h.aboveRange,
	}
}

// Format renders the non-empty buckets on a single line. It returns an empty
// string when no sample has been recorded.
func (h *Histogram) Format() string {
	if h.count == 0 {
		return ""
	}

	var sb strings.Builder
	if h.item != "" {
		sb.WriteString(h.item)
		if h.unit != "" {
			fmt.Fprintf(&sb, " (%s)", h.unit)
		}
		sb.WriteString(" ")
	}
	fmt.Fprintf(&sb, "range [%.2f, %.2f], %d buckets, %d samples:", h.min, h.max, len(h.buckets), h.count)

	for i, n := range h.buckets {
		if n == 0 {
			continue
		}
		lower, upper := h.BucketBounds(i)
		fmt.Fprintf(&sb, " [%.2f, %.2f): %d", lower, upper, n)
	}

	if h.belowRange > 0 || h.aboveRange > 0 {
		fmt.Fprintf(&sb, " (outliers below: %d, above: %d)", h.belowRange, h.aboveRange)
	}
	return sb.String()
}
