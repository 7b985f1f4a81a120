package metrics

import (
	"math"
	"slices"
)

// QuantileLite answers exact quantile queries over buffered samples. Memory
// grows with the number of samples, so it is only used for small volumes.
type QuantileLite struct {
	samples []float64

	// sorted is a sorted copy of samples, rebuilt lazily after Add.
	sorted      []float64
	sortedValid bool
}

// NewQuantileLite creates an empty buffer.
func NewQuantileLite() *QuantileLite {
	return &QuantileLite{}
}

// Add appends a sample.
func (q *QuantileLite) Add(value float64) {
	q.samples = append(q.samples, value)
	q.sortedValid = false
}

// Count returns the number of buffered samples.
func (q *QuantileLite) Count() int {
	return len(q.samples)
}

// Quantile returns the linearly interpolated value at probability p, or 0
// when the buffer is empty.
func (q *QuantileLite) Quantile(p float64) float64 {
	n := len(q.samples)
	if n == 0 {
		return 0
	}
	if !q.sortedValid {
		q.sorted = append(q.sorted[:0], q.samples...)
		slices.Sort(q.sorted)
		q.sortedValid = true
	}

	p = math.Max(0, math.Min(1, p))
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return q.sorted[lo]
	}
	frac := pos - float64(lo)
	return q.sorted[lo] + frac*(q.sorted[hi]-q.sorted[lo])
}

// Extract drains the buffer and returns its samples in insertion order.
func (q *QuantileLite) Extract() []float64 {
	out := q.samples
	q.samples = nil
	q.sorted = nil
	q.sortedValid = false
	return out
}
