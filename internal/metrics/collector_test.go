package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStats map[string]AggregateSnapshot

func (f fakeStats) Snapshots() map[string]AggregateSnapshot { return f }

type fakeAccess struct{ hits, misses, partial uint64 }

func (f fakeAccess) AccessCounts() (uint64, uint64, uint64) { return f.hits, f.misses, f.partial }

type fakeUsage struct {
	bytes   int64
	entries int
}

func (f fakeUsage) Usage() (int64, int) { return f.bytes, f.entries }

func TestNewCollector(t *testing.T) {
	t.Parallel()

	t.Run("with nil config uses defaults", func(t *testing.T) {
		c, err := NewCollector(nil, nil, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "observefs", c.config.Namespace)
		assert.NotNil(t, c.Registry())
	})

	t.Run("with disabled config", func(t *testing.T) {
		c, err := NewCollector(&Config{Enabled: false}, nil, nil, nil)
		require.NoError(t, err)
		assert.Nil(t, c.Registry())

		rec := httptest.NewRecorder()
		c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCollectorCacheMetrics(t *testing.T) {
	t.Parallel()

	c, err := NewCollector(nil, nil, fakeAccess{hits: 3, misses: 1, partial: 2}, fakeUsage{bytes: 4096, entries: 2})
	require.NoError(t, err)

	expected := `
# HELP observefs_cache_access_total Read requests classified against the block cache
# TYPE observefs_cache_access_total counter
observefs_cache_access_total{result="hit"} 3
observefs_cache_access_total{result="miss"} 1
observefs_cache_access_total{result="partial_hit"} 2
`
	assert.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "observefs_cache_access_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "observefs_cache_size_bytes"))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "observefs_cache_entries"))
}

func TestCollectorOperationMetrics(t *testing.T) {
	t.Parallel()

	clock := newStepClock(3 * time.Millisecond)
	a := NewAggregator(Options{Clock: clock.Now})
	a.RecordOperationStartWithSize(OpRead, "s3://bucket/key", 2048).End()
	a.RecordOperationStart(OpOpen, "/local").End()

	c, err := NewCollector(nil, fakeStats{"observability-s3": a.Snapshot()}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, testutil.CollectAndCount(c, "observefs_operation_latency_milliseconds"))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "observefs_bucket_operation_latency_milliseconds"))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "observefs_operation_request_size_bytes"))

	families, err := c.Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() != "observefs_operation_latency_milliseconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			assert.Equal(t, uint64(1), m.GetSummary().GetSampleCount())
			assert.InDelta(t, 3.0, m.GetSummary().GetSampleSum(), 1e-9)
			found = true
		}
	}
	assert.True(t, found)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `filesystem="observability-s3"`)
}

func TestCumulativeBuckets(t *testing.T) {
	t.Parallel()

	h := NewHistogram(0, 8, 8)
	for _, v := range []float64{0.5, 1.5, 3.5, 7.5, 100} {
		h.Add(v)
	}

	got := cumulativeBuckets(h.Snapshot(), 4)
	assert.Equal(t, map[float64]uint64{4: 3, 8: 4}, got)
}
