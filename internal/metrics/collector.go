package metrics

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config represents Prometheus export configuration.
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
	Labels    map[string]string `yaml:"labels"`

	// SizeBucketStride merges this many request size buckets into one
	// exported histogram bucket.
	SizeBucketStride int `yaml:"size_bucket_stride"`
}

// DefaultConfig returns the default export configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:          true,
		Namespace:        "observefs",
		SizeBucketStride: 16,
		Labels:           make(map[string]string),
	}
}

// StatsSource exposes the statistics of every observed filesystem, keyed by
// filesystem name.
type StatsSource interface {
	Snapshots() map[string]AggregateSnapshot
}

// AccessCounter exposes cache access classification counters.
type AccessCounter interface {
	AccessCounts() (hits, misses, partialHits uint64)
}

// CacheUsage exposes the occupancy of a block cache.
type CacheUsage interface {
	Usage() (bytes int64, entries int)
}

// Collector exports recorded statistics as Prometheus metrics. Values are
// read from the sources at scrape time.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	stats  StatsSource
	access AccessCounter
	usage  CacheUsage

	latencyDesc       *prometheus.Desc
	bucketLatencyDesc *prometheus.Desc
	sizeDesc          *prometheus.Desc
	cacheAccessDesc   *prometheus.Desc
	cacheBytesDesc    *prometheus.Desc
	cacheEntriesDesc  *prometheus.Desc
}

// NewCollector creates a collector and registers it on a fresh registry.
// access and usage may be nil.
func NewCollector(config *Config, stats StatsSource, access AccessCounter, usage CacheUsage) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.SizeBucketStride <= 0 {
		config.SizeBucketStride = 1
	}

	c := &Collector{
		config: config,
		stats:  stats,
		access: access,
		usage:  usage,
	}
	if !config.Enabled {
		return c, nil
	}

	c.initDescs()
	c.registry = prometheus.NewRegistry()
	if err := c.registry.Register(c); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return c, nil
}

func (c *Collector) initDescs() {
	name := func(n string) string {
		return prometheus.BuildFQName(c.config.Namespace, c.config.Subsystem, n)
	}
	labels := prometheus.Labels(c.config.Labels)

	c.latencyDesc = prometheus.NewDesc(name("operation_latency_milliseconds"),
		"Latency of filesystem operations in milliseconds",
		[]string{"filesystem", "operation"}, labels)
	c.bucketLatencyDesc = prometheus.NewDesc(name("bucket_operation_latency_milliseconds"),
		"Latency of filesystem operations per storage bucket in milliseconds",
		[]string{"filesystem", "bucket", "operation"}, labels)
	c.sizeDesc = prometheus.NewDesc(name("operation_request_size_bytes"),
		"Request size of filesystem operations in bytes",
		[]string{"filesystem", "operation"}, labels)
	c.cacheAccessDesc = prometheus.NewDesc(name("cache_access_total"),
		"Read requests classified against the block cache",
		[]string{"result"}, labels)
	c.cacheBytesDesc = prometheus.NewDesc(name("cache_size_bytes"),
		"Bytes resident in the block cache", nil, labels)
	c.cacheEntriesDesc = prometheus.NewDesc(name("cache_entries"),
		"Blocks resident in the block cache", nil, labels)
}

// Registry returns the Prometheus registry, or nil when export is disabled.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.latencyDesc
	ch <- c.bucketLatencyDesc
	ch <- c.sizeDesc
	ch <- c.cacheAccessDesc
	ch <- c.cacheBytesDesc
	ch <- c.cacheEntriesDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.stats != nil {
		snaps := c.stats.Snapshots()
		names := make([]string, 0, len(snaps))
		for name := range snaps {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, fs := range names {
			c.collectFilesystem(ch, fs, snaps[fs])
		}
	}

	if c.access != nil {
		hits, misses, partial := c.access.AccessCounts()
		ch <- prometheus.MustNewConstMetric(c.cacheAccessDesc, prometheus.CounterValue, float64(hits), "hit")
		ch <- prometheus.MustNewConstMetric(c.cacheAccessDesc, prometheus.CounterValue, float64(misses), "miss")
		ch <- prometheus.MustNewConstMetric(c.cacheAccessDesc, prometheus.CounterValue, float64(partial), "partial_hit")
	}

	if c.usage != nil {
		bytes, entries := c.usage.Usage()
		ch <- prometheus.MustNewConstMetric(c.cacheBytesDesc, prometheus.GaugeValue, float64(bytes))
		ch <- prometheus.MustNewConstMetric(c.cacheEntriesDesc, prometheus.GaugeValue, float64(entries))
	}
}

func (c *Collector) collectFilesystem(ch chan<- prometheus.Metric, fs string, snap AggregateSnapshot) {
	for _, op := range snap.Overall {
		if op.Latency.Count > 0 {
			ch <- c.summary(c.latencyDesc, op, fs, op.Name)
		}
		if op.Size.Count > 0 {
			ch <- c.sizeHistogram(op, fs)
		}
	}

	buckets := make([]string, 0, len(snap.Buckets))
	for b := range snap.Buckets {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)
	for _, b := range buckets {
		for _, op := range snap.Buckets[b] {
			if op.Latency.Count > 0 {
				ch <- c.summary(c.bucketLatencyDesc, op, fs, b, op.Name)
			}
		}
	}
}

func (c *Collector) summary(desc *prometheus.Desc, op OperationSnapshot, labelValues ...string) prometheus.Metric {
	q := op.Quantiles
	m, err := prometheus.NewConstSummary(desc, op.Latency.Count, op.Latency.Sum, map[float64]float64{
		0.50: q.P50,
		0.75: q.P75,
		0.90: q.P90,
		0.95: q.P95,
		0.99: q.P99,
	}, labelValues...)
	if err != nil {
		return prometheus.NewInvalidMetric(desc, err)
	}
	return m
}

func (c *Collector) sizeHistogram(op OperationSnapshot, fs string) prometheus.Metric {
	m, err := prometheus.NewConstHistogram(c.sizeDesc, op.Size.Count, op.Size.Sum,
		cumulativeBuckets(op.Size, c.config.SizeBucketStride), fs, op.Name)
	if err != nil {
		return prometheus.NewInvalidMetric(c.sizeDesc, err)
	}
	return m
}

// cumulativeBuckets converts per-bucket counts into Prometheus cumulative
// buckets, merging stride adjacent buckets. Samples above the range only
// appear in the implicit +Inf bucket.
func cumulativeBuckets(h HistogramSnapshot, stride int) map[float64]uint64 {
	n := len(h.Buckets)
	if n == 0 {
		return nil
	}
	width := (h.Max - h.Min) / float64(n)
	out := make(map[float64]uint64, n/stride+1)

	var cum uint64
	for i, count := range h.Buckets {
		cum += count
		last := i == n-1
		if (i+1)%stride != 0 && !last {
			continue
		}
		upper := h.Min + float64(i+1)*width
		value := cum
		if last {
			upper = h.Max
			value -= h.AboveRange
		}
		out[upper] = value
	}
	return out
}
