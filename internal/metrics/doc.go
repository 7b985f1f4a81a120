/*
Package metrics records latency and request size distributions of filesystem
operations in bounded memory and exports them as text reports and
Prometheus metrics.

# Architecture

	┌──────────────┐
	│  Aggregator  │  ← one per observed filesystem
	└──────┬───────┘
	       │
	   ┌───┴──────────────────────┐
	   │                          │
	┌──▼─────────────────┐  ┌─────▼──────────────────┐
	│ OperationCollector │  │ OperationCollector     │
	│ (overall)          │  │ (per storage bucket)   │
	└──┬─────────────────┘  └────────────────────────┘
	   │ per IoOperation
	   ├── Histogram          latency, fixed range
	   ├── QuantileEstimator  p50/p75/p90/p95/p99
	   └── Histogram          request size

# Quantiles

QuantileEstimator keeps raw samples in a QuantileLite and answers exact,
linearly interpolated quantiles until DefaultStreamingThreshold samples have
been seen. It then seeds one P2Quantile per tracked percentile with those
samples and continues in constant memory.

# Recording Operations

Start a guard before the I/O and defer its End:

	defer agg.RecordOperationStart(metrics.OpRead, path).End()

or wrap the call:

	err := agg.Measure(metrics.OpList, dir, func() error {
		entries, err = fs.List(ctx, dir)
		return err
	})

Paths of the form s3://bucket/key or gs://bucket/key are additionally
recorded under their bucket.

# Prometheus Metrics

Collector reads the aggregators at scrape time:

  - observefs_operation_latency_milliseconds{filesystem,operation} (summary)
  - observefs_bucket_operation_latency_milliseconds{filesystem,bucket,operation} (summary)
  - observefs_operation_request_size_bytes{filesystem,operation} (histogram)
  - observefs_cache_access_total{result} (counter)
  - observefs_cache_size_bytes, observefs_cache_entries (gauges)

# Thread Safety

Aggregator, OperationCollector, QuantileEstimator and Collector are safe for
concurrent use. Histogram, QuantileLite and P2Quantile are not and rely on
their owner for locking.
*/
package metrics
