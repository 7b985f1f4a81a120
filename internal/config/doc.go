/*
Package config provides configuration management for observefs.

Configuration is assembled from three sources, later sources winning:

	┌─────────────────────────────────────────────┐
	│        Environment Variables                │ ← Highest Priority
	│           (OBSERVEFS_*)                     │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration File                  │
	│            (YAML format)                    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	└─────────────────────────────────────────────┘

Load applies all three and validates the result:

	cfg, err := config.Load("/etc/observefs/config.yaml")

# Example

	global:
	  log_level: info

	storage:
	  uri: s3://analytics/events
	  s3:
	    region: us-west-2
	    max_retries: 3
	    circuit_breaker:
	      enabled: true
	      failure_threshold: 5
	      timeout: 30s

	metrics:
	  namespace: observefs
	  quantile_threshold: 512

	classifier:
	  enabled: true
	  large_snapshot_threshold: 64
	  small_refresh_interval: 4
	  large_refresh_interval: 32

	cache:
	  max_size: 256MB
	  max_entries: 4096
	  block_size: 1MB
	  ttl: 5m

	server:
	  enabled: true
	  address: ":9464"

Unknown keys in the file are rejected. Validate reports every problem it
finds in a single error.

# Environment Variables

	OBSERVEFS_LOG_LEVEL           global.log_level
	OBSERVEFS_STORAGE_URI         storage.uri
	OBSERVEFS_S3_REGION           storage.s3.region
	OBSERVEFS_S3_ENDPOINT         storage.s3.endpoint
	OBSERVEFS_S3_FORCE_PATH_STYLE storage.s3.force_path_style
	OBSERVEFS_S3_MAX_RETRIES      storage.s3.max_retries
	OBSERVEFS_S3_CIRCUIT_BREAKER  storage.s3.circuit_breaker.enabled
	OBSERVEFS_METRICS_ENABLED     metrics.enabled
	OBSERVEFS_QUANTILE_THRESHOLD  metrics.quantile_threshold
	OBSERVEFS_CLASSIFIER_ENABLED  classifier.enabled
	OBSERVEFS_CACHE_SIZE          cache.max_size
	OBSERVEFS_CACHE_BLOCK_SIZE    cache.block_size
	OBSERVEFS_CACHE_TTL           cache.ttl
	OBSERVEFS_SERVER_ADDRESS      server.address

S3 credentials may also be given as OBSERVEFS_S3_ACCESS_KEY_ID and
OBSERVEFS_S3_SECRET_ACCESS_KEY; otherwise the default AWS chain applies.
*/
package config
