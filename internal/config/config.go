package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/observefs/observefs/internal/storage/s3"
	obserrors "github.com/observefs/observefs/pkg/errors"
	"github.com/observefs/observefs/pkg/utils"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "OBSERVEFS_"

// Configuration represents the complete application configuration
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Storage    StorageConfig    `yaml:"storage"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Cache      CacheConfig      `yaml:"cache"`
	Server     ServerConfig     `yaml:"server"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"`
}

// StorageConfig selects and configures the observed storage backend.
type StorageConfig struct {
	// URI is s3://bucket[/prefix], file:///dir or a plain directory.
	URI string    `yaml:"uri"`
	S3  s3.Config `yaml:"s3"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled           bool              `yaml:"enabled"`
	Namespace         string            `yaml:"namespace"`
	QuantileThreshold int               `yaml:"quantile_threshold"`
	SizeBucketStride  int               `yaml:"size_bucket_stride"`
	Labels            map[string]string `yaml:"labels"`
}

// ClassifierConfig controls cache access classification.
type ClassifierConfig struct {
	Enabled                bool   `yaml:"enabled"`
	LargeSnapshotThreshold int    `yaml:"large_snapshot_threshold"`
	SmallRefreshInterval   uint64 `yaml:"small_refresh_interval"`
	LargeRefreshInterval   uint64 `yaml:"large_refresh_interval"`
}

// CacheConfig represents block cache configuration. Sizes are human
// readable, e.g. "256MB".
type CacheConfig struct {
	MaxSize    string        `yaml:"max_size"`
	MaxEntries int           `yaml:"max_entries"`
	BlockSize  string        `yaml:"block_size"`
	TTL        time.Duration `yaml:"ttl"`
}

// ServerConfig represents the admin HTTP server settings.
type ServerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel: "info",
		},
		Storage: StorageConfig{
			URI: ".",
			S3:  *s3.DefaultConfig(),
		},
		Metrics: MetricsConfig{
			Enabled:           true,
			Namespace:         "observefs",
			QuantileThreshold: 512,
			SizeBucketStride:  16,
		},
		Classifier: ClassifierConfig{
			Enabled:                true,
			LargeSnapshotThreshold: 64,
			SmallRefreshInterval:   4,
			LargeRefreshInterval:   32,
		},
		Cache: CacheConfig{
			MaxSize:    "256MB",
			MaxEntries: 4096,
			BlockSize:  "1MB",
			TTL:        5 * time.Minute,
		},
		Server: ServerConfig{
			Enabled:         true,
			Address:         ":9464",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load builds a configuration from the defaults, the optional file and the
// environment, in that order of precedence, and validates it.
func Load(filename string) (*Configuration, error) {
	cfg := NewDefault()
	if filename != "" {
		if err := cfg.LoadFromFile(filename); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return obserrors.NewError(obserrors.ErrCodeConfigLoad, "failed to read config file").
			WithDetail("file", filename).
			WithCause(err)
	}

	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return obserrors.NewError(obserrors.ErrCodeConfigLoad, "failed to parse config file").
			WithDetail("file", filename).
			WithCause(err)
	}

	return nil
}

// envReader collects parse failures of OBSERVEFS_* variables.
type envReader struct {
	errs *multierror.Error
}

func (r *envReader) lookup(name string) (string, bool) {
	val, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || strings.TrimSpace(val) == "" {
		return "", false
	}
	return strings.TrimSpace(val), true
}

func (r *envReader) fail(name, val string, err error) {
	r.errs = multierror.Append(r.errs, fmt.Errorf("%s%s=%q: %w", EnvPrefix, name, val, err))
}

func (r *envReader) str(name string, dst *string) {
	if val, ok := r.lookup(name); ok {
		*dst = val
	}
}

func (r *envReader) integer(name string, dst *int) {
	if val, ok := r.lookup(name); ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			r.fail(name, val, err)
			return
		}
		*dst = n
	}
}

func (r *envReader) boolean(name string, dst *bool) {
	if val, ok := r.lookup(name); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			r.fail(name, val, err)
			return
		}
		*dst = b
	}
}

func (r *envReader) duration(name string, dst *time.Duration) {
	if val, ok := r.lookup(name); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			r.fail(name, val, err)
			return
		}
		*dst = d
	}
}

// LoadFromEnv loads configuration from OBSERVEFS_* environment variables.
// Malformed values are reported together and leave their fields unchanged.
func (c *Configuration) LoadFromEnv() error {
	r := &envReader{}

	r.str("LOG_LEVEL", &c.Global.LogLevel)

	r.str("STORAGE_URI", &c.Storage.URI)
	r.str("S3_REGION", &c.Storage.S3.Region)
	r.str("S3_ENDPOINT", &c.Storage.S3.Endpoint)
	r.str("S3_ACCESS_KEY_ID", &c.Storage.S3.AccessKeyID)
	r.str("S3_SECRET_ACCESS_KEY", &c.Storage.S3.SecretAccessKey)
	r.str("S3_SESSION_TOKEN", &c.Storage.S3.SessionToken)
	r.boolean("S3_FORCE_PATH_STYLE", &c.Storage.S3.ForcePathStyle)
	r.integer("S3_MAX_RETRIES", &c.Storage.S3.MaxRetries)
	r.duration("S3_REQUEST_TIMEOUT", &c.Storage.S3.RequestTimeout)
	r.boolean("S3_CIRCUIT_BREAKER", &c.Storage.S3.CircuitBreaker.Enabled)

	r.boolean("METRICS_ENABLED", &c.Metrics.Enabled)
	r.str("METRICS_NAMESPACE", &c.Metrics.Namespace)
	r.integer("QUANTILE_THRESHOLD", &c.Metrics.QuantileThreshold)

	r.boolean("CLASSIFIER_ENABLED", &c.Classifier.Enabled)

	r.str("CACHE_SIZE", &c.Cache.MaxSize)
	r.integer("CACHE_MAX_ENTRIES", &c.Cache.MaxEntries)
	r.str("CACHE_BLOCK_SIZE", &c.Cache.BlockSize)
	r.duration("CACHE_TTL", &c.Cache.TTL)

	r.boolean("SERVER_ENABLED", &c.Server.Enabled)
	r.str("SERVER_ADDRESS", &c.Server.Address)

	if err := r.errs.ErrorOrNil(); err != nil {
		return obserrors.NewError(obserrors.ErrCodeConfigLoad, "invalid environment overrides").WithCause(err)
	}
	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return obserrors.NewError(obserrors.ErrCodeConfigSave, "failed to marshal config").WithCause(err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return obserrors.NewError(obserrors.ErrCodeConfigSave, "failed to create config directory").WithCause(err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return obserrors.NewError(obserrors.ErrCodeConfigSave, "failed to write config file").WithCause(err)
	}

	return nil
}

// LogLevel returns the parsed global log level.
func (c *Configuration) LogLevel() (logrus.Level, error) {
	return logrus.ParseLevel(c.Global.LogLevel)
}

// CacheMaxBytes returns Cache.MaxSize in bytes.
func (c *Configuration) CacheMaxBytes() (int64, error) {
	return utils.ParseBytes(c.Cache.MaxSize)
}

// CacheBlockBytes returns Cache.BlockSize in bytes.
func (c *Configuration) CacheBlockBytes() (int64, error) {
	return utils.ParseBytes(c.Cache.BlockSize)
}

// Validate checks every section and reports all problems at once.
func (c *Configuration) Validate() error {
	var errs *multierror.Error

	if _, err := c.LogLevel(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("invalid log_level: %s", c.Global.LogLevel))
	}

	if c.Storage.URI == "" {
		errs = multierror.Append(errs, fmt.Errorf("storage uri must not be empty"))
	}
	if c.Storage.S3.MaxRetries < 0 {
		errs = multierror.Append(errs, fmt.Errorf("s3 max_retries must not be negative"))
	}

	if c.Metrics.Namespace == "" {
		errs = multierror.Append(errs, fmt.Errorf("metrics namespace must not be empty"))
	}
	if c.Metrics.QuantileThreshold <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("quantile_threshold must be greater than 0"))
	}
	if c.Metrics.SizeBucketStride <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("size_bucket_stride must be greater than 0"))
	}

	if c.Classifier.LargeSnapshotThreshold < 0 {
		errs = multierror.Append(errs, fmt.Errorf("large_snapshot_threshold must not be negative"))
	}
	if c.Classifier.SmallRefreshInterval == 0 || c.Classifier.LargeRefreshInterval == 0 {
		errs = multierror.Append(errs, fmt.Errorf("classifier refresh intervals must be greater than 0"))
	}

	maxSize, err := c.CacheMaxBytes()
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("cache max_size: %w", err))
	}
	blockSize, err := c.CacheBlockBytes()
	switch {
	case err != nil:
		errs = multierror.Append(errs, fmt.Errorf("cache block_size: %w", err))
	case blockSize <= 0:
		errs = multierror.Append(errs, fmt.Errorf("cache block_size must be greater than 0"))
	case maxSize > 0 && blockSize > maxSize:
		errs = multierror.Append(errs, fmt.Errorf("cache block_size %s exceeds max_size %s",
			c.Cache.BlockSize, c.Cache.MaxSize))
	}
	if c.Cache.MaxEntries <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("cache max_entries must be greater than 0"))
	}

	if c.Server.Enabled && c.Server.Address == "" {
		errs = multierror.Append(errs, fmt.Errorf("server address must not be empty"))
	}

	if err := errs.ErrorOrNil(); err != nil {
		return obserrors.NewError(obserrors.ErrCodeConfigValidation, "invalid configuration").WithCause(err)
	}
	return nil
}
