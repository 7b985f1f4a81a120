package adapter

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/observefs/observefs/internal/admin"
	"github.com/observefs/observefs/internal/cache"
	"github.com/observefs/observefs/internal/config"
	"github.com/observefs/observefs/internal/filesystem"
	"github.com/observefs/observefs/internal/metrics"
	"github.com/observefs/observefs/internal/storage/s3"
	obserrors "github.com/observefs/observefs/pkg/errors"
	"github.com/observefs/observefs/pkg/utils"
)

// Adapter owns every component of an observefs session.
type Adapter struct {
	config *config.Configuration
	log    logrus.FieldLogger

	storage    filesystem.FileSystem
	cache      *cache.BlockCache
	observed   *filesystem.ObservedFileSystem
	registry   *filesystem.Registry
	classifier *cache.Classifier
	collector  *metrics.Collector
	server     *admin.Server

	healthCheck func(ctx context.Context) error
}

// New validates cfg, connects the storage backend selected by the storage
// URI and builds the session around it.
func New(ctx context.Context, cfg *config.Configuration, log logrus.FieldLogger) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	storage, healthCheck, err := newStorage(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a, err := NewWithFileSystem(cfg, storage, log)
	if err != nil {
		return nil, err
	}
	a.healthCheck = healthCheck
	return a, nil
}

// NewWithFileSystem builds the session around an existing storage
// filesystem.
func NewWithFileSystem(cfg *config.Configuration, storage filesystem.FileSystem, log logrus.FieldLogger) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Adapter{
		config:  cfg,
		log:     log.WithField("component", "adapter"),
		storage: storage,
	}

	maxSize, _ := cfg.CacheMaxBytes()
	blockSize, _ := cfg.CacheBlockBytes()
	blocks, err := cache.NewBlockCache(&cache.CacheConfig{
		MaxSize:    maxSize,
		MaxEntries: cfg.Cache.MaxEntries,
		BlockSize:  blockSize,
		TTL:        cfg.Cache.TTL,
	})
	if err != nil {
		return nil, obserrors.NewError(obserrors.ErrCodeInvalidConfig, "failed to create block cache").
			WithComponent("adapter").
			WithCause(err)
	}
	a.cache = blocks

	a.classifier = cache.NewClassifier(blocks, cache.ClassifierConfig{
		LargeSnapshotThreshold: cfg.Classifier.LargeSnapshotThreshold,
		SmallRefreshInterval:   cfg.Classifier.SmallRefreshInterval,
		LargeRefreshInterval:   cfg.Classifier.LargeRefreshInterval,
	}, log)
	if !cfg.Classifier.Enabled {
		a.classifier.Disable()
	}

	aggregator := metrics.NewAggregator(metrics.Options{
		QuantileThreshold: cfg.Metrics.QuantileThreshold,
	})
	a.observed = filesystem.NewObservedFileSystem(
		filesystem.NewCachedFileSystem(storage, blocks), aggregator, a.classifier)

	a.registry = filesystem.NewRegistry()
	if err := a.registry.Register(a.observed); err != nil {
		return nil, err
	}

	a.collector, err = metrics.NewCollector(&metrics.Config{
		Enabled:          cfg.Metrics.Enabled,
		Namespace:        cfg.Metrics.Namespace,
		Labels:           cfg.Metrics.Labels,
		SizeBucketStride: cfg.Metrics.SizeBucketStride,
	}, a.registry, a.classifier, blocks)
	if err != nil {
		return nil, obserrors.NewError(obserrors.ErrCodeInternalError, "failed to create metrics collector").
			WithComponent("adapter").
			WithCause(err)
	}

	if cfg.Server.Enabled {
		sources := admin.Sources{
			Profiler: a.registry,
			Access:   a.classifier,
			Cache:    blocks,
		}
		if cfg.Metrics.Enabled {
			sources.Metrics = a.collector.Handler()
		}
		a.server = admin.NewServer(admin.ServerConfig{
			Address:      cfg.Server.Address,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		}, sources, log)
	}

	return a, nil
}

// newStorage selects the backend from the storage URI scheme.
func newStorage(ctx context.Context, cfg *config.Configuration, log logrus.FieldLogger) (filesystem.FileSystem, func(context.Context) error, error) {
	uri := cfg.Storage.URI

	switch {
	case s3.IsURI(uri):
		bucket, _, err := s3.ParseURI(uri)
		if err != nil {
			return nil, nil, err
		}
		backend, err := s3.NewBackend(ctx, &cfg.Storage.S3, log)
		if err != nil {
			return nil, nil, err
		}
		health := func(ctx context.Context) error { return backend.HealthCheck(ctx, bucket) }
		return filesystem.NewS3FileSystem(backend), health, nil

	case strings.HasPrefix(uri, "file://") || !strings.Contains(uri, "://"):
		local, err := filesystem.NewLocalFileSystem(uri)
		if err != nil {
			return nil, nil, err
		}
		return local, nil, nil

	default:
		scheme, _, _ := strings.Cut(uri, "://")
		return nil, nil, obserrors.Newf(obserrors.ErrCodeUnsupportedScheme,
			"unsupported storage scheme: %s (s3://, s3a://, file:// or a local path)", scheme).
			WithComponent("adapter")
	}
}

// Start checks storage connectivity and starts the admin server.
func (a *Adapter) Start(ctx context.Context) error {
	a.log.WithFields(logrus.Fields{
		"storage":    a.config.Storage.URI,
		"filesystem": a.observed.Name(),
		"cache_size": utils.FormatBytes(a.cache.Stats().Capacity),
		"block_size": utils.FormatBytes(a.cache.BlockSize()),
		"classifier": a.classifier.Enabled(),
	}).Info("Starting observefs session")

	if a.healthCheck != nil {
		if err := a.healthCheck(ctx); err != nil {
			return err
		}
	}

	if a.server != nil {
		if err := a.server.StartBackground(); err != nil {
			return err
		}
	}

	a.log.Info("observefs session started")
	return nil
}

// Stop shuts the admin server down.
func (a *Adapter) Stop(ctx context.Context) error {
	a.log.Info("Stopping observefs session")

	if a.server != nil {
		ctx, cancel := context.WithTimeout(ctx, a.config.Server.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			return obserrors.NewError(obserrors.ErrCodeOperationFailed, "admin server shutdown failed").
				WithComponent("adapter").
				WithCause(err)
		}
	}

	a.log.Info("observefs session stopped")
	return nil
}

// Resolve turns a path relative to the storage URI into one the session's
// filesystem accepts. Absolute paths and URIs pass through.
func (a *Adapter) Resolve(path string) string {
	if strings.Contains(path, "://") || !s3.IsURI(a.config.Storage.URI) {
		return path
	}
	return strings.TrimSuffix(a.config.Storage.URI, "/") + "/" + strings.TrimPrefix(path, "/")
}

// FileSystem returns the observed filesystem callers should read through.
func (a *Adapter) FileSystem() *filesystem.ObservedFileSystem { return a.observed }

// Registry returns the registry holding the session's observed filesystems.
func (a *Adapter) Registry() *filesystem.Registry { return a.registry }

// Classifier returns the cache access classifier.
func (a *Adapter) Classifier() *cache.Classifier { return a.classifier }

// Cache returns the block cache.
func (a *Adapter) Cache() *cache.BlockCache { return a.cache }

// Collector returns the Prometheus collector.
func (a *Adapter) Collector() *metrics.Collector { return a.collector }

// Server returns the admin server, or nil when it is disabled.
func (a *Adapter) Server() *admin.Server { return a.server }
