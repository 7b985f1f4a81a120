/*
Package adapter wires the components of an observefs session together.

An Adapter owns the storage backend, the block cache, the access classifier,
the observed filesystem with its registry, the Prometheus collector and the
admin server. Nothing is global: each session builds its own set.

	┌─────────────────────────────────────────────┐
	│        ObservedFileSystem                   │ ← latency, request size,
	│        (observability-<backend>)            │   access classification
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│        CachedFileSystem + BlockCache        │ ← snapshot source for
	└─────────────────────────────────────────────┘   the classifier
	                      │
	┌─────────────────────────────────────────────┐
	│   S3FileSystem (s3://, s3a://)              │
	│   LocalFileSystem (file://, plain paths)    │
	└─────────────────────────────────────────────┘

# Usage

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	a, err := adapter.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Stop(context.Background())

	fs := a.FileSystem()
	fh, err := fs.Open(ctx, a.Resolve("events/2024.parquet"))

Start checks that the configured bucket is reachable before serving the
admin endpoints; Stop shuts the admin server down within the configured
shutdown timeout.
*/
package adapter
