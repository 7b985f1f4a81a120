package adapter

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/observefs/observefs/internal/config"
	"github.com/observefs/observefs/internal/filesystem"
	obserrors "github.com/observefs/observefs/pkg/errors"
)

func createTestConfig(t *testing.T) *config.Configuration {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.csv"), []byte(strings.Repeat("a", 100)), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.csv"), []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.NewDefault()
	cfg.Storage.URI = dir
	cfg.Cache.MaxSize = "4KB"
	cfg.Cache.BlockSize = "32B"
	cfg.Server.Address = "127.0.0.1:0"
	return cfg
}

func testLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func readAll(t *testing.T, a *Adapter, path string) {
	t.Helper()
	ctx := context.Background()
	fs := a.FileSystem()

	fh, err := fs.Open(ctx, a.Resolve(path))
	if err != nil {
		t.Fatalf("Open(%q) error = %v", path, err)
	}
	defer fh.Close()

	size, err := fs.GetFileSize(ctx, fh)
	if err != nil {
		t.Fatalf("GetFileSize(%q) error = %v", path, err)
	}
	buf := make([]byte, size)
	if _, err := fs.Read(ctx, fh, buf, 0); err != nil && err != io.EOF {
		t.Fatalf("Read(%q) error = %v", path, err)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("local directory", func(t *testing.T) {
		cfg := createTestConfig(t)
		a, err := New(ctx, cfg, testLogger())
		if err != nil {
			t.Fatalf("New() error = %v, want nil", err)
		}
		if got := a.FileSystem().Name(); got != "observability-local" {
			t.Errorf("FileSystem().Name() = %q, want %q", got, "observability-local")
		}
		if names := a.Registry().Names(); len(names) != 1 || names[0] != "observability-local" {
			t.Errorf("Registry().Names() = %v", names)
		}
		if !a.Classifier().Enabled() {
			t.Error("classifier should be enabled by default")
		}
		if a.Server() == nil {
			t.Error("admin server should be configured")
		}
		if a.Cache().BlockSize() != 32 {
			t.Errorf("Cache().BlockSize() = %d, want 32", a.Cache().BlockSize())
		}
	})

	t.Run("file URI", func(t *testing.T) {
		cfg := createTestConfig(t)
		cfg.Storage.URI = "file://" + cfg.Storage.URI
		if _, err := New(ctx, cfg, testLogger()); err != nil {
			t.Fatalf("New() error = %v, want nil", err)
		}
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		for _, uri := range []string{"azure://container", "https://bucket"} {
			cfg := createTestConfig(t)
			cfg.Storage.URI = uri
			_, err := New(ctx, cfg, testLogger())
			if code := obserrors.CodeOf(err); code != obserrors.ErrCodeUnsupportedScheme {
				t.Errorf("New(%q) code = %s, want %s", uri, code, obserrors.ErrCodeUnsupportedScheme)
			}
		}
	})

	t.Run("missing directory", func(t *testing.T) {
		cfg := createTestConfig(t)
		cfg.Storage.URI = filepath.Join(cfg.Storage.URI, "missing")
		if _, err := New(ctx, cfg, testLogger()); err == nil {
			t.Error("New() error = nil, want error")
		}
	})

	t.Run("invalid configuration", func(t *testing.T) {
		cfg := createTestConfig(t)
		cfg.Metrics.QuantileThreshold = 0
		_, err := New(ctx, cfg, testLogger())
		if code := obserrors.CodeOf(err); code != obserrors.ErrCodeConfigValidation {
			t.Errorf("New() code = %s, want %s", code, obserrors.ErrCodeConfigValidation)
		}
	})

	t.Run("classifier and server disabled", func(t *testing.T) {
		cfg := createTestConfig(t)
		cfg.Classifier.Enabled = false
		cfg.Server.Enabled = false
		a, err := New(ctx, cfg, testLogger())
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if a.Classifier().Enabled() {
			t.Error("classifier should be disabled")
		}
		if a.Server() != nil {
			t.Error("admin server should not be configured")
		}
	})
}

func TestSessionRecordsReads(t *testing.T) {
	t.Parallel()

	cfg := createTestConfig(t)
	a, err := New(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	readAll(t, a, "a.csv")
	a.Classifier().Refresh()
	readAll(t, a, "a.csv")

	report := a.Registry().Report()
	if !strings.HasPrefix(report, "Current filesystem: observability-local\n") {
		t.Errorf("report has unexpected header: %q", report)
	}
	for _, want := range []string{"open operation histogram is", "read operation request size histogram is"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q", want)
		}
	}

	record := a.Classifier().Record()
	if record.Total() != 2 {
		t.Errorf("classified reads = %d, want 2", record.Total())
	}
	if record.Misses != 1 || record.PartialHits != 1 {
		t.Errorf("record = %+v, want one miss and one partial hit", record)
	}

	stats := a.Cache().Stats()
	if stats.Entries != 4 {
		t.Errorf("cached blocks = %d, want 4", stats.Entries)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	cfg := createTestConfig(t)
	local, err := filesystem.NewLocalFileSystem(cfg.Storage.URI)
	if err != nil {
		t.Fatal(err)
	}

	a, err := NewWithFileSystem(cfg, local, testLogger())
	if err != nil {
		t.Fatalf("NewWithFileSystem() error = %v", err)
	}
	if got := a.Resolve("a.csv"); got != "a.csv" {
		t.Errorf("Resolve() = %q for a local session", got)
	}

	cfg.Storage.URI = "s3://bucket/prefix/"
	tests := []struct {
		path string
		want string
	}{
		{"data.parquet", "s3://bucket/prefix/data.parquet"},
		{"/nested/x.csv", "s3://bucket/prefix/nested/x.csv"},
		{"s3://other/key", "s3://other/key"},
	}
	for _, tt := range tests {
		if got := a.Resolve(tt.path); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, err := New(ctx, createTestConfig(t), testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	readAll(t, a, "b.csv")

	resp, err := http.Get("http://" + a.Server().Addr() + "/stats")
	if err != nil {
		t.Fatalf("GET /stats error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "read operation histogram is") {
		t.Errorf("GET /stats = %q", body)
	}

	if err := a.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestHealthCheckFailureStopsStart(t *testing.T) {
	t.Parallel()

	cfg := createTestConfig(t)
	cfg.Server.Enabled = false
	a, err := New(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a.healthCheck = func(context.Context) error {
		return obserrors.NewError(obserrors.ErrCodeBucketNotFound, "no such bucket")
	}

	err = a.Start(context.Background())
	if code := obserrors.CodeOf(err); code != obserrors.ErrCodeBucketNotFound {
		t.Errorf("Start() code = %s, want %s", code, obserrors.ErrCodeBucketNotFound)
	}
}
