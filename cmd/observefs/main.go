package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/observefs/observefs/internal/adapter"
	"github.com/observefs/observefs/internal/config"
	"github.com/observefs/observefs/internal/filesystem"
	"github.com/observefs/observefs/internal/version"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "observefs",
		Short: "Storage I/O observability",
		Long: `observefs records the latency and request size of every filesystem
operation issued against local or S3 storage, and classifies reads against
the blocks held in its cache.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(
		&cfgFile, "config", "",
		"path to config file",
	)
	cmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "",
		"override log level (debug, info, warn, error)",
	)

	cmd.AddCommand(serveCmd(), scanCmd(), versionCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.FullWithPlatform())
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run a session and serve its statistics over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func scanCmd() *cobra.Command {
	var passes int

	cmd := &cobra.Command{
		Use:   "scan <path>...",
		Short: "Read files through the observed stack and print the profile",
		Long: `scan reads every file named on the command line, expanding glob
patterns, through the cache and the observed filesystem. Relative paths are
resolved against the configured storage URI.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args, passes)
		},
	}

	cmd.Flags().IntVar(&passes, "passes", 1, "number of times each file is read")

	return cmd
}

func setup() (*config.Configuration, *logrus.Logger, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	// CLI flag overrides config file.
	if logLevel != "" {
		cfg.Global.LogLevel = logLevel
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return nil, nil, fmt.Errorf("parsing log level %q: %w", cfg.Global.LogLevel, err)
	}

	log.SetLevel(level)

	return cfg, log, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	a, err := adapter.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}

	<-ctx.Done()

	log.Info("Shutting down observefs")

	if err := a.Stop(context.Background()); err != nil {
		log.WithError(err).Error("Error during shutdown")
		return fmt.Errorf("stopping session: %w", err)
	}

	log.Info("Shutdown complete")

	return nil
}

func runScan(cmd *cobra.Command, args []string, passes int) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	// scan is a one-shot command; nothing scrapes it.
	cfg.Server.Enabled = false

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	a, err := adapter.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	paths, err := expand(ctx, a, args)
	if err != nil {
		return err
	}

	buf := make([]byte, a.Cache().BlockSize())
	for pass := 0; pass < passes; pass++ {
		for _, p := range paths {
			n, err := readFile(ctx, a.FileSystem(), p, buf)
			if err != nil {
				return fmt.Errorf("reading %s: %w", p, err)
			}
			log.WithFields(logrus.Fields{"path": p, "bytes": n, "pass": pass + 1}).Debug("Scanned file")
		}
		// Expose the blocks fetched in this pass to the next one.
		a.Classifier().Refresh()
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, a.Registry().Report())

	record := a.Classifier().Record()
	fmt.Fprintf(out, "cache hits: %d, misses: %d, partial hits: %d\n",
		record.Hits, record.Misses, record.PartialHits)
	return nil
}

// expand resolves every argument against the storage URI and expands glob
// patterns. A pattern matching nothing is an error.
func expand(ctx context.Context, a *adapter.Adapter, args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		p := a.Resolve(arg)
		if !strings.ContainsAny(p, "*?[") {
			paths = append(paths, p)
			continue
		}

		matches, err := a.FileSystem().Glob(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("expanding %s: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %s", arg)
		}
		paths = append(paths, matches...)
	}
	return paths, nil
}

func readFile(ctx context.Context, fs filesystem.FileSystem, path string, buf []byte) (int64, error) {
	fh, err := fs.Open(ctx, path)
	if err != nil {
		return 0, err
	}
	defer fh.Close()

	size, err := fs.GetFileSize(ctx, fh)
	if err != nil {
		return 0, err
	}

	var total int64
	for total < size {
		n, err := fs.Read(ctx, fh, buf, total)
		total += int64(n)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}
