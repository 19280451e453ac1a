// Package cmd provides the CLI commands for appmap.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/appatlas/appmap/internal/adapters/httpapi"
	"github.com/appatlas/appmap/internal/domain"
	"github.com/appatlas/appmap/internal/infrastructure/config"
	"github.com/appatlas/appmap/internal/usecases"
)

// Logger defines the logging interface used by the command.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// Dependencies holds all injectable dependencies for the command.
// This enables testing by allowing mock implementations to be injected.
type Dependencies struct {
	// LoggerFactory creates a logger instance.
	LoggerFactory func() Logger

	// ConfigLoader loads application configuration.
	ConfigLoader func() (*config.Config, error)

	// OracleFactory creates the mapping oracle from config.
	OracleFactory func(ctx context.Context, cfg *config.Config, log Logger) (domain.MappingOracle, error)

	// ExtractorFactory creates the dataset extractor.
	ExtractorFactory func() domain.DatasetExtractor

	// ExporterFactory creates the result exporter.
	ExporterFactory func() domain.ResultExporter

	// ListenAndServe runs the HTTP server until ctx is cancelled.
	// Nil selects the default graceful server; tests substitute stubs.
	ListenAndServe func(ctx context.Context, addr string, handler http.Handler, log Logger) error

	// Stderr is the writer for warnings/errors.
	Stderr io.Writer
}

// Command-line flags.
var (
	listenAddr string
	verbose    bool
)

// defaultDeps holds the production dependencies.
// This is set by the production wiring in main or via SetDefaultDependencies.
var defaultDeps *Dependencies

// SetDefaultDependencies sets the default dependencies for production use.
// This should be called from main() before Execute().
func SetDefaultDependencies(deps *Dependencies) {
	defaultDeps = deps
}

// NewRootCmd creates the root command for appmap.
func NewRootCmd() *cobra.Command {
	return NewRootCmdWithDeps(defaultDeps)
}

// NewRootCmdWithDeps creates the root command with explicit dependencies.
// This is the primary constructor that enables testing via dependency injection.
func NewRootCmdWithDeps(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "appmap",
		Short: "Map physical applications to logical application groups",
		Long: `appmap serves the physical-to-logical application mapping pipeline.

It accepts physical and logical application inventories, drives an LLM
scoring oracle under a bounded concurrency budget, repairs unreliable model
output, and returns a MECE-covering mapping set either buffered or as a
live NDJSON progress stream.`,
		SilenceUsage: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mapping HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, deps)
		},
	}
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "",
		"Listen address (overrides "+config.EnvListenAddr+")")
	serveCmd.Flags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable verbose/debug logging")

	rootCmd.AddCommand(serveCmd)
	return rootCmd
}

// runServe wires the mapping pipeline and serves it over HTTP.
func runServe(cmd *cobra.Command, deps *Dependencies) error {
	if deps == nil {
		return errors.New("dependencies not configured")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stderr := deps.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	// Set log level based on verbose flag (best-effort)
	if verbose {
		if err := os.Setenv(config.EnvLogLevel, "debug"); err != nil {
			writeWarningf(stderr, "warning: could not set log level: %v\n", err)
		}
	}

	log := deps.LoggerFactory()

	cfg, err := deps.ConfigLoader()
	if err != nil {
		log.Error(ctx, "failed to load configuration", err, nil)
		return fmt.Errorf("configuration error: %w", err)
	}

	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}

	oracle, err := deps.OracleFactory(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "failed to initialize mapping oracle", err, nil)
		return fmt.Errorf("oracle error: %w", err)
	}

	mapper := usecases.NewAppMapper(oracle, log, usecases.MapperOptions{
		UncertaintyThreshold: cfg.UncertaintyThreshold,
		OracleTimeout:        cfg.OracleTimeout,
	})
	broadcaster := usecases.NewProgressBroadcaster(mapper, log)

	server := httpapi.NewServer(
		httpapi.ServerConfig{
			DefaultConcurrency: cfg.DefaultConcurrency,
			MaxUploadBytes:     cfg.MaxUploadBytes,
		},
		mapper,
		broadcaster,
		deps.ExtractorFactory(),
		deps.ExporterFactory(),
		log,
	)

	log.Info(ctx, "starting appmap service", map[string]interface{}{
		"listen":              cfg.ListenAddr,
		"model":               cfg.GeminiModel,
		"default_concurrency": cfg.DefaultConcurrency,
	})

	listenAndServe := deps.ListenAndServe
	if listenAndServe == nil {
		listenAndServe = gracefulListenAndServe
	}
	return listenAndServe(ctx, cfg.ListenAddr, server.Handler(), log)
}

// gracefulListenAndServe runs the HTTP server and drains it on ctx
// cancellation (SIGINT/SIGTERM).
func gracefulListenAndServe(ctx context.Context, addr string, handler http.Handler, log Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info(ctx, "shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return <-errCh
}

// Execute runs the root command.
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// writeWarningf writes a warning message to the given writer.
// This is a best-effort operation; errors are intentionally ignored
// because there is no recovery action if stderr writes fail.
func writeWarningf(w io.Writer, format string, args ...any) {
	_, err := fmt.Fprintf(w, format, args...)
	if err != nil {
		return
	}
}
