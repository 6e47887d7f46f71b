// Command doclink-server serves the stack HTTP API from a SQLite document
// store and a filesystem blob store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kilupskalvis/doclink/internal/remote/blobstore"
	"github.com/kilupskalvis/doclink/internal/remote/server"
	"github.com/kilupskalvis/doclink/internal/replica"
)

type options struct {
	listen      string
	dataDir     string
	logLevel    string
	logFormat   string
	tlsCert     string
	tlsKey      string
	webhookURLs string
	webhookDocs string
	maxFileSize int64
	gcInterval  time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.listen, "listen", envOr("DOCLINK_LISTEN", "0.0.0.0:8080"), "Listen address")
	flag.StringVar(&opts.dataDir, "data-dir", envOr("DOCLINK_DATA_DIR", "/var/lib/doclink-server"), "Directory holding stack.db and files/")
	flag.StringVar(&opts.logLevel, "log-level", envOr("DOCLINK_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	flag.StringVar(&opts.logFormat, "log-format", envOr("DOCLINK_LOG_FORMAT", "json"), "Log format (json, text)")
	flag.StringVar(&opts.tlsCert, "tls-cert", os.Getenv("DOCLINK_TLS_CERT"), "TLS certificate file")
	flag.StringVar(&opts.tlsKey, "tls-key", os.Getenv("DOCLINK_TLS_KEY"), "TLS key file")
	flag.StringVar(&opts.webhookURLs, "webhook-urls", os.Getenv("DOCLINK_WEBHOOK_URLS"), "Comma-separated URLs notified of document changes")
	flag.StringVar(&opts.webhookDocs, "webhook-doctypes", os.Getenv("DOCLINK_WEBHOOK_DOCTYPES"), "Comma-separated doctypes posted to webhooks (default all)")
	flag.Int64Var(&opts.maxFileSize, "max-file-size", 512<<20, "Maximum uploaded file size in bytes")
	flag.DurationVar(&opts.gcInterval, "gc-interval", 0, "Run blob garbage collection periodically (0 disables)")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "doclink-server: %v\n", err)
		os.Exit(2)
	}
	logger := newLogger(opts.logFormat, level)

	if err := run(opts, level, logger); err != nil {
		logger.Error("doclink-server failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(format string, level slog.Level) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts))
}

// storeLogger builds the zap logger of the document store at the same level
// as the request log.
func storeLogger(level slog.Level) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch {
	case level <= slog.LevelDebug:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case level >= slog.LevelError:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	case level >= slog.LevelWarn:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	return cfg.Build()
}

func run(opts options, level slog.Level, logger *slog.Logger) error {
	if err := os.MkdirAll(opts.dataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	zl, err := storeLogger(level)
	if err != nil {
		return fmt.Errorf("create store logger: %w", err)
	}
	defer zl.Sync()

	docs, err := replica.Open(filepath.Join(opts.dataDir, "stack.db"), zl.Named("documents"))
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}
	defer docs.Close()

	blobs, err := blobstore.NewFSStore(filepath.Join(opts.dataDir, "files"), opts.maxFileSize)
	if err != nil {
		return fmt.Errorf("open file store: %w", err)
	}

	cfg := server.Config{}
	if urls := splitList(opts.webhookURLs); len(urls) > 0 {
		cfg.Webhooks = &server.WebhookConfig{URLs: urls, Doctypes: splitList(opts.webhookDocs)}
		logger.Info("webhooks configured", "count", len(urls))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.gcInterval > 0 {
		go collectPeriodically(ctx, opts.gcInterval, docs, blobs, logger)
	}

	srv := &http.Server{
		Addr:              opts.listen,
		Handler:           server.NewHandler(docs, blobs, cfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting doclink-server", "listen", opts.listen, "data_dir", opts.dataDir, "tls", opts.tlsCert != "")
		if opts.tlsCert != "" && opts.tlsKey != "" {
			errc <- srv.ListenAndServeTLS(opts.tlsCert, opts.tlsKey)
		} else {
			errc <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func collectPeriodically(ctx context.Context, every time.Duration, docs *replica.Store, blobs blobstore.BlobStore, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := server.GarbageCollect(ctx, docs, blobs, false, logger); err != nil {
				logger.Error("scheduled gc failed", "error", err)
			}
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
