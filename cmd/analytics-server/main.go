// Command analytics-server stores flow run records and serves aggregates over
// HTTP. Executors point at it with analytics.store=http.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/klejdi94/quill/analytics"
	"github.com/klejdi94/quill/config"
	"github.com/klejdi94/quill/internal/app"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "analytics-server:", err)
		os.Exit(1)
	}
}

func run() error {
	path := flag.String("config", os.Getenv("QUILL_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		return err
	}
	if err := cfg.Analytics.Validate(); err != nil {
		return err
	}
	if cfg.Analytics.Store == "http" {
		return errors.New("analytics.store must be memory, postgres or redis")
	}
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers app.Closers
	defer func() { _ = closers.Close() }()
	store, err := app.AnalyticsStore(ctx, cfg.Analytics, &closers)
	if err != nil {
		return err
	}

	if cfg.Analytics.Retention > 0 {
		if p, ok := store.(analytics.Pruner); ok {
			go prune(ctx, p, cfg.Analytics.Retention, logger)
		}
	}

	srv := &http.Server{
		Addr:              cfg.Analytics.Listen,
		Handler:           analytics.NewServer(store, analytics.WithServerLogger(logger)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("analytics server listening", zap.String("addr", srv.Addr), zap.String("store", cfg.Analytics.Store))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// prune drops records older than retention once an hour until ctx is done.
func prune(ctx context.Context, p analytics.Pruner, retention time.Duration, logger *zap.Logger) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		n, err := p.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			logger.Warn("prune run records", zap.Error(err))
		} else if n > 0 {
			logger.Info("pruned run records", zap.Int64("removed", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
