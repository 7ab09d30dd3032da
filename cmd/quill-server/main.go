// Command quill-server serves the flow catalog over HTTP.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/klejdi94/quill/analytics"
	"github.com/klejdi94/quill/config"
	"github.com/klejdi94/quill/cost"
	"github.com/klejdi94/quill/internal/app"
	"github.com/klejdi94/quill/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("QUILL_CONFIG"), "Path to YAML config (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers app.Closers
	defer func() {
		if err := closers.Close(); err != nil {
			logger.Warn("close", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	catalog, err := app.Catalog(ctx, cfg.Catalog, logger, &closers)
	if err != nil {
		return err
	}
	p, err := app.Provider(ctx, cfg, logger, reg, &closers)
	if err != nil {
		return err
	}
	recorder, err := app.Recorder(ctx, cfg.Analytics, &closers)
	if err != nil {
		return err
	}

	pricing := cost.DefaultTable()
	spend := cost.NewTracker(pricing)
	reg.MustRegister(spend)

	exec := app.Executor(catalog, p, cfg, logger, analytics.Multi(recorder, spend))
	srv := server.New(catalog, exec,
		server.WithLogger(logger),
		server.WithGatherer(reg),
		server.WithPricing(pricing),
	)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("quill server listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("provider", cfg.Provider.Name),
			zap.Int("flows", catalog.Len()))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
