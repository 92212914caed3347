package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/hotupdate/internal/bridge"
	"git.home.luguber.info/inful/hotupdate/internal/config"
	"git.home.luguber.info/inful/hotupdate/internal/contenthost"
	"git.home.luguber.info/inful/hotupdate/internal/metrics"
	"git.home.luguber.info/inful/hotupdate/internal/updater"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd implements the 'serve' command.
type ServeCmd struct{}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunServe(ctx, cfg, g.Logger)
}

// RunServe runs the updater, the host bridge and the content server until
// ctx is cancelled.
func RunServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var current atomic.Pointer[updater.Updater]
	host := contenthost.New(func() string {
		if u := current.Load(); u != nil {
			return u.ContentRoot(context.Background())
		}
		return cfg.Content.BundleDir
	}, cfg.Content.EntryFile, logger)

	opts := updater.Options{ContentHost: host, Logger: logger}
	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		opts.Recorder = metrics.NewPrometheusRecorder(reg)
	}

	u, err := updater.Open(ctx, cfg, opts)
	if err != nil {
		return fmt.Errorf("open updater: %w", err)
	}
	current.Store(u)
	defer func() {
		if err := u.Close(); err != nil {
			logger.Warn("Failed to close updater", "error", err)
		}
	}()

	if err := host.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = host.Close() }()
	if err := host.Reload(u.Layout().Active()); err != nil {
		logger.Warn("Failed to watch content root", "error", err)
	}

	bopts := bridge.Options{Logger: logger}
	if reg != nil {
		bopts.MetricsPath = cfg.Metrics.Path
		bopts.MetricsHandler = metrics.HTTPHandler(reg)
	}
	br := bridge.NewServer(cfg.Server.BridgeAddr, u, bopts)
	content := &http.Server{
		Addr:              cfg.Server.ContentAddr,
		Handler:           host,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 2)
	go func() { errChan <- br.Start() }()
	go func() { errChan <- content.ListenAndServe() }()

	report := u.LaunchReport()
	logger.Info("Serving",
		slog.String("bridge", cfg.Server.BridgeAddr),
		slog.String("content", cfg.Server.ContentAddr),
		slog.Bool("activated", report.Activated.IsSome()),
		slog.Bool("canary_armed", report.Armed.IsSome()))

	var runErr error
	select {
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping servers...")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	runErr = errors.Join(runErr, br.Shutdown(stopCtx), content.Shutdown(stopCtx))
	logger.Info("Stopped")
	return runErr
}
