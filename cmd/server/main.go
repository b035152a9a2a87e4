package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hperssn/sages/internal/config"
	"github.com/hperssn/sages/internal/content"
	httpapi "github.com/hperssn/sages/internal/http"
	"github.com/hperssn/sages/internal/notify"
	"github.com/hperssn/sages/internal/observability"
	"github.com/hperssn/sages/internal/runner"
	"github.com/hperssn/sages/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := observability.NewLogger(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	repo, err := storage.Open(cfg.StorageBackend, cfg.StorageDSN)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer repo.Close()

	if cfg.SeedDir != "" {
		if _, err := content.Seed(ctx, cfg.SeedDir, repo, log); err != nil {
			return fmt.Errorf("seed retreats: %w", err)
		}
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.NATSURL != "" {
		n, err := notify.NewNATSNotifier(cfg.NATSURL, log)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		notifier = n
	}
	defer notifier.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg)

	api := httpapi.NewServer(httpapi.Deps{
		Repo: repo,
		Plays: runner.ManagerOptions{
			IdleTTL:         cfg.PlayIdleTTL,
			CleanupInterval: cfg.CleanupInterval,
		},
		Notifier: notifier,
		Metrics:  metrics,
		Gatherer: reg,
		Logger:   log,
		DevUser:  cfg.DevUser,
	})

	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:        cfg.Addr,
		Handler:     api.Routes(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.String("storage", cfg.StorageBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return api.Plays().Run(ctx)
	})

	if cfg.WatchSeed && cfg.SeedDir != "" {
		w := content.NewWatcher(cfg.SeedDir, repo, log)
		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	return g.Wait()
}
