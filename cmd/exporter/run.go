package exporter

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/f5xc-exporter/internal/server"
	"github.com/f5xc-exporter/pkg/config"
	"github.com/f5xc-exporter/pkg/logger"
	"github.com/f5xc-exporter/pkg/signal"
	"github.com/f5xc-exporter/pkg/util"
)

// run serves until SIGINT/SIGTERM. Collector failures never end the process.
func run(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := logger.Init(&cfg.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.SetDefaultComponent("main")

	util.PrintBanner(os.Stdout, "f5xc-exporter", "blue")

	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	a.logStartup()

	httpServer := server.NewHTTPServer(cfg.Server, a.registry, a.prober, a.scheduler, util.Version, logger.Named("http"))
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		a.prober.Run(runCtx)
		return nil
	})
	if err := a.scheduler.Start(runCtx); err != nil {
		cancel()
		_ = httpServer.Shutdown(cfg.Server.ShutdownTimeout)
		return fmt.Errorf("start scheduler: %w", err)
	}

	logger.Info("exporter started", "", zap.String("listen_addr", httpServer.Addr()), zap.String("version", util.Version))

	return signal.WaitForShutdown(ctx, logger.GetLogger(), cfg.Server.ShutdownTimeout, func(context.Context) error {
		cancel()
		a.scheduler.Stop()
		httpErr := httpServer.Shutdown(cfg.Server.ShutdownTimeout)
		_ = g.Wait()
		if httpErr != nil {
			return fmt.Errorf("shutdown HTTP server: %w", httpErr)
		}
		logger.Info("all services shutdown successfully", "")
		return nil
	})
}

