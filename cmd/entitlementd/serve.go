package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/entitlements/pkg/config"
	"github.com/dmitrymomot/entitlements/pkg/httpserver"
	"github.com/dmitrymomot/entitlements/pkg/logger"
	"github.com/dmitrymomot/entitlements/pkg/subscription"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the webhook endpoint and the usage pruner",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	logger.SetAsDefault(log)

	var stripeCfg subscription.StripeConfig
	if err := config.Load(&stripeCfg); err != nil {
		return err
	}
	provider, err := subscription.NewStripeProvider(stripeCfg)
	if err != nil {
		return err
	}

	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return err
	}

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			log.Error("shutdown cleanup failed", logger.Error(err))
		}
	}()

	if err := a.connect(ctx); err != nil {
		return err
	}
	if err := a.openStores(); err != nil {
		return err
	}
	if err := a.openSignals(ctx); err != nil {
		return err
	}
	if err := a.build(ctx, provider); err != nil {
		return err
	}

	return serve(ctx, a, httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log.With(logger.Component("http")))))
}

// serve runs the HTTP server and the usage pruner until ctx is done or one
// of them fails.
func serve(ctx context.Context, a *app, srv *httpserver.Server) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(ctx, a.handler())
	})
	g.Go(func() error {
		return a.pruner.Run(ctx)
	})

	a.log.InfoContext(ctx, "entitlementd started",
		slog.String("version", Version),
		slog.String("storage_backend", a.cfg.StorageBackend),
		slog.String("usage_backend", a.cfg.UsageBackend),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.log.Info("entitlementd stopped")
	return nil
}
