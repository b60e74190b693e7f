package main

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	fiberadapter "github.com/eaglesoak/portal/adapters/fiber"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the portal over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, cleanup, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		app := fiber.New(fiber.Config{AppName: "portal"})
		adapter := fiberadapter.New(app, logger.Named("http"))
		if err := adapter.RegisterRoutes(p); err != nil {
			return err
		}
		defer adapter.Close()

		g, ctx := errgroup.WithContext(ctx)

		// Protected routes answer 503 until this finishes
		g.Go(func() error {
			snap := p.Initialize(ctx)
			logger.Info("session ready", zap.Bool("authenticated", snap.Authenticated()))
			return nil
		})

		g.Go(func() error {
			logger.Info("portal listening", zap.String("addr", cfg.Listen), zap.String("backend", cfg.BaseURL))
			return app.Listen(cfg.Listen, fiber.ListenConfig{DisableStartupMessage: true})
		})

		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			logger.Info("shutting down")
			return app.ShutdownWithContext(shutdownCtx)
		})

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
