package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"missiondesk/internal/app"
	"missiondesk/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long: `Serve the REST API the web client talks to. The bootstrap administrator from
the config is created when no administrator exists yet. Configured webhooks
receive every event recorded while the server runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			logger := newLogger(os.Stderr)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, conn, err := app.Open(ctx, app.Options{
				Workspace: viper.GetString("workspace"),
				Config:    cfg,
				Logger:    logger.With("component", "engine"),
				SeedAdmin: true,
			})
			if err != nil {
				return err
			}
			defer conn.Close()

			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth: server.AuthConfig{
					Tokens:  e.Tokens,
					Require: cfg.Auth.RequireToken,
					Logger:  logger.With("component", "auth"),
				},
				Logger:      logger.With("component", "http"),
				CORSOrigins: cfg.Server.CORSOrigins,
				Locale:      cfg.API.Locale,
			})
			if err != nil {
				return err
			}
			if d := server.NewWebhookDispatcher(e, logger.With("component", "webhooks")); d != nil {
				go d.Run(ctx)
			}

			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error("shutdown", "err", err)
				}
			}()
			logger.Info("serving missiondesk api", "addr", addr, "base_path", basePath, "store", cfg.Store.Driver, "openapi", basePath+"/openapi.json", "docs", basePath+"/docs")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	return cmd
}
