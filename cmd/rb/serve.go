package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reelboard/internal/app"
	"reelboard/internal/server"
)

func serveCmd() *cobra.Command {
	var (
		addr, basePath string
		tokenTTL       time.Duration
		noSeed         bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt_secret")
			if secret == "" {
				return fmt.Errorf("REELBOARD_JWT_SECRET is required for bearer auth")
			}
			if !viper.IsSet("log-level") {
				viper.Set("log-level", "info")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, log, err := openApp(ctx, app.Options{SeedUsers: !noSeed, Reconcile: true})
			if err != nil {
				return err
			}
			defer log.Sync()
			defer a.Close()

			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				BasePath: basePath,
				Logger:   log,
				Auth:     server.AuthConfig{JWTSecret: secret, TokenTTL: tokenTTL},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			hooks := server.NewWebhookDispatcher(a.Engine.Repo, a.Config.Webhooks, log.Named("webhooks"))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("serving reelboard API",
					zap.String("addr", addr),
					zap.String("base_path", basePath),
					zap.String("docs", "/docs"))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				return hooks.Run(gctx)
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/api", "API base path")
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", 12*time.Hour, "bearer token lifetime")
	cmd.Flags().BoolVar(&noSeed, "no-seed", false, "do not create the default accounts in an empty workspace")
	return cmd
}
