package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bryanwahyu/photo-tagger/internal/infra/db/migrate"
	"github.com/bryanwahyu/photo-tagger/internal/infra/httpserver"
	"github.com/bryanwahyu/photo-tagger/internal/middleware"
)

func serveCmd() *cobra.Command {
	var autoMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if autoMigrate {
				if err := runMigrations(ctx, true, 0); err != nil {
					return err
				}
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(ctx, a)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		go limiter.Cleanup(ctx, 5*time.Minute)
	}
	if len(cfg.Auth.APIKeys) == 0 {
		a.logger.Warn("AUTH_API_KEYS is empty, every /v1 request will be rejected")
	}

	handler := httpserver.NewRouter(a.service, a.scheduler, a.service.Policy.Defaults, httpserver.Options{
		APIKeys:        cfg.Auth.APIKeys,
		RateLimiter:    limiter,
		AllowedOrigins: cfg.Server.CORSOrigins,
		HealthCheckers: map[string]middleware.HealthChecker{
			"database": &middleware.DatabaseHealthChecker{DB: a.db},
		},
		Version: version,
		Logger:  a.logger,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", zap.String("addr", addr), zap.String("driver", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// graceful shutdown
	a.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

func runMigrations(ctx context.Context, up bool, steps int) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := openDB(ctx, cfg, true)
	if err != nil {
		return fmt.Errorf("%s connect error: %w", cfg.Database.Driver, err)
	}
	defer db.Close()

	if up {
		return migrate.Up(db, cfg.Database.Driver, logger)
	}
	return migrate.Down(db, cfg.Database.Driver, steps, logger)
}
