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
	"go.uber.org/zap"

	"github.com/nexuscrm/kernel/internal/bootstrap"
	"github.com/nexuscrm/kernel/internal/interfaces/rest"
	"github.com/nexuscrm/kernel/pkg/auth"
)

func newServeCmd() *cobra.Command {
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Bootstrap the database and serve the HTTP API",
		Long: `Create or reconcile the system tables, seed profiles and default
permissions, run the startup assertions, then serve the HTTP API and the
periodic schema consistency checks until interrupted.

With SCHEMA_STRICT_MODE=true, any assertion violation aborts startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if err := cfg.Validate(); err != nil {
				return err
			}
			verifier, err := auth.NewVerifier(cfg.JWTSecret)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			k, err := openKernel(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer k.Close()

			if _, err := bootstrap.Run(ctx, k.svc, cfg.SchemaStrictMode, logger.Named("bootstrap")); err != nil {
				return fmt.Errorf("bootstrap failed: %w", err)
			}

			if err := k.svc.ScheduleConsistencyChecks(cfg.ConsistencySchedule); err != nil {
				return err
			}
			k.svc.Scheduler.Start()
			logger.Info("⏰ Consistency checks scheduled", zap.String("schedule", cfg.ConsistencySchedule))

			srv := &http.Server{
				Addr:              "0.0.0.0:" + cfg.Port,
				Handler:           rest.NewRouter(k.svc, verifier, logger.Named("http")),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()
			logger.Info("🚀 NexusCRM kernel started",
				zap.String("addr", srv.Addr),
				zap.String("version", version))

			select {
			case err := <-serveErr:
				if err != nil {
					return fmt.Errorf("failed to start server: %w", err)
				}
			case <-ctx.Done():
			}
			logger.Info("Shutting down server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := k.svc.Scheduler.Stop(shutdownCtx); err != nil {
				logger.Warn("⚠️ Scheduler did not stop cleanly", zap.Error(err))
			} else {
				logger.Info("🛑 Scheduler stopped")
			}
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			logger.Info("Server exiting")
			return nil
		},
	}

	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "Grace period for in-flight requests")
	return cmd
}
