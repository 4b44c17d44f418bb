package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"homesync/internal/api"
	"homesync/internal/config"
	"homesync/internal/database"
	"homesync/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	port        int
	metricsPort int
	autoMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&port, "port", 0, "API server port (overrides config)")
	serveCmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "Metrics server port (overrides config)")
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", true, "Migrate the schema before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if port > 0 {
		a.cfg.Server.Port = port
	}
	if metricsPort > 0 {
		a.cfg.Metrics.Port = metricsPort
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if autoMigrate {
		if err := database.Migrate(a.db); err != nil {
			return err
		}
	}

	verifier, err := a.verifier(ctx)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	hub := events.NewHub(a.logger.Named("events"), originChecker(a.cfg.Server.CORSOrigins))
	defer hub.Close()

	server := api.NewServer(api.Options{
		Store:       a.store,
		Verifier:    verifier,
		Reconciler:  a.reconciler(hub),
		Feed:        hub,
		Logger:      a.logger,
		Metrics:     a.metrics,
		CORSOrigins: a.cfg.Server.CORSOrigins,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      server.Router,
		ReadTimeout:  config.Duration(a.cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.Duration(a.cfg.Server.WriteTimeout, 30*time.Second),
	}

	var metricsServer *http.Server
	if a.cfg.Metrics.Enabled {
		metricsServer = startMetricsServer(a)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting API server", zap.Int("port", a.cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down servers")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GetShutdownTimeout())
	defer cancel()

	hub.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("API server shutdown error", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	return nil
}

func startMetricsServer(a *app) *http.Server {
	metricsRouter := gin.New()
	metricsRouter.Use(gin.Recovery())
	metricsRouter.GET(a.cfg.Metrics.Path, gin.WrapH(a.metrics.Handler()))

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Metrics.Port),
		Handler: metricsRouter,
	}

	go func() {
		a.logger.Info("starting metrics server", zap.Int("port", a.cfg.Metrics.Port), zap.String("path", a.cfg.Metrics.Path))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return metricsServer
}
