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

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"accidents-dw/internal/config"
	"accidents-dw/internal/handlers"
	"accidents-dw/internal/repository"
	"accidents-dw/internal/services"
	"accidents-dw/pkg/database"
	"accidents-dw/pkg/logging"
	"accidents-dw/pkg/metrics"
)

const (
	version         = "1.0.0"
	shutdownTimeout = 30 * time.Second
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("accidents-api", version, logging.ParseLevel(cfg.Logging.Level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error(context.Background(), "[SERVER_ERROR] Reporting API stopped with error", logging.Fields{}, err)
		stop()
		os.Exit(1)
	}
}

// serve blocks until ctx is cancelled or the listener fails
func serve(ctx context.Context, cfg *config.Config, logger *logging.StructuredLogger) error {
	logger.Info(ctx, "[STARTUP] Starting accident warehouse reporting API", logging.Fields{
		"version":   version,
		"address":   fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"db_driver": cfg.Database.Driver,
	})

	collector := metrics.NewCollector("accidents_api")

	db, err := database.Open(cfg.Database.Connection(), logger, collector)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	reports := services.NewReportService(repository.NewReportRepository(db, logger, collector), logger, collector)

	router := mux.NewRouter()
	handlers.NewReportHandler(reports, logger, collector).RegisterRoutes(router)
	router.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{"address": server.Addr})
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "[SHUTDOWN] Shutting down server", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info(context.Background(), "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
	return nil
}
