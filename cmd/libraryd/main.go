package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/libraria/lending/internal/auth"
	"github.com/libraria/lending/internal/config"
	"github.com/libraria/lending/internal/db"
	"github.com/libraria/lending/internal/events"
	"github.com/libraria/lending/internal/httpapi"
	"github.com/libraria/lending/internal/lending"
	"github.com/libraria/lending/internal/metrics"
	"github.com/libraria/lending/internal/repo"
	"github.com/libraria/lending/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log := logger.NewLogger(cfg.ServiceName, cfg.LogLevel)
	defer log.Sync()

	log.Info("Lending service starting")

	// Connect to database
	log.Info("Connecting to database...")
	database, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	// Run migrations
	log.Info("Running database migrations...")
	if err := db.RunMigrations(database); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Initialize stores
	books := repo.NewInventoryStore(database, log)
	accounts := repo.NewAccountDirectory(database, log)
	loans := repo.NewLoanLedger(database, log)

	// Provision the administrator out-of-band
	if err := accounts.EnsureAdmin(context.Background(), cfg.AdminUsername, cfg.AdminPassword, cfg.AdminEmail); err != nil {
		log.Fatal("Failed to provision admin account", zap.Error(err))
	}

	// Connect to RabbitMQ; the broker is optional, dashboards fall back to polling
	log.Info("Connecting to RabbitMQ")
	publisher, err := events.NewPublisher(cfg.RabbitMQURL, log)
	if err != nil {
		log.Warn("RabbitMQ unavailable, events disabled", zap.Error(err))
		publisher = nil
	}
	defer publisher.Close()

	// Metrics
	registry := prometheus.NewRegistry()
	lendingMetrics := metrics.New(registry)

	// Lending core
	coordinator := lending.NewLendingCoordinator(
		books, accounts, loans,
		cfg.LoanPeriod, cfg.LockWait,
		publisher, lendingMetrics, log,
	)
	workflow := lending.NewMembershipWorkflow(accounts, coordinator, publisher, log)
	sessions := auth.NewSessionManager(cfg.SessionTTL)

	// HTTP server
	server := httpapi.NewServer(books, accounts, loans, coordinator, workflow, sessions, publisher, database, log)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      server.Router(registry),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("Server stopped")
}
