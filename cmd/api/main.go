// cmd/api/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/shop-backend/internal/config"
	"github.com/your-org/shop-backend/internal/infrastructure/database/postgres"
	"github.com/your-org/shop-backend/internal/infrastructure/database/redis"
	"github.com/your-org/shop-backend/internal/interfaces/http"
	"github.com/your-org/shop-backend/internal/pkg/email"
	"github.com/your-org/shop-backend/internal/pkg/logger"
	"github.com/your-org/shop-backend/internal/pkg/notify"
	"github.com/your-org/shop-backend/internal/pkg/pdf"
	"github.com/your-org/shop-backend/internal/pkg/sms"
)

func main() {
	resetDB := flag.Bool("reset-db", false, "drop every table before migrating (development only)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.Logging)
	appLogger.WithFields(logrus.Fields{
		"app":         cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	}).Info("starting")

	// Connect to database
	db, err := postgres.NewConnection(cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	// Connect to Redis
	redisClient, err := redis.NewConnection(cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("failed to connect to Redis")
	}
	defer redisClient.Close()

	// Health check
	if err := db.Health(); err != nil {
		appLogger.WithError(err).Fatal("database health check failed")
	}
	if err := redisClient.Health(); err != nil {
		appLogger.WithError(err).Fatal("redis health check failed")
	}

	// Run database migrations
	migration := postgres.NewMigration(db.GetDB(), appLogger)

	if *resetDB {
		if !cfg.IsDevelopment() {
			appLogger.Fatal("-reset-db is only allowed in development")
		}
		if err := migration.DropAllTables(); err != nil {
			appLogger.WithError(err).Fatal("failed to drop tables")
		}
	}

	if err := migration.RunAutoMigrations(); err != nil {
		appLogger.WithError(err).Fatal("database migration failed")
	}
	if err := migration.CreateIndexes(); err != nil {
		appLogger.WithError(err).Warn("index creation incomplete")
	}

	// Seed initial data in development
	if cfg.IsDevelopment() {
		if err := migration.SeedInitialData(); err != nil {
			appLogger.WithError(err).Warn("data seeding failed")
		}
		if err := migration.GetTableInfo(); err != nil {
			appLogger.WithError(err).Warn("failed to read table info")
		}
	}

	// Order notifications go out by email or SMS
	dispatcher := notify.NewDispatcher(
		email.NewEmailService(cfg, appLogger),
		sms.NewSMSService(cfg.External.SMS, appLogger),
		cfg.External.Email.BaseURL,
		appLogger,
	)

	server := http.NewServer(cfg, db.GetDB(), redisClient, dispatcher, pdf.NewService(cfg), appLogger)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			appLogger.WithError(err).Fatal("failed to start HTTP server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down gracefully")

	// Give server 30 seconds to shutdown gracefully
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		appLogger.WithError(err).Error("failed to shutdown HTTP server gracefully")
	}

	appLogger.Info("server shutdown completed")
}
