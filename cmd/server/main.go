package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"ghostbeacon/internal/server"
	"ghostbeacon/internal/server/config"
	"ghostbeacon/internal/server/database"
	"ghostbeacon/internal/server/logger"
	"ghostbeacon/internal/server/storage"
	"ghostbeacon/internal/server/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)

	log.Info(logger.CategoryStartup, "=== ghostbeacon controller ===")

	var db *database.DB
	var primaryStorage storage.Storage

	db, err = database.Connect(&cfg.Database, log)
	if err != nil {
		log.Warn(logger.CategoryWarning, "PostgreSQL unavailable: %v", err)
		log.Info(logger.CategoryStorage, "Using in-memory storage")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.RunMigrations(ctx); err != nil {
			log.Error(logger.CategoryError, "Failed to run migrations: %v", err)
			cancel()
			os.Exit(1)
		}
		cancel()

		primaryStorage = storage.NewPostgresStorage(db, log)
	}

	fallbackStorage := storage.NewMemoryStorage(log)

	var store storage.Storage
	if primaryStorage != nil {
		store = storage.NewResilientStorage(primaryStorage, fallbackStorage, log)
	} else {
		store = fallbackStorage
		log.Info(logger.CategoryStorage, "Running in in-memory mode only")
	}

	activityChecker := tasks.NewActivityChecker(store, log, cfg.Features.BeaconInactiveThresholdMinutes)
	activityChecker.Start()

	if cfg.Features.EnableAutoCleanup {
		cleanupScheduler := tasks.NewCleanupScheduler(store, log, cfg.Features.RetentionDays, cfg.Features.CleanupHour)
		cleanupScheduler.Start()
	}

	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(serverAddr, store, log)

	log.Info(logger.CategoryAPI, "Controller listening on http://%s", serverAddr)
	log.Info(logger.CategorySuccess, "Ready to receive beacon check-ins")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error(logger.CategoryError, "Server error: %v", err)
		os.Exit(1)
	}
}
