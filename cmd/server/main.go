package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"konsinyasi-backend/internal/config"
	"konsinyasi-backend/internal/database"
	"konsinyasi-backend/internal/locking"
	"konsinyasi-backend/internal/logging"
	"konsinyasi-backend/internal/server"
	"konsinyasi-backend/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logger := logging.New(cfg.LogLevel)
	cfg.Warn(logger)

	db, err := database.Open(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("database connection failed")
	}
	if err := database.Migrate(db); err != nil {
		logger.WithError(err).Fatal("database migration failed")
	}
	logger.Info("database ready")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var locker locking.Locker = locking.NewLocalLocker()
	if cfg.RedisAddress != "" {
		rl, err := locking.Connect(ctx, cfg.RedisAddress, logger)
		if err != nil {
			logger.WithError(err).Fatal("redis connection failed")
		}
		locker = rl
	}

	var store storage.Storage
	serveUploads := cfg.GCSBucket == ""
	if serveUploads {
		if err := os.MkdirAll(cfg.UploadPath, 0o755); err != nil {
			logger.WithError(err).Fatal("cannot create upload folder")
		}
		store = storage.NewLocalStorage(cfg.UploadPath, cfg.PublicBaseURL)
	} else {
		gcs, err := storage.NewGCSStorage(context.Background(), cfg.GCSBucket)
		if err != nil {
			logger.WithError(err).Fatal("gcs bucket unavailable")
		}
		defer gcs.Close()
		store = gcs
	}

	app := server.New(server.Deps{
		Config:       cfg,
		Logger:       logger,
		DB:           db,
		Locker:       locker,
		Storage:      store,
		ServeUploads: serveUploads,
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.WithError(err).Error("shutdown failed")
		}
	}()

	logger.WithField("port", cfg.HTTPPort).Info("server listening")
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}
