package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"vms-recordings/api"
	"vms-recordings/config"
	"vms-recordings/cron"
	"vms-recordings/database"
	"vms-recordings/logger"
	"vms-recordings/monitoring"
	"vms-recordings/service"
)

const (
	monitorInterval = 5 * time.Minute
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("[main] service stopped with error", zap.Error(err))
	}
}

func run(cfg config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := config.EnsurePaths(cfg); err != nil {
		return err
	}

	store, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabasePath, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return err
	}
	defer store.Close()
	zl.Info("[main] catalog store ready", zap.String("driver", cfg.DatabaseDriver))

	svc, err := service.NewFromOptions(store, service.OptionsFromConfig(cfg), zl)
	if err != nil {
		return err
	}
	// Wait for a detached scan before the deferred store.Close.
	defer func() {
		waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = svc.Shutdown(waitCtx)
	}()
	if err := svc.SeedCameras(ctx, cfg.Cameras); err != nil {
		return err
	}

	if cfg.SyncOnStart {
		go func() {
			if _, err := svc.Sync(ctx, service.TriggerStartup); err != nil && ctx.Err() == nil {
				zl.Error("[main] startup sync failed", zap.Error(err))
			}
		}()
	}

	if cfg.SyncSchedule != "" {
		job, err := cron.NewSyncCron(cfg.SyncSchedule, svc, zl.Named("cron"))
		if err != nil {
			return err
		}
		if err := job.Start(ctx); err != nil {
			return err
		}
	}

	monitoring.StartMonitoring(ctx, monitorInterval, cfg.RecordingsPath, zl.Named("monitor"))

	server := api.NewServer(cfg, svc, zl.Named("api"))
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info("[main] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
