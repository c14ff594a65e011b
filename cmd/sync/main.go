// Command sync runs one recording scan and prints its counts as JSON. It is
// meant for an external scheduler such as a systemd timer or host cron.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"vms-recordings/config"
	"vms-recordings/database"
	"vms-recordings/logger"
	"vms-recordings/service"
)

const shutdownTimeout = 30 * time.Second

func main() {
	envFile := flag.String("env", ".env", "Path to .env file")
	root := flag.String("root", "", "Override RECORDINGS_PATH")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("Warning: .env file not found at %s, using environment variables", *envFile)
	}
	if *root != "" {
		os.Setenv("RECORDINGS_PATH", *root)
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabasePath, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		zl.Fatal("[sync] failed to open catalog store", zap.Error(err))
	}
	defer store.Close()

	svc, err := service.NewFromOptions(store, service.OptionsFromConfig(cfg), zl)
	if err != nil {
		zl.Fatal("[sync] failed to build recording service", zap.Error(err))
	}
	if err := svc.SeedCameras(ctx, cfg.Cameras); err != nil {
		zl.Fatal("[sync] failed to seed cameras", zap.Error(err))
	}

	result, err := svc.Sync(ctx, service.TriggerCLI)
	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if werr := svc.Shutdown(waitCtx); werr != nil {
		zl.Warn("[sync] scan still running at exit", zap.Error(werr))
	}
	if err != nil {
		zl.Error("[sync] scan failed", zap.Error(err))
		store.Close()
		os.Exit(1)
	}

	if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
		zl.Error("[sync] failed to write result", zap.Error(err))
	}
}
