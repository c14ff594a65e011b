package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"vms-recordings/database"
	"vms-recordings/logger"
)

// Config holds the service configuration, read from the environment.
type Config struct {
	ServerPort string `validate:"required,numeric"`
	AppEnv     string `validate:"required,oneof=development staging production test"`

	// Catalog store
	DatabaseDriver   string `validate:"required,oneof=sqlite postgres"`
	DatabasePath     string `validate:"required_if=DatabaseDriver sqlite"`
	DatabaseURL      string `validate:"required_if=DatabaseDriver postgres"`
	DatabaseMaxConns int    `validate:"min=1"`

	// Recordings
	RecordingsPath     string        `validate:"required"`
	VideoExtension     string        `validate:"required,startswith=."`
	VideoContentType   string        `validate:"required"`
	MetadataBatchSize  int           `validate:"min=1,max=64"`
	ProbeTimeout       time.Duration `validate:"min=1s"`
	FFprobePath        string        `validate:"required"`
	DefaultStorageTier string        `validate:"required"`

	// Sync scheduling. Empty schedule disables the cron job.
	SyncSchedule string
	SyncOnStart  bool

	// Cameras seeded into the catalog at startup
	Cameras []database.Camera `validate:"dive"`

	CORSAllowedOrigins []string

	Log logger.Config
}

// LoadConfig reads configuration from the environment with defaults.
func LoadConfig() (Config, error) {
	cfg := Config{
		ServerPort: getEnv("SERVER_PORT", "3000"),
		AppEnv:     getEnv("APP_ENV", "development"),

		DatabaseDriver:   getEnv("DATABASE_DRIVER", "sqlite"),
		DatabasePath:     getEnv("DATABASE_PATH", "./data/recordings.db"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DatabaseMaxConns: getEnvInt("DATABASE_MAX_CONNS", 10),

		RecordingsPath:     getEnv("RECORDINGS_PATH", "./data/recordings"),
		VideoExtension:     strings.ToLower(getEnv("VIDEO_EXTENSION", ".mp4")),
		VideoContentType:   getEnv("VIDEO_CONTENT_TYPE", "video/mp4"),
		MetadataBatchSize:  getEnvInt("METADATA_BATCH_SIZE", 5),
		ProbeTimeout:       getEnvDuration("PROBE_TIMEOUT", 30*time.Second),
		FFprobePath:        getEnv("FFPROBE_PATH", "ffprobe"),
		DefaultStorageTier: getEnv("DEFAULT_STORAGE_TIER", "hot"),

		SyncSchedule: getEnv("SYNC_SCHEDULE", "@every 15m"),
		SyncOnStart:  getEnvBool("SYNC_ON_START", false),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		Log: logger.Config{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
			Output: getEnv("LOG_OUTPUT", "console"),
			File: logger.FileConfig{
				Filename:   getEnv("LOG_FILE", "./logs/vms-recordings.log"),
				MaxSize:    getEnvInt("LOG_MAX_SIZE_MB", 100),
				MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
				MaxAge:     getEnvInt("LOG_MAX_AGE_DAYS", 30),
				Compress:   getEnvBool("LOG_COMPRESS", true),
			},
		},
	}

	if camerasJSON := getEnv("CAMERAS_CONFIG", ""); camerasJSON != "" {
		if err := json.Unmarshal([]byte(camerasJSON), &cfg.Cameras); err != nil {
			return cfg, fmt.Errorf("failed to parse CAMERAS_CONFIG: %w", err)
		}
	}

	if abs, err := filepath.Abs(cfg.RecordingsPath); err == nil {
		cfg.RecordingsPath = abs
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks struct constraints and the logger settings.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsDevelopment reports whether error details may be shown to clients.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// EnsurePaths creates the database directory and the recordings root.
func EnsurePaths(cfg Config) error {
	if cfg.DatabaseDriver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	if err := os.MkdirAll(cfg.RecordingsPath, 0755); err != nil {
		return fmt.Errorf("failed to create recordings directory: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

// getEnvDuration accepts Go durations ("45s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
