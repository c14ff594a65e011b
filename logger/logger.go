package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how log entries are written.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	Output string // console, file or both
	File   FileConfig
}

// FileConfig configures the rotating log file.
type FileConfig struct {
	Filename   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultConfig returns a console logger at info level.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
		Output: "console",
		File: FileConfig{
			Filename:   "./logs/vms-recordings.log",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// Validate checks the configuration before a logger is built from it.
func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid log level %q", c.Level)
	}
	switch c.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q", c.Format)
	}
	switch c.Output {
	case "console":
	case "file", "both":
		if c.File.Filename == "" {
			return fmt.Errorf("log file name is required for output %q", c.Output)
		}
	default:
		return fmt.Errorf("invalid log output %q", c.Output)
	}
	return nil
}

// New builds a zap logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logger configuration: %w", err)
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var writers []zapcore.WriteSyncer
	switch cfg.Output {
	case "console":
		writers = append(writers, zapcore.AddSync(os.Stdout))
	case "file":
		writers = append(writers, zapcore.AddSync(fileWriter(cfg.File)))
	case "both":
		writers = append(writers, zapcore.AddSync(os.Stdout), zapcore.AddSync(fileWriter(cfg.File)))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(writers...), level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// fileWriter returns a lumberjack writer, creating the log directory if needed.
func fileWriter(cfg FileConfig) io.Writer {
	if err := os.MkdirAll(filepath.Dir(cfg.Filename), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
	}
	return &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}
}
