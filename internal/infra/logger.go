package infra

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a slog.Logger writing JSON to stdout and a rotated file.
func NewLogger(cfg *Config) *slog.Logger {
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		// Fallback to stderr if directory creation fails
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}

	fileLogger := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "server.log"),
		MaxSize:    10, // Megabytes
		MaxBackups: 3,
		MaxAge:     28, // Days
		Compress:   true,
	}

	writer := io.MultiWriter(os.Stdout, fileLogger)

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Logging.Level),
	}

	return slog.New(slog.NewJSONHandler(writer, opts))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
