package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level      string
	Format     string
	OutputPath string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

var defaultLogger *slog.Logger

func Initialize(cfg Config) error {
	handler, err := newHandler(cfg, os.Stdout)
	if err != nil {
		return err
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)

	return nil
}

// newHandler builds the slog handler. Output goes to stdout and, when a path
// is configured, to a rotated file as well.
func newHandler(cfg Config, stdout io.Writer) (slog.Handler, error) {
	level := parseLevel(cfg.Level)

	writer := stdout
	if cfg.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0755); err != nil {
			return nil, err
		}

		fileWriter := &lumberjack.Logger{
			Filename:   cfg.OutputPath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}

		writer = io.MultiWriter(stdout, fileWriter)
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.NewJSONHandler(writer, opts), nil
	case "", "text":
		return slog.NewTextHandler(writer, opts), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

func Get() *slog.Logger {
	if defaultLogger == nil {
		return slog.Default()
	}
	return defaultLogger
}

// Component returns the default logger tagged with a component name, for
// background workers that have no request context.
func Component(name string, attrs ...any) *slog.Logger {
	return Get().With(append([]any{slog.String("component", name)}, attrs...)...)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
