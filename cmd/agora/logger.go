package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Environment fallbacks for the logging flags.
const (
	logLevelEnvVar  = "LOG_LEVEL"
	logFileEnvVar   = "LOG_FILE"
	logFormatEnvVar = "LOG_FORMAT"
)

// initLogger configures the process-wide slog default.
// Priority: CLI flags > env vars > defaults. Returns a cleanup
// function when a log file was opened.
func initLogger(cliLevel, cliFile, cliFormat string) (func(), error) {
	level := firstNonEmpty(cliLevel, os.Getenv(logLevelEnvVar), "info")
	file := firstNonEmpty(cliFile, os.Getenv(logFileEnvVar))
	format := firstNonEmpty(cliFormat, os.Getenv(logFormatEnvVar), "text")

	slogLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	var output io.Writer = os.Stderr
	var cleanup func()
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		output = f
		cleanup = func() { _ = f.Close() }
	}

	opts := &slog.HandlerOptions{Level: slogLevel}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		if cleanup != nil {
			cleanup()
		}
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	slog.SetDefault(slog.New(handler))

	return cleanup, nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", level)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
