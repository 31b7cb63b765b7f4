package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// openLogger opens <stateRoot>/logs/<YYYY-MM-DD>.log, creating the logs
// directory if needed, and returns a slog.Logger writing JSON lines to both
// that file and stderr, one log file per calendar day.
func openLogger(stateRoot string, debug bool) (*slog.Logger, func(), error) {
	logsDir := filepath.Join(stateRoot, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create logs directory: %w", err)
	}

	logPath := filepath.Join(logsDir, time.Now().UTC().Format("2006-01-02")+".log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", logPath, err)
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(io.MultiWriter(f, os.Stderr), &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)

	return logger, func() { f.Close() }, nil
}
