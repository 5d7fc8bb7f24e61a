package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// New constructs a text logger on stdout with the level taken from LOG_LEVEL.
func New(service string) *slog.Logger {
	return NewWithWriter(service, os.Stdout)
}

// NewWithWriter constructs a text logger writing to w.
func NewWithWriter(service string, w io.Writer) *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", service)
}

// NewRunLog tees the logger into agent_run_<timestamp>.log inside dir.
// The returned closer must be closed once the run finishes. An empty dir
// disables the file and returns a stdout logger.
func NewRunLog(service, dir string, now time.Time) (*slog.Logger, io.Closer, error) {
	if dir == "" {
		return New(service), io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}

	path := filepath.Join(dir, RunLogName(now))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open run log: %w", err)
	}

	return NewWithWriter(service, io.MultiWriter(os.Stdout, f)), f, nil
}

// RunLogName returns the per-run log file name for the given start time.
func RunLogName(now time.Time) string {
	return "agent_run_" + now.Format("20060102_150405") + ".log"
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
