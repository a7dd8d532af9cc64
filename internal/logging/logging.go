// Package logging builds the process logger: text records on stderr and,
// when a log folder is configured, a size-rotated app.log.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration
type Config struct {
	Folder     string // Empty logs to stderr only
	Level      slog.Level
	MaxSizeMB  int // Rotate app.log at this size (10)
	MaxBackups int // Rotated files kept (5)
}

// Logger is a slog.Logger that owns its log file
type Logger struct {
	*slog.Logger
	file *lumberjack.Logger
}

// New creates the logger
func New(cfg Config, stderr io.Writer) (*Logger, error) {
	if stderr == nil {
		stderr = os.Stderr
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}

	l := &Logger{}
	out := stderr
	if cfg.Folder != "" {
		if err := os.MkdirAll(cfg.Folder, 0755); err != nil {
			return nil, fmt.Errorf("create log folder: %w", err)
		}
		l.file = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Folder, "app.log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		out = io.MultiWriter(stderr, l.file)
	}

	l.Logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: cfg.Level}))
	return l, nil
}

// Close closes the log file
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel maps debug, info, warn and error to a level. Anything else is info.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
