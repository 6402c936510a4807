package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"sitemigrate/internal/config"
)

// Options selects the level, line format and destinations of a logger.
// Source locations are added at debug level or when Development is set.
type Options struct {
	Level       string
	Format      string
	OutputPaths []string
	Development bool
}

// New builds a logger from opts. Format is "console" (the default) or "json".
func New(opts Options) (*slog.Logger, error) {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(opts.Level))
	withSource := opts.Development || level.Level() <= slog.LevelDebug

	build := newConsoleHandler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "console":
	case "json":
		build = newJSONHandler
	default:
		return nil, fmt.Errorf("logging: unknown format %q", opts.Format)
	}

	out, err := openWriters(opts.OutputPaths)
	if err != nil {
		return nil, err
	}
	return slog.New(build(out, level, withSource)), nil
}

// NewFromConfig logs to stdout and to <log_dir>/<name>.log. Scan loops use
// their stage name ("scan-export"), workers use "worker". debug overrides
// the configured level.
func NewFromConfig(cfg *config.Config, name string, debug bool) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{})
	}
	opts := Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
	}
	if debug {
		opts.Level = "debug"
	}
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		if strings.TrimSpace(name) == "" {
			name = "sitemigrate"
		}
		opts.OutputPaths = append(opts.OutputPaths, filepath.Join(dir, name+".log"))
	}
	return New(opts)
}

// ParseLevel maps a configured level name onto a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openWriters resolves output targets. "stdout" and "stderr" name the
// standard streams; anything else is a file opened for append. Duplicates
// are written once.
func openWriters(targets []string) (io.Writer, error) {
	var writers []io.Writer
	opened := make(map[string]bool, len(targets))
	for _, target := range targets {
		target = strings.TrimSpace(target)
		if target == "" || opened[target] {
			continue
		}
		opened[target] = true
		w, err := openWriter(target)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func openWriter(target string) (io.Writer, error) {
	switch target {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("log output %s: %w", target, err)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("log output %s: %w", target, err)
	}
	return f, nil
}
