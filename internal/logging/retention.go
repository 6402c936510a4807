package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget is one directory of per-run or per-worker log files.
// An empty Pattern matches every regular file.
type RetentionTarget struct {
	Dir     string
	Pattern string
}

func (t RetentionTarget) glob() string {
	pattern := strings.TrimSpace(t.Pattern)
	if pattern == "" {
		pattern = "*"
	}
	return filepath.Join(t.Dir, pattern)
}

// CleanupOldLogs deletes matching files last modified more than retentionDays
// ago and reports how many went. retentionDays <= 0 keeps everything.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, target := range targets {
		if strings.TrimSpace(target.Dir) == "" {
			continue
		}
		matches, err := filepath.Glob(target.glob())
		if err != nil {
			logger.Debug("bad retention pattern", String("pattern", target.Pattern), Error(err))
			continue
		}
		for _, path := range matches {
			if expired(path, cutoff) && removeLog(logger, path) {
				removed++
			}
		}
	}
	return removed
}

func expired(path string, cutoff time.Time) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode().IsRegular() && info.ModTime().Before(cutoff)
}

func removeLog(logger *slog.Logger, path string) bool {
	if err := os.Remove(path); err != nil {
		WarnWithContext(logger, "could not prune old log", "log_retention_failed",
			String("path", path),
			Error(err),
			String(FieldErrorHint, "check permissions on paths.log_dir"),
			String(FieldImpact, "the file stays on disk until the next pass"),
		)
		return false
	}
	logger.Debug("pruned old log", String("path", path), String(FieldEventType, "log_pruned"))
	return true
}
