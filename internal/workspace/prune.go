// Package workspace manages the per-site scratch directories under the work dir.
package workspace

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sitemigrate/internal/config"
	"sitemigrate/internal/logging"
	"sitemigrate/internal/migration"
)

// PruneResult contains the outcome of a prune.
type PruneResult struct {
	Removed []string
	Errors  []PruneError
}

// PruneError pairs a directory path with its removal error.
type PruneError struct {
	Path  string
	Error error
}

// Lister is the record store subset Prune needs.
type Lister interface {
	ListAll(ctx context.Context, states ...migration.State) ([]*migration.Record, error)
}

// InUse returns the work directories that belong to records still in the
// pipeline.
func InUse(ctx context.Context, cfg *config.Config, store Lister) (map[string]struct{}, error) {
	records, err := store.ListAll(ctx, migration.BusyStates()...)
	if err != nil {
		return nil, err
	}
	dirs := make(map[string]struct{}, len(records))
	for _, rec := range records {
		dirs[filepath.Clean(cfg.SiteWorkDir(rec.LinkID, rec.SiteID))] = struct{}{}
	}
	return dirs, nil
}

// Prune removes directories under workDir older than maxAge unless they are
// in inUse.
func Prune(ctx context.Context, workDir string, maxAge time.Duration, inUse map[string]struct{}, logger *slog.Logger) PruneResult {
	result := PruneResult{}
	if logger == nil {
		logger = logging.NewNop()
	}

	workDir = strings.TrimSpace(workDir)
	if workDir == "" || maxAge <= 0 {
		return result
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, PruneError{Path: workDir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() {
			continue
		}
		dirPath := filepath.Join(workDir, entry.Name())
		if _, busy := inUse[filepath.Clean(dirPath)]; busy {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, PruneError{Path: dirPath, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, PruneError{Path: dirPath, Error: err})
			logging.WarnWithContext(logger, "failed to remove stale work directory", "workspace_prune_failed",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check work_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		logger.Info("removed stale work directory",
			logging.String("path", dirPath),
			logging.Duration("age", time.Since(info.ModTime()).Round(time.Minute)),
			logging.String(logging.FieldEventType, "workspace_prune"),
		)
	}
	return result
}
