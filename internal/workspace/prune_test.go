package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sitemigrate/internal/migration"
	"sitemigrate/internal/testsupport"
)

func TestPruneInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := Prune(context.Background(), dir, time.Hour, nil, nil)
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func mkdirAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func TestPruneKeepsRecentAndBusyDirectories(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewRecord(t, store, "L", "busy", migration.StateQueued)
	testsupport.NewRecord(t, store, "L", "done", migration.StateCompleted)

	busy := cfg.SiteWorkDir("L", "busy")
	done := cfg.SiteWorkDir("L", "done")
	recent := cfg.SiteWorkDir("L", "recent")
	mkdirAged(t, busy, 48*time.Hour)
	mkdirAged(t, done, 48*time.Hour)
	mkdirAged(t, recent, time.Minute)

	inUse, err := InUse(ctx, cfg, store)
	if err != nil {
		t.Fatalf("InUse: %v", err)
	}
	result := Prune(ctx, cfg.Paths.WorkDir, 24*time.Hour, inUse, nil)
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	if len(result.Removed) != 1 || filepath.Clean(result.Removed[0]) != filepath.Clean(done) {
		t.Fatalf("expected only the completed record's directory removed, got %v", result.Removed)
	}
	for _, keep := range []string{busy, recent} {
		if _, err := os.Stat(keep); err != nil {
			t.Fatalf("expected %s to survive: %v", keep, err)
		}
	}
}
