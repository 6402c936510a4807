package testsupport

import (
	"path/filepath"
	"testing"

	"sitemigrate/internal/config"
)

// ConfigOption adjusts a generated test config.
type ConfigOption func(*config.Config)

// NewConfig returns defaults rooted in a fresh temp dir. Remote endpoints
// stay empty and retry delays are zero, so nothing in a test sleeps or dials out.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(root, "data")
	cfg.Paths.WorkDir = filepath.Join(root, "work")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	cfg.Paths.FlagDir = filepath.Join(root, "run")
	cfg.Store.Path = filepath.Join(cfg.Paths.DataDir, "records.db")
	cfg.Scheduler.Identity = "test"
	cfg.Retry.DelaySeconds, cfg.Retry.InteractiveDelaySeconds = 0, 0

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithCeilings sets the export and upload max_jobs.
func WithCeilings(export, upload int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Export.MaxJobs, cfg.Upload.MaxJobs = export, upload
	}
}

func WithExpiryMinutes(minutes int) ConfigOption {
	return func(cfg *config.Config) { cfg.Import.ExpiryMinutes = minutes }
}
