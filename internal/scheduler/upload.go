package scheduler

import (
	"os"

	"sitemigrate/internal/config"
	"sitemigrate/internal/migration"
)

// UploadStage admits transformed records into upload, smallest archive first.
func UploadStage(cfg *config.Config) Stage {
	key := cfg.Upload.ArtifactKey
	return Stage{
		Name:     "upload",
		Source:   migration.StateQueued,
		Order:    migration.OrderZipSize,
		Budget:   []migration.State{migration.StateUploading, migration.StateImporting},
		Admitted: migration.StateUploading,
		Workflow: cfg.Upload.Workflow,
		Max:      cfg.Upload.MaxJobs,
		Eligible: func(rec *migration.Record) (bool, string) {
			path, ok := rec.File(key)
			if !ok {
				return false, "artifact not recorded"
			}
			if _, err := os.Stat(path); err != nil {
				return false, "artifact missing on disk"
			}
			return true, ""
		},
	}
}
