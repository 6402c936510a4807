package scheduler

import (
	"sitemigrate/internal/config"
	"sitemigrate/internal/migration"
)

// ExportStage admits started records into export.
func ExportStage(cfg *config.Config) Stage {
	return Stage{
		Name:     "export",
		Source:   migration.StateStarting,
		Order:    migration.OrderStartedAt,
		Budget:   []migration.State{migration.StateExporting, migration.StateRunning},
		Admitted: migration.StateExporting,
		Workflow: cfg.Export.Workflow,
		Max:      cfg.Export.MaxJobs,
	}
}
