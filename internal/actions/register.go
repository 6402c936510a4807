package actions

import (
	"context"

	"sitemigrate/internal/config"
	"sitemigrate/internal/migration"
	"sitemigrate/internal/services/source"
	"sitemigrate/internal/services/target"
	"sitemigrate/internal/workflow"
)

// Artifact keys recorded in a record's files map.
const (
	FileExportZip = "file-export-zip"
	FileRemoteZip = "remote-zip"
)

// FileStore records artifacts produced by a step.
type FileStore interface {
	SetFile(ctx context.Context, linkID, siteID, key, path string) error
	SetZipSize(ctx context.Context, linkID, siteID string, size int64) error
}

// Deps are the collaborators the actions need.
type Deps struct {
	Config  *config.Config
	Store   *migration.Store
	Source  *source.Client
	Target  *target.Client
	Objects Uploader
}

// Register adds every action in this package to reg.
func Register(reg *workflow.Registry, deps Deps) error {
	entries := []struct {
		name   string
		action workflow.Action
	}{
		{"export-archive", &ExportArchive{Config: deps.Config, Source: deps.Source, Store: deps.Store}},
		{"command", &Command{Config: deps.Config, Store: deps.Store}},
		{"upload-artifact", &UploadArtifact{ArtifactKey: deps.Config.Upload.ArtifactKey, Objects: deps.Objects, Store: deps.Store}},
		{"start-import", &StartImport{Target: deps.Target, Store: deps.Store}},
		{"cross-reference", &CrossReference{Source: deps.Source, Property: deps.Config.Import.CrossRefProperty}},
	}
	for _, e := range entries {
		if err := reg.Register(e.name, e.action); err != nil {
			return err
		}
	}
	return nil
}
