package actions

import (
	"context"
	"fmt"
	"path/filepath"

	"sitemigrate/internal/services"
	"sitemigrate/internal/workflow"
)

// Uploader stores artifacts in object storage.
type Uploader interface {
	Key(linkID, siteID, name string) string
	Upload(ctx context.Context, key, localPath string) error
}

// UploadStore records the upload.
type UploadStore interface {
	SetFile(ctx context.Context, linkID, siteID, key, path string) error
	MarkUploaded(ctx context.Context, linkID, siteID string) error
}

// UploadArtifact pushes the transformed archive to object storage.
type UploadArtifact struct {
	ArtifactKey string
	Objects     Uploader
	Store       UploadStore
}

// Run implements workflow.Action.
func (a *UploadArtifact) Run(ctx context.Context, ac *workflow.ActionContext) error {
	if a.Objects == nil {
		return services.Wrap(services.ErrConfiguration, "upload", "init", "object storage not configured", nil)
	}
	local, ok := ac.Files()[a.ArtifactKey]
	if !ok || local == "" {
		return services.Wrap(services.ErrNotFound, "upload", a.ArtifactKey, "artifact not recorded", nil)
	}
	link, site := ac.Record.LinkID, ac.Record.SiteID
	key := a.Objects.Key(link, site, filepath.Base(local))
	if err := a.Objects.Upload(ctx, key, local); err != nil {
		return err
	}
	if err := a.Store.SetFile(ctx, link, site, FileRemoteZip, key); err != nil {
		return err
	}
	if err := a.Store.MarkUploaded(ctx, link, site); err != nil {
		return err
	}
	ac.Notef("uploaded %s", key)
	return nil
}

// UnavailableUploader fails every upload with the error that prevented the
// object store client from being built.
type UnavailableUploader struct {
	Err error
}

// Key implements Uploader.
func (u UnavailableUploader) Key(linkID, siteID, name string) string {
	return filepath.Join(linkID, siteID, name)
}

// Upload implements Uploader.
func (u UnavailableUploader) Upload(context.Context, string, string) error {
	return fmt.Errorf("object storage unavailable: %w", u.Err)
}
