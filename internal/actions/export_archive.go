package actions

import (
	"context"
	"fmt"
	"path/filepath"

	"sitemigrate/internal/config"
	"sitemigrate/internal/logging"
	"sitemigrate/internal/retry"
	"sitemigrate/internal/services"
	"sitemigrate/internal/workflow"
)

// ArchiveSource exports site archives.
type ArchiveSource interface {
	SiteSize(ctx context.Context, siteID string) (int64, error)
	Archive(ctx context.Context, siteID, dest string) (int64, error)
}

// ExportArchive downloads the site archive from the source platform.
type ExportArchive struct {
	Config *config.Config
	Source ArchiveSource
	Store  FileStore
}

// Run implements workflow.Action.
func (a *ExportArchive) Run(ctx context.Context, ac *workflow.ActionContext) error {
	siteID := ac.Record.SiteID
	dest := filepath.Join(ac.WorkDir, "export.zip")
	maxBytes := a.Config.Export.MaxArchiveBytes

	opts := retry.OptionsFromConfig(a.Config, "archive "+siteID, ac.Flags.Debug)
	opts.Logger = ac.Logger
	opts.Preflight = func(ctx context.Context) error {
		size, err := a.Source.SiteSize(ctx, siteID)
		if err != nil {
			return err
		}
		ac.Logger.Debug("archive size checked", logging.Int64("bytes", size), logging.Int64("limit", maxBytes))
		if maxBytes > 0 && size > maxBytes {
			return services.Wrap(services.ErrSizeExceeded, "export", "preflight",
				fmt.Sprintf("site is %d bytes, limit is %d", size, maxBytes), nil)
		}
		return nil
	}

	var written int64
	result, err := retry.Do(ctx, func(ctx context.Context, attempt int) error {
		n, err := a.Source.Archive(ctx, siteID, dest)
		if err != nil {
			return err
		}
		written = n
		return nil
	}, opts)
	if err != nil {
		return err
	}
	if !result.OK {
		return services.Wrap(services.ErrTransient, "export", "archive",
			fmt.Sprintf("gave up after %d attempts", result.Attempts), result.LastErr)
	}

	link := ac.Record.LinkID
	if err := a.Store.SetFile(ctx, link, siteID, FileExportZip, dest); err != nil {
		return err
	}
	if err := a.Store.SetZipSize(ctx, link, siteID, written); err != nil {
		return err
	}
	ac.Notef("exported %d bytes in %d attempt(s)", written, result.Attempts)
	return nil
}
