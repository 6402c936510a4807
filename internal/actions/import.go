package actions

import (
	"context"

	"sitemigrate/internal/services"
	"sitemigrate/internal/services/target"
	"sitemigrate/internal/workflow"
)

// Importer starts imports on the target platform.
type Importer interface {
	Login(ctx context.Context) (*target.Session, error)
	StartImport(ctx context.Context, s *target.Session, req target.ImportRequest) (string, error)
}

// TransferStore records the temporary transfer identifier.
type TransferStore interface {
	SetTransferSiteID(ctx context.Context, linkID, siteID, transferID string) error
}

// StartImport asks the target platform to import the uploaded artifact.
type StartImport struct {
	Target Importer
	Store  TransferStore
}

// Run implements workflow.Action.
func (a *StartImport) Run(ctx context.Context, ac *workflow.ActionContext) error {
	remote, ok := ac.Files()[FileRemoteZip]
	if !ok || remote == "" {
		return services.Wrap(services.ErrNotFound, "import", "start", "artifact has not been uploaded", nil)
	}
	session, err := a.Target.Login(ctx)
	if err != nil {
		return err
	}
	transferID, err := a.Target.StartImport(ctx, session, target.ImportRequest{
		SiteID:       ac.Record.SiteID,
		ArtifactKey:  remote,
		TargetSiteID: ac.String(workflow.FieldTargetSiteID),
		Title:        ac.String(workflow.FieldTitle),
	})
	if err != nil {
		return err
	}
	if err := a.Store.SetTransferSiteID(ctx, ac.Record.LinkID, ac.Record.SiteID, transferID); err != nil {
		return err
	}
	ac.Notef("import started as %s", transferID)
	return nil
}

// PropertySetter writes site properties on the source platform.
type PropertySetter interface {
	SetProperty(ctx context.Context, siteID, name, value string) error
}

// CrossReference records the imported site identifier on the source site.
type CrossReference struct {
	Source   PropertySetter
	Property string
}

// Run implements workflow.Action.
func (a *CrossReference) Run(ctx context.Context, ac *workflow.ActionContext) error {
	imported := ac.String(workflow.FieldImportedSiteID)
	if imported == "" {
		return services.Wrap(services.ErrValidation, "cross-reference", "set", "record has no imported site id", nil)
	}
	if err := a.Source.SetProperty(ctx, ac.Record.SiteID, a.Property, imported); err != nil {
		return err
	}
	ac.Notef("%s=%s", a.Property, imported)
	return nil
}
