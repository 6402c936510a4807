package logging

import (
	"context"
	"log/slog"

	"sitemigrate/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldLinkID identifies the migration request a record belongs to.
	FieldLinkID = "link_id"
	// FieldSiteID identifies the site being migrated.
	FieldSiteID = "site_id"
	// FieldStage is the pipeline stage or workflow step name.
	FieldStage = "stage"
	// FieldState is a record state.
	FieldState = "state"
	// FieldCorrelationID is the standardized structured logging key for correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields returns the record identity, stage and correlation id
// carried by ctx, in that order.
func ContextFields(ctx context.Context) []slog.Attr {
	sources := []struct {
		key    string
		lookup func(context.Context) (string, bool)
	}{
		{FieldLinkID, services.LinkIDFromContext},
		{FieldSiteID, services.SiteIDFromContext},
		{FieldStage, services.StageFromContext},
		{FieldCorrelationID, services.RequestIDFromContext},
	}
	var fields []slog.Attr
	for _, src := range sources {
		if value, ok := src.lookup(ctx); ok {
			fields = append(fields, slog.String(src.key, value))
		}
	}
	return fields
}

// WithContext binds the ContextFields of ctx to logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if fields := ContextFields(ctx); len(fields) > 0 {
		return logger.With(Args(fields...)...)
	}
	return logger
}
