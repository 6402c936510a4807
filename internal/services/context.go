package services

import "context"

type ctxKey int

const (
	keyLinkID ctxKey = iota
	keySiteID
	keyStage
	keyRequestID
)

func withString(ctx context.Context, key ctxKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key ctxKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, _ := ctx.Value(key).(string)
	return value, value != ""
}

// WithRecord attaches the link and site id of the record being processed.
// Blank ids are not stored.
func WithRecord(ctx context.Context, linkID, siteID string) context.Context {
	return withString(withString(ctx, keyLinkID, linkID), keySiteID, siteID)
}

func LinkIDFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, keyLinkID) }

func SiteIDFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, keySiteID) }

// WithStage attaches a scan loop or workflow step name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, keyStage, stage)
}

func StageFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, keyStage) }

// WithRequestID attaches a correlation id, typically a worker run id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, keyRequestID, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) { return stringFrom(ctx, keyRequestID) }
