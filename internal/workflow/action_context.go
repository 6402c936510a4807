package workflow

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"sitemigrate/internal/migration"
	"sitemigrate/internal/runlog"
)

// ActionContext is what a step hands to its action.
type ActionContext struct {
	Record  *migration.Record
	Step    Step
	Fields  map[string]any
	Flags   Flags
	Logger  *slog.Logger
	WorkDir string
	RunID   string

	runLog *runlog.Log
	note   string
}

// Notef sets the text recorded with the step's log entry.
func (ac *ActionContext) Notef(format string, args ...any) {
	ac.note = fmt.Sprintf(format, args...)
}

// Note returns the text set by Notef.
func (ac *ActionContext) Note() string { return ac.note }

// Output returns a writer for external module output. Lines starting with
// ERROR count as failure markers for generic actions.
func (ac *ActionContext) Output(prefix string) io.Writer {
	if ac.runLog == nil {
		return io.Discard
	}
	return ac.runLog.Writer(prefix)
}

// String returns a declared context field as text.
func (ac *ActionContext) String(field string) string {
	switch v := ac.Fields[field].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Files returns the declared files field.
func (ac *ActionContext) Files() map[string]string {
	if files, ok := ac.Fields[FieldFiles].(map[string]string); ok {
		return files
	}
	return map[string]string{}
}

// Param returns a step parameter as text.
func (ac *ActionContext) Param(name string) string {
	switch v := ac.Step.Params[name].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// ParamInt returns a step parameter as an integer, or def when absent.
func (ac *ActionContext) ParamInt(name string, def int) int {
	switch v := ac.Step.Params[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func contextFields(rec *migration.Record, names []string, runTimestamp time.Time) map[string]any {
	fields := make(map[string]any, len(names))
	for _, name := range names {
		switch name {
		case FieldSiteID:
			fields[name] = rec.SiteID
		case FieldLinkID:
			fields[name] = rec.LinkID
		case FieldRunTimestamp:
			fields[name] = runTimestamp.UTC().Format("20060102T150405Z")
		case FieldTransferSiteID:
			fields[name] = rec.TransferSiteID
		case FieldImportedSiteID:
			fields[name] = rec.ImportedSiteID
		case FieldTargetSiteID:
			fields[name] = rec.TargetSiteID
		case FieldStartedBy:
			fields[name] = rec.StartedBy
		case FieldTitle:
			fields[name] = rec.Title
		case FieldFiles:
			files := make(map[string]string, len(rec.Files))
			for k, v := range rec.Files {
				files[k] = v
			}
			fields[name] = files
		case FieldZipSize:
			fields[name] = rec.ZipSize
		}
	}
	return fields
}
