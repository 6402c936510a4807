package migration

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const recordColumns = "link_id, site_id, state, active, failure_type, failure_detail, transfer_site_id, imported_site_id, target_site_id, files, workflow, zip_size, started_at, uploaded_at, modified_at, modified_by, notification, started_by, title"

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		linkID         string
		siteID         string
		state          string
		active         sql.NullInt64
		failureType    sql.NullString
		failureDetail  sql.NullString
		transferSiteID sql.NullString
		importedSiteID sql.NullString
		targetSiteID   sql.NullString
		files          sql.NullString
		workflow       sql.NullString
		zipSize        sql.NullInt64
		startedAt      sql.NullString
		uploadedAt     sql.NullString
		modifiedAt     sql.NullString
		modifiedBy     sql.NullString
		notification   sql.NullString
		startedBy      sql.NullString
		title          sql.NullString
	)
	if err := scanner.Scan(
		&linkID,
		&siteID,
		&state,
		&active,
		&failureType,
		&failureDetail,
		&transferSiteID,
		&importedSiteID,
		&targetSiteID,
		&files,
		&workflow,
		&zipSize,
		&startedAt,
		&uploadedAt,
		&modifiedAt,
		&modifiedBy,
		&notification,
		&startedBy,
		&title,
	); err != nil {
		return nil, err
	}

	rec := &Record{
		LinkID:         linkID,
		SiteID:         siteID,
		State:          State(state),
		Active:         active.Valid && active.Int64 != 0,
		FailureType:    failureType.String,
		FailureDetail:  failureDetail.String,
		TransferSiteID: transferSiteID.String,
		ImportedSiteID: importedSiteID.String,
		TargetSiteID:   targetSiteID.String,
		ZipSize:        zipSize.Int64,
		ModifiedBy:     modifiedBy.String,
		StartedBy:      startedBy.String,
		Title:          title.String,
		StartedAt:      parseTimeString(startedAt.String),
		UploadedAt:     parseTimeString(uploadedAt.String),
		ModifiedAt:     parseTimeString(modifiedAt.String),
	}
	if err := decodeJSON(files.String, &rec.Files); err != nil {
		return nil, fmt.Errorf("decode files for %s/%s: %w", linkID, siteID, err)
	}
	if err := decodeJSON(workflow.String, &rec.Workflow); err != nil {
		return nil, fmt.Errorf("decode workflow log for %s/%s: %w", linkID, siteID, err)
	}
	if err := decodeJSON(notification.String, &rec.Notification); err != nil {
		return nil, fmt.Errorf("decode notification for %s/%s: %w", linkID, siteID, err)
	}
	if rec.Files == nil {
		rec.Files = map[string]string{}
	}
	return rec, nil
}

func decodeJSON(raw string, dest any) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dest)
}

func encodeJSON(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case Log:
		if len(v) == 0 {
			return nil, nil
		}
	case map[string]string:
		if len(v) == 0 {
			return nil, nil
		}
	case []string:
		if len(v) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stateArgs(states []State) []any {
	out := make([]any, 0, len(states))
	for _, state := range states {
		out = append(out, string(state))
	}
	return out
}
