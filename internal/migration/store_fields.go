package migration

import (
	"context"
	"fmt"
)

// SetFiles replaces the record's artifact map.
func (s *Store) SetFiles(ctx context.Context, linkID, siteID string, files map[string]string) error {
	encoded, err := encodeJSON(files)
	if err != nil {
		return fmt.Errorf("encode files: %w", err)
	}
	return s.updateField(ctx, "set files", "files = ?", linkID, siteID, encoded)
}

// SetFile records one artifact path, keeping the others.
func (s *Store) SetFile(ctx context.Context, linkID, siteID, key, path string) error {
	rec, err := s.Get(ctx, linkID, siteID)
	if err != nil {
		return err
	}
	files := make(map[string]string, len(rec.Files)+1)
	for k, v := range rec.Files {
		files[k] = v
	}
	files[key] = path
	return s.SetFiles(ctx, linkID, siteID, files)
}

// SetZipSize records the exported archive size used for upload ordering.
func (s *Store) SetZipSize(ctx context.Context, linkID, siteID string, size int64) error {
	return s.updateField(ctx, "set zip size", "zip_size = ?", linkID, siteID, size)
}

// MarkUploaded stamps uploaded_at, which starts the import expiry window.
func (s *Store) MarkUploaded(ctx context.Context, linkID, siteID string) error {
	return s.updateField(ctx, "mark uploaded", "uploaded_at = ?", linkID, siteID, formatTime(s.clock()))
}

// SetTransferSiteID stores the temporary import id and clears any previously
// discovered imported_site_id so the import checker looks it up again.
func (s *Store) SetTransferSiteID(ctx context.Context, linkID, siteID, transferID string) error {
	return s.updateField(ctx, "set transfer site id", "transfer_site_id = ?, imported_site_id = NULL", linkID, siteID, nullableString(transferID))
}

// SetImportedSiteID assigns imported_site_id when it is still empty. It reports
// whether the value was written.
func (s *Store) SetImportedSiteID(ctx context.Context, linkID, siteID, importedID string) (bool, error) {
	affected, err := s.exec(ctx, "set imported site id",
		"UPDATE migration_records SET imported_site_id = ?, modified_at = ?, modified_by = ? WHERE link_id = ? AND site_id = ? AND (imported_site_id IS NULL OR imported_site_id = '')",
		nullableString(importedID), formatTime(s.clock()), nullableString(s.currentIdentity()), linkID, siteID,
	)
	if err != nil {
		return false, err
	}
	if affected == 0 {
		if _, err := s.Get(ctx, linkID, siteID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// SetTargetSiteID records the site the import should land in.
func (s *Store) SetTargetSiteID(ctx context.Context, linkID, siteID, targetID string) error {
	return s.updateField(ctx, "set target site id", "target_site_id = ?", linkID, siteID, nullableString(targetID))
}

// SetActive toggles whether scan loops consider the record.
func (s *Store) SetActive(ctx context.Context, linkID, siteID string, active bool) error {
	return s.updateField(ctx, "set active", "active = ?", linkID, siteID, boolToInt(active))
}

func (s *Store) updateField(ctx context.Context, op, assignment, linkID, siteID string, value any) error {
	affected, err := s.exec(ctx, op,
		"UPDATE migration_records SET "+assignment+", modified_at = ?, modified_by = ? WHERE link_id = ? AND site_id = ?",
		value, formatTime(s.clock()), nullableString(s.currentIdentity()), linkID, siteID,
	)
	if err != nil {
		return err
	}
	return s.requireRow(ctx, affected, linkID, siteID)
}
