package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Create inserts a new active record in state init.
func (s *Store) Create(ctx context.Context, rec Record) (*Record, error) {
	linkID := strings.TrimSpace(rec.LinkID)
	siteID := strings.TrimSpace(rec.SiteID)
	if linkID == "" || siteID == "" {
		return nil, errors.New("create record: link_id and site_id are required")
	}
	files, err := encodeJSON(rec.Files)
	if err != nil {
		return nil, fmt.Errorf("encode files: %w", err)
	}
	notification, err := encodeJSON(rec.Notification)
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	workflow, err := encodeJSON(rec.Workflow)
	if err != nil {
		return nil, fmt.Errorf("encode workflow log: %w", err)
	}

	now := s.clock()
	_, err = s.exec(ctx, "create record",
		`INSERT INTO migration_records (link_id, site_id, state, active, target_site_id, files, workflow, zip_size, modified_at, modified_by, notification, started_by, title)
		 VALUES (?, ?, ?, 1, ?, ?, ?, 0, ?, ?, ?, ?, ?)`,
		linkID, siteID, string(StateInit), nullableString(rec.TargetSiteID), files, workflow,
		formatTime(now), nullableString(s.currentIdentity()), notification,
		nullableString(rec.StartedBy), nullableString(rec.Title),
	)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, linkID, siteID)
}

// Get returns the record for (linkID, siteID) or ErrNotFound.
func (s *Store) Get(ctx context.Context, linkID, siteID string) (*Record, error) {
	records, err := s.query(ctx, "get record",
		"SELECT "+recordColumns+" FROM migration_records WHERE link_id = ? AND site_id = ?",
		linkID, siteID,
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, linkID, siteID)
	}
	return records[0], nil
}

// List returns active records in state using the requested ordering. When
// expiryMinutes is positive each record's Expired flag reports whether
// uploaded_at + expiryMinutes lies in the past.
func (s *Store) List(ctx context.Context, state State, order OrderBy, expiryMinutes int) ([]*Record, error) {
	records, err := s.query(ctx, "list records",
		"SELECT "+recordColumns+" FROM migration_records WHERE active = 1 AND state = ? ORDER BY "+order.clause(),
		string(state),
	)
	if err != nil {
		return nil, err
	}
	if expiryMinutes > 0 {
		now := s.clock()
		window := time.Duration(expiryMinutes) * time.Minute
		for _, rec := range records {
			rec.Expired = !rec.UploadedAt.IsZero() && rec.UploadedAt.Add(window).Before(now)
		}
	}
	return records, nil
}

// ListAll returns every record, active or not, optionally filtered by state,
// most recently modified first.
func (s *Store) ListAll(ctx context.Context, states ...State) ([]*Record, error) {
	query := "SELECT " + recordColumns + " FROM migration_records"
	if len(states) > 0 {
		query += " WHERE state IN (" + makePlaceholders(len(states)) + ")"
	}
	query += " ORDER BY modified_at DESC, link_id ASC, site_id ASC"
	return s.query(ctx, "list all records", query, stateArgs(states)...)
}

// CountInState returns how many active records are in any of the given states.
func (s *Store) CountInState(ctx context.Context, states ...State) (int, error) {
	if len(states) == 0 {
		return 0, nil
	}
	return s.queryInt(ctx, "count records",
		"SELECT COUNT(*) FROM migration_records WHERE active = 1 AND state IN ("+makePlaceholders(len(states))+")",
		stateArgs(states)...,
	)
}

// ExistsActiveOther reports whether another active record for the same site
// under a different link currently holds the site. Paused and admin records
// hold it as well as the busy states.
func (s *Store) ExistsActiveOther(ctx context.Context, linkID, siteID string) (bool, error) {
	args := append([]any{siteID, linkID}, stateArgs(siteHoldingStates)...)
	count, err := s.queryInt(ctx, "check site ownership",
		"SELECT COUNT(*) FROM migration_records WHERE active = 1 AND site_id = ? AND link_id <> ? AND state IN ("+makePlaceholders(len(siteHoldingStates))+")",
		args...,
	)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
