package migration

import (
	"context"
	"fmt"
)

// SetState persists a new state together with the workflow log. A nil log
// leaves the stored log untouched.
func (s *Store) SetState(ctx context.Context, linkID, siteID string, state State, log Log) error {
	workflow, err := encodeJSON(log)
	if err != nil {
		return fmt.Errorf("encode workflow log: %w", err)
	}
	affected, err := s.exec(ctx, "set state",
		"UPDATE migration_records SET state = ?, modified_at = ?, modified_by = ?, workflow = COALESCE(?, workflow) WHERE link_id = ? AND site_id = ?",
		string(state), formatTime(s.clock()), nullableString(s.currentIdentity()), workflow, linkID, siteID,
	)
	if err != nil {
		return err
	}
	return s.requireRow(ctx, affected, linkID, siteID)
}

// Admit moves a record from one state to another only if it is still in from.
// ErrStateConflict reports that another process moved it first.
func (s *Store) Admit(ctx context.Context, linkID, siteID string, from, to State, log Log) error {
	workflow, err := encodeJSON(log)
	if err != nil {
		return fmt.Errorf("encode workflow log: %w", err)
	}
	affected, err := s.exec(ctx, "admit record",
		"UPDATE migration_records SET state = ?, modified_at = ?, modified_by = ?, workflow = COALESCE(?, workflow) WHERE link_id = ? AND site_id = ? AND state = ? AND active = 1",
		string(to), formatTime(s.clock()), nullableString(s.currentIdentity()), workflow, linkID, siteID, string(from),
	)
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := s.Get(ctx, linkID, siteID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s/%s no longer %s", ErrStateConflict, linkID, siteID, from)
	}
	return nil
}

// Start makes an init record visible to the export scan loop.
func (s *Store) Start(ctx context.Context, linkID, siteID, startedBy string) error {
	now := s.clock()
	affected, err := s.exec(ctx, "start record",
		"UPDATE migration_records SET state = ?, started_at = ?, started_by = COALESCE(?, started_by), modified_at = ?, modified_by = ? WHERE link_id = ? AND site_id = ? AND state = ?",
		string(StateStarting), formatTime(now), nullableString(startedBy), formatTime(now), nullableString(s.currentIdentity()),
		linkID, siteID, string(StateInit),
	)
	if err != nil {
		return err
	}
	if affected == 0 {
		rec, err := s.Get(ctx, linkID, siteID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s is %s, not %s", ErrInvalidState, rec.Key(), rec.State, StateInit)
	}
	return nil
}

// SetFailure moves a record to error with its failure classification.
func (s *Store) SetFailure(ctx context.Context, linkID, siteID, failureType, detail string, log Log) error {
	workflow, err := encodeJSON(log)
	if err != nil {
		return fmt.Errorf("encode workflow log: %w", err)
	}
	affected, err := s.exec(ctx, "set failure",
		"UPDATE migration_records SET state = ?, failure_type = ?, failure_detail = ?, modified_at = ?, modified_by = ?, workflow = COALESCE(?, workflow) WHERE link_id = ? AND site_id = ?",
		string(StateError), nullableString(failureType), nullableString(detail), formatTime(s.clock()),
		nullableString(s.currentIdentity()), workflow, linkID, siteID,
	)
	if err != nil {
		return err
	}
	return s.requireRow(ctx, affected, linkID, siteID)
}

// Retry returns a failed record to starting and clears its failure fields.
func (s *Store) Retry(ctx context.Context, linkID, siteID string) error {
	now := s.clock()
	affected, err := s.exec(ctx, "retry record",
		"UPDATE migration_records SET state = ?, failure_type = NULL, failure_detail = NULL, started_at = ?, modified_at = ?, modified_by = ? WHERE link_id = ? AND site_id = ? AND state = ?",
		string(StateStarting), formatTime(now), formatTime(now), nullableString(s.currentIdentity()),
		linkID, siteID, string(StateError),
	)
	if err != nil {
		return err
	}
	if affected == 0 {
		rec, err := s.Get(ctx, linkID, siteID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s is %s, only %s records can be retried", ErrInvalidState, rec.Key(), rec.State, StateError)
	}
	return nil
}

// SetRestState parks a record in an operator rest state (paused or admin).
func (s *Store) SetRestState(ctx context.Context, linkID, siteID string, state State) error {
	if !state.IsRest() {
		return fmt.Errorf("%w: %s is not a rest state", ErrInvalidState, state)
	}
	return s.SetState(ctx, linkID, siteID, state, nil)
}

// Resume moves a record out of a rest state into to.
func (s *Store) Resume(ctx context.Context, linkID, siteID string, to State) error {
	if to.IsRest() || to == "" {
		return fmt.Errorf("%w: cannot resume into %q", ErrInvalidState, to)
	}
	affected, err := s.exec(ctx, "resume record",
		"UPDATE migration_records SET state = ?, modified_at = ?, modified_by = ? WHERE link_id = ? AND site_id = ? AND state IN (?, ?)",
		string(to), formatTime(s.clock()), nullableString(s.currentIdentity()), linkID, siteID,
		string(StatePaused), string(StateAdmin),
	)
	if err != nil {
		return err
	}
	if affected == 0 {
		rec, err := s.Get(ctx, linkID, siteID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s is %s, not a rest state", ErrInvalidState, rec.Key(), rec.State)
	}
	return nil
}
