package migration

import (
	"errors"
	"fmt"

	"sitemigrate/internal/services"
)

var (
	// ErrStoreUnavailable marks any failure to complete a store operation.
	ErrStoreUnavailable = errors.New("record store unavailable")
	// ErrNotFound is returned when no record matches (link_id, site_id).
	ErrNotFound = fmt.Errorf("migration record %w", services.ErrNotFound)
	// ErrStateConflict is returned when a guarded update finds the record in an unexpected state.
	ErrStateConflict = errors.New("record state changed concurrently")
	// ErrInvalidState is returned for transitions that are not allowed.
	ErrInvalidState = errors.New("invalid state transition")
)

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
