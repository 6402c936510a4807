package testsupport

import (
	"context"
	"testing"

	"sitemigrate/internal/config"
	"sitemigrate/internal/migration"
)

// MustOpenStore opens a migration.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *migration.Store {
	t.Helper()

	store, err := migration.Open(cfg)
	if err != nil {
		t.Fatalf("migration.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRecord creates a record and moves it directly into state.
func NewRecord(t testing.TB, store *migration.Store, linkID, siteID string, state migration.State) *migration.Record {
	t.Helper()

	ctx := context.Background()
	if _, err := store.Create(ctx, migration.Record{LinkID: linkID, SiteID: siteID, StartedBy: "tester@example.com"}); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	if state != migration.StateInit {
		if err := store.Start(ctx, linkID, siteID, ""); err != nil {
			t.Fatalf("store.Start: %v", err)
		}
		if state != migration.StateStarting {
			if err := store.SetState(ctx, linkID, siteID, state, nil); err != nil {
				t.Fatalf("store.SetState: %v", err)
			}
		}
	}
	rec, err := store.Get(ctx, linkID, siteID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	return rec
}
