package migration_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"sitemigrate/internal/migration"
	"sitemigrate/internal/testsupport"
)

func TestOpenAppliesMigrationsAndCreates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	rec, err := store.Create(ctx, migration.Record{
		LinkID:       "L1",
		SiteID:       "S1",
		Title:        "Example site",
		StartedBy:    "owner@example.com",
		Notification: []string{"team@example.com"},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if rec.State != migration.StateInit || !rec.Active {
		t.Fatalf("unexpected new record: %+v", rec)
	}
	if rec.ModifiedBy != "test" {
		t.Fatalf("expected modified_by from identity, got %q", rec.ModifiedBy)
	}
	if len(rec.Notification) != 1 || rec.Notification[0] != "team@example.com" {
		t.Fatalf("unexpected notification list: %v", rec.Notification)
	}

	// Reopening must not reapply migrations.
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	reopened := testsupport.MustOpenStore(t, cfg)
	if _, err := reopened.Get(ctx, "L1", "S1"); err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	_, err := store.Get(context.Background(), "nope", "nope")
	if !errors.Is(err, migration.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateDuplicateIsStoreUnavailable(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	if _, err := store.Create(ctx, migration.Record{LinkID: "L1", SiteID: "S1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_, err := store.Create(ctx, migration.Record{LinkID: "L1", SiteID: "S1"})
	if !errors.Is(err, migration.ErrStoreUnavailable) {
		t.Fatalf("expected constraint violation to be store unavailable, got %v", err)
	}
}

func TestListOrdering(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sizes := map[string]int64{"A": 500, "B": 100, "C": 300}
	for i, site := range []string{"A", "B", "C"} {
		store.SetClock(func() time.Time { return base.Add(time.Duration(i) * time.Minute) })
		testsupport.NewRecord(t, store, "L", site, migration.StateQueued)
		if err := store.SetZipSize(ctx, "L", site, sizes[site]); err != nil {
			t.Fatalf("SetZipSize failed: %v", err)
		}
	}
	testsupport.NewRecord(t, store, "L", "inactive", migration.StateQueued)
	if err := store.SetActive(ctx, "L", "inactive", false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	byStart, err := store.List(ctx, migration.StateQueued, migration.OrderStartedAt, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if got := siteIDs(byStart); got != "A,B,C" {
		t.Fatalf("unexpected started_at order: %s", got)
	}

	bySize, err := store.List(ctx, migration.StateQueued, migration.OrderZipSize, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if got := siteIDs(bySize); got != "B,C,A" {
		t.Fatalf("unexpected zip_size order: %s", got)
	}
}

func TestListComputesExpiry(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	testsupport.NewRecord(t, store, "L", "old", migration.StateImporting)
	testsupport.NewRecord(t, store, "L", "new", migration.StateImporting)
	testsupport.NewRecord(t, store, "L", "never", migration.StateImporting)

	store.SetClock(func() time.Time { return now.Add(-2 * time.Hour) })
	if err := store.MarkUploaded(ctx, "L", "old"); err != nil {
		t.Fatalf("MarkUploaded failed: %v", err)
	}
	store.SetClock(func() time.Time { return now.Add(-10 * time.Minute) })
	if err := store.MarkUploaded(ctx, "L", "new"); err != nil {
		t.Fatalf("MarkUploaded failed: %v", err)
	}
	store.SetClock(func() time.Time { return now })

	records, err := store.List(ctx, migration.StateImporting, migration.OrderStartedAt, 60)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	expired := map[string]bool{}
	for _, rec := range records {
		expired[rec.SiteID] = rec.Expired
	}
	if !expired["old"] || expired["new"] || expired["never"] {
		t.Fatalf("unexpected expiry flags: %v", expired)
	}

	records, err = store.List(ctx, migration.StateImporting, migration.OrderStartedAt, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for _, rec := range records {
		if rec.Expired {
			t.Fatalf("expiry must not be computed without a window: %s", rec.SiteID)
		}
	}
}

func TestCountInStateSumsStates(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewRecord(t, store, "L", "1", migration.StateUploading)
	testsupport.NewRecord(t, store, "L", "2", migration.StateImporting)
	testsupport.NewRecord(t, store, "L", "3", migration.StateImporting)
	testsupport.NewRecord(t, store, "L", "4", migration.StateQueued)

	count, err := store.CountInState(ctx, migration.StateUploading, migration.StateImporting)
	if err != nil {
		t.Fatalf("CountInState failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3, got %d", count)
	}
	if count, _ := store.CountInState(ctx); count != 0 {
		t.Fatalf("expected 0 for no states, got %d", count)
	}
}

func TestExistsActiveOther(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.NewRecord(t, store, "L1", "S", migration.StateStarting)
	testsupport.NewRecord(t, store, "L2", "S", migration.StateStarting)

	busy, err := store.ExistsActiveOther(ctx, "L1", "S")
	if err != nil {
		t.Fatalf("ExistsActiveOther failed: %v", err)
	}
	if busy {
		t.Fatal("records in starting must not hold the site")
	}

	if err := store.SetState(ctx, "L2", "S", migration.StateExporting, nil); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}
	if busy, _ = store.ExistsActiveOther(ctx, "L1", "S"); !busy {
		t.Fatal("expected exporting record under another link to hold the site")
	}
	if busy, _ = store.ExistsActiveOther(ctx, "L2", "S"); busy {
		t.Fatal("a record must not conflict with itself")
	}

	if err := store.SetActive(ctx, "L2", "S", false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	if busy, _ = store.ExistsActiveOther(ctx, "L1", "S"); busy {
		t.Fatal("inactive records must not hold the site")
	}
}

func TestRestStatesStillHoldTheSite(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	for _, rest := range []migration.State{migration.StatePaused, migration.StateAdmin} {
		t.Run(string(rest), func(t *testing.T) {
			site := "S-" + string(rest)
			testsupport.NewRecord(t, store, "L1", site, migration.StateUploading)
			testsupport.NewRecord(t, store, "L2", site, migration.StateStarting)
			if err := store.SetState(ctx, "L1", site, rest, nil); err != nil {
				t.Fatalf("SetState failed: %v", err)
			}
			held, err := store.ExistsActiveOther(ctx, "L2", site)
			if err != nil {
				t.Fatalf("ExistsActiveOther failed: %v", err)
			}
			if !held {
				t.Fatalf("a %s record under another link must hold the site", rest)
			}
		})
	}
}

func TestSetStatePersistsLog(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewRecord(t, store, "L", "S", migration.StateExporting)

	log := migration.Log{}.Append("export-archive", migration.OutcomeOK, "archive written")
	if err := store.SetState(ctx, "L", "S", migration.StateRunning, log); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}
	if err := store.SetState(ctx, "L", "S", migration.StateQueued, nil); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}
	rec, err := store.Get(ctx, "L", "S")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.State != migration.StateQueued {
		t.Fatalf("unexpected state %s", rec.State)
	}
	if len(rec.Workflow) != 1 || rec.Workflow[0].Step != "export-archive" {
		t.Fatalf("expected log preserved when nil passed, got %+v", rec.Workflow)
	}

	if err := store.SetState(ctx, "missing", "S", migration.StateQueued, nil); !errors.Is(err, migration.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing record, got %v", err)
	}
}

func TestAdmitIsGuardedBySourceState(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewRecord(t, store, "L", "S", migration.StateStarting)

	if err := store.Admit(ctx, "L", "S", migration.StateStarting, migration.StateExporting, nil); err != nil {
		t.Fatalf("first Admit failed: %v", err)
	}
	err := store.Admit(ctx, "L", "S", migration.StateStarting, migration.StateExporting, nil)
	if !errors.Is(err, migration.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict on second admission, got %v", err)
	}
}

func TestImportedSiteIDAssignedOnce(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewRecord(t, store, "L", "S", migration.StateImporting)

	if err := store.SetTransferSiteID(ctx, "L", "S", "tmp-1"); err != nil {
		t.Fatalf("SetTransferSiteID failed: %v", err)
	}
	assigned, err := store.SetImportedSiteID(ctx, "L", "S", "imp-1")
	if err != nil || !assigned {
		t.Fatalf("expected first assignment, got assigned=%v err=%v", assigned, err)
	}
	assigned, err = store.SetImportedSiteID(ctx, "L", "S", "imp-2")
	if err != nil || assigned {
		t.Fatalf("expected second assignment to be refused, got assigned=%v err=%v", assigned, err)
	}
	rec, _ := store.Get(ctx, "L", "S")
	if rec.ImportedSiteID != "imp-1" {
		t.Fatalf("imported id changed: %q", rec.ImportedSiteID)
	}

	if err := store.SetTransferSiteID(ctx, "L", "S", "tmp-2"); err != nil {
		t.Fatalf("SetTransferSiteID failed: %v", err)
	}
	rec, _ = store.Get(ctx, "L", "S")
	if rec.ImportedSiteID != "" || rec.TransferSiteID != "tmp-2" {
		t.Fatalf("expected transfer reset to clear imported id, got %+v", rec)
	}
}

func TestFailureRetryAndRestStates(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewRecord(t, store, "L", "S", migration.StateRunning)

	if err := store.Retry(ctx, "L", "S"); !errors.Is(err, migration.ErrInvalidState) {
		t.Fatalf("expected retry of a running record to fail, got %v", err)
	}
	if err := store.SetFailure(ctx, "L", "S", "command", "exit status 2", nil); err != nil {
		t.Fatalf("SetFailure failed: %v", err)
	}
	rec, _ := store.Get(ctx, "L", "S")
	if rec.State != migration.StateError || rec.FailureType != "command" {
		t.Fatalf("unexpected failed record: %+v", rec)
	}
	if err := store.Retry(ctx, "L", "S"); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	rec, _ = store.Get(ctx, "L", "S")
	if rec.State != migration.StateStarting || rec.FailureType != "" || rec.FailureDetail != "" {
		t.Fatalf("unexpected retried record: %+v", rec)
	}

	if err := store.SetRestState(ctx, "L", "S", migration.StateQueued); !errors.Is(err, migration.ErrInvalidState) {
		t.Fatalf("expected non-rest state to be refused, got %v", err)
	}
	if err := store.SetRestState(ctx, "L", "S", migration.StatePaused); err != nil {
		t.Fatalf("SetRestState failed: %v", err)
	}
	if err := store.Resume(ctx, "L", "S", migration.StateStarting); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if err := store.Resume(ctx, "L", "S", migration.StateStarting); !errors.Is(err, migration.ErrInvalidState) {
		t.Fatalf("expected resume of a non-rest record to fail, got %v", err)
	}
}

func TestSetFileMergesArtifacts(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewRecord(t, store, "L", "S", migration.StateRunning)

	if err := store.SetFile(ctx, "L", "S", "file-export-zip", "/tmp/export.zip"); err != nil {
		t.Fatalf("SetFile failed: %v", err)
	}
	if err := store.SetFile(ctx, "L", "S", "file-fixed-zip", "/tmp/fixed.zip"); err != nil {
		t.Fatalf("SetFile failed: %v", err)
	}
	rec, _ := store.Get(ctx, "L", "S")
	if len(rec.Files) != 2 {
		t.Fatalf("expected both artifacts, got %v", rec.Files)
	}
	if path, ok := rec.File("file-fixed-zip"); !ok || path != "/tmp/fixed.zip" {
		t.Fatalf("unexpected fixed zip: %q %v", path, ok)
	}
}

func siteIDs(records []*migration.Record) string {
	out := ""
	for i, rec := range records {
		if i > 0 {
			out += ","
		}
		out += rec.SiteID
	}
	return out
}
