package scheduler_test

import (
	"context"
	"fmt"
	"testing"

	"sitemigrate/internal/migration"
	"sitemigrate/internal/scheduler"
	"sitemigrate/internal/testsupport"
)

// unavailableStore fails the reads a pass starts with and counts admissions.
type unavailableStore struct {
	*migration.Store
	failCount bool
	failList  bool
	admits    int
}

func (s *unavailableStore) CountInState(ctx context.Context, states ...migration.State) (int, error) {
	if s.failCount {
		return 0, fmt.Errorf("%w: database is locked", migration.ErrStoreUnavailable)
	}
	return s.Store.CountInState(ctx, states...)
}

func (s *unavailableStore) List(ctx context.Context, state migration.State, order migration.OrderBy, expiryMinutes int) ([]*migration.Record, error) {
	if s.failList {
		return nil, fmt.Errorf("%w: connection refused", migration.ErrStoreUnavailable)
	}
	return s.Store.List(ctx, state, order, expiryMinutes)
}

func (s *unavailableStore) Admit(ctx context.Context, linkID, siteID string, from, to migration.State, log migration.Log) error {
	s.admits++
	return s.Store.Admit(ctx, linkID, siteID, from, to, log)
}

func TestAdmissionSkipsPassWhenStoreUnavailable(t *testing.T) {
	cases := []struct {
		name      string
		stage     func(h *harness) scheduler.Stage
		state     migration.State
		failCount bool
		failList  bool
	}{
		{"export count", func(h *harness) scheduler.Stage { return scheduler.ExportStage(h.cfg) }, migration.StateStarting, true, false},
		{"export list", func(h *harness) scheduler.Stage { return scheduler.ExportStage(h.cfg) }, migration.StateStarting, false, true},
		{"upload count", func(h *harness) scheduler.Stage { return scheduler.UploadStage(h.cfg) }, migration.StateQueued, true, false},
		{"upload list", func(h *harness) scheduler.Stage { return scheduler.UploadStage(h.cfg) }, migration.StateQueued, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, testsupport.WithCeilings(3, 3))
			if tc.state == migration.StateQueued {
				queuedWithArtifact(t, h, "L", "s1", 10, true)
			} else {
				testsupport.NewRecord(t, h.store, "L", "s1", tc.state)
			}
			store := &unavailableStore{Store: h.store, failCount: tc.failCount, failList: tc.failList}
			deps := h.deps
			deps.Store = store

			stage := tc.stage(h)
			result := scheduler.NewAdmission(stage, deps).Pass(context.Background())
			if result.Outcome != scheduler.OutcomeSkipped || result.Admitted != 0 {
				t.Fatalf("expected skipped pass, got %+v", result)
			}
			if store.admits != 0 || len(h.spawner.calls) != 0 {
				t.Fatalf("expected no admissions, got admits=%d spawns=%d", store.admits, len(h.spawner.calls))
			}
			if got := h.state(t, "L", "s1"); got != tc.state {
				t.Fatalf("record moved to %s", got)
			}
			if got := counterValue(t, h.metrics.Passes.WithLabelValues(stage.Name, "skipped")); got != 1 {
				t.Fatalf("expected skipped metric, got %v", got)
			}
		})
	}
}

func TestImportCheckerSkipsPassWhenStoreUnavailable(t *testing.T) {
	h := newHarness(t)
	importing(t, h, "L", "done", "t-done")
	tgt := newFakeTarget()
	tgt.statuses["t-done"] = "completed"
	store := &unavailableStore{Store: h.store, failList: true}

	result := scheduler.NewImportChecker(h.cfg.Import, store, tgt, &fakeSource{}, h.deps).Pass(context.Background())
	if result.Outcome != scheduler.OutcomeSkipped {
		t.Fatalf("expected skipped pass, got %+v", result)
	}
	if store.admits != 0 || len(h.spawner.calls) != 0 || tgt.logins != 0 {
		t.Fatalf("expected no work, got admits=%d spawns=%d logins=%d", store.admits, len(h.spawner.calls), tgt.logins)
	}
	if got := h.state(t, "L", "done"); got != migration.StateImporting {
		t.Fatalf("record moved to %s", got)
	}
	if got := counterValue(t, h.metrics.Passes.WithLabelValues("import", "skipped")); got != 1 {
		t.Fatalf("expected skipped metric, got %v", got)
	}
}
