package scheduler_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"sitemigrate/internal/config"
	"sitemigrate/internal/escalation"
	"sitemigrate/internal/migration"
	"sitemigrate/internal/notifications"
	"sitemigrate/internal/scheduler"
	"sitemigrate/internal/supervisor"
	"sitemigrate/internal/testsupport"
)

type fakeHandle struct {
	pid  int
	code int
	done bool
}

func (h *fakeHandle) PID() int            { return h.pid }
func (h *fakeHandle) Exited() (int, bool) { return h.code, h.done }

type spawnCall struct {
	workflow string
	linkID   string
	siteID   string
}

type fakeSpawner struct {
	mu      sync.Mutex
	calls   []spawnCall
	handles []*fakeHandle
	err     error
}

func (s *fakeSpawner) Spawn(_ context.Context, workflow, linkID, siteID string) (supervisor.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, spawnCall{workflow: workflow, linkID: linkID, siteID: siteID})
	if s.err != nil {
		return nil, s.err
	}
	h := &fakeHandle{pid: 1000 + len(s.calls)}
	s.handles = append(s.handles, h)
	return h, nil
}

type harness struct {
	cfg     *config.Config
	store   *migration.Store
	spawner *fakeSpawner
	sup     *supervisor.Supervisor
	sent    *notifications.Recorder
	metrics *scheduler.Metrics
	deps    scheduler.Deps
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	h := &harness{
		cfg:     cfg,
		store:   store,
		spawner: &fakeSpawner{},
		sup:     supervisor.New(nil),
		sent:    &notifications.Recorder{},
		metrics: scheduler.NewMetrics(prometheus.NewRegistry()),
	}
	h.deps = scheduler.Deps{
		Store:      store,
		Spawner:    h.spawner,
		Supervisor: h.sup,
		Escalator:  escalation.New(store, h.sent, nil, nil),
		Metrics:    h.metrics,
	}
	return h
}

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	close(ch)
	var m dto.Metric
	if err := (<-ch).Write(&m); err != nil {
		t.Fatalf("read metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func (h *harness) state(t *testing.T, linkID, siteID string) migration.State {
	t.Helper()
	rec, err := h.store.Get(context.Background(), linkID, siteID)
	if err != nil {
		t.Fatalf("Get %s/%s: %v", linkID, siteID, err)
	}
	return rec.State
}

func queuedWithArtifact(t *testing.T, h *harness, linkID, siteID string, size int64, writeArtifact bool) {
	t.Helper()
	ctx := context.Background()
	testsupport.NewRecord(t, h.store, linkID, siteID, migration.StateQueued)
	path := filepath.Join(h.cfg.SiteWorkDir(linkID, siteID), "fixed.zip")
	if writeArtifact {
		testsupport.WriteFile(t, path, size)
	}
	if err := h.store.SetFile(ctx, linkID, siteID, h.cfg.Upload.ArtifactKey, path); err != nil {
		t.Fatalf("SetFile: %v", err)
	}
	if err := h.store.SetZipSize(ctx, linkID, siteID, size); err != nil {
		t.Fatalf("SetZipSize: %v", err)
	}
}

func TestUploadAdmissionOrdersBySizeAndSkipsMissingArtifacts(t *testing.T) {
	h := newHarness(t, testsupport.WithCeilings(4, 2))
	testsupport.NewRecord(t, h.store, "L0", "busy", migration.StateImporting)
	queuedWithArtifact(t, h, "L1", "big", 300, true)
	queuedWithArtifact(t, h, "L1", "missing", 100, false)
	queuedWithArtifact(t, h, "L1", "medium", 200, true)

	pass := scheduler.NewAdmission(scheduler.UploadStage(h.cfg), h.deps)
	result := pass.Pass(context.Background())

	if result.Outcome != scheduler.OutcomeRan || result.Occupied != 1 || result.Admitted != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(h.spawner.calls) != 1 || h.spawner.calls[0].siteID != "medium" || h.spawner.calls[0].workflow != h.cfg.Upload.Workflow {
		t.Fatalf("unexpected spawns: %+v", h.spawner.calls)
	}
	if got := h.state(t, "L1", "medium"); got != migration.StateUploading {
		t.Fatalf("medium should be uploading, got %s", got)
	}
	for _, site := range []string{"big", "missing"} {
		if got := h.state(t, "L1", site); got != migration.StateQueued {
			t.Fatalf("%s should stay queued, got %s", site, got)
		}
	}
	if got := counterValue(t, h.metrics.Skipped.WithLabelValues("upload", "ineligible")); got != 1 {
		t.Fatalf("expected one ineligible skip, got %v", got)
	}
	if h.sup.Len() != 1 {
		t.Fatalf("expected one tracked worker, got %d", h.sup.Len())
	}
}

func TestExportAdmissionNeverExceedsCeiling(t *testing.T) {
	for max := 1; max <= 4; max++ {
		h := newHarness(t, testsupport.WithCeilings(max, 1))
		for i := range 6 {
			testsupport.NewRecord(t, h.store, "L", string(rune('a'+i)), migration.StateStarting)
		}
		pass := scheduler.NewAdmission(scheduler.ExportStage(h.cfg), h.deps)
		for range 3 {
			pass.Pass(context.Background())
			busy, err := h.store.CountInState(context.Background(), migration.StateExporting, migration.StateRunning)
			if err != nil {
				t.Fatalf("CountInState: %v", err)
			}
			if busy > max {
				t.Fatalf("max %d: %d records admitted", max, busy)
			}
		}
		if len(h.spawner.calls) != max {
			t.Fatalf("max %d: expected %d spawns, got %d", max, max, len(h.spawner.calls))
		}
	}
}

func TestExportAdmissionBacksOffWhenFull(t *testing.T) {
	h := newHarness(t, testsupport.WithCeilings(1, 1))
	testsupport.NewRecord(t, h.store, "L", "running", migration.StateRunning)
	testsupport.NewRecord(t, h.store, "L", "waiting", migration.StateStarting)

	result := scheduler.NewAdmission(scheduler.ExportStage(h.cfg), h.deps).Pass(context.Background())
	if result.Outcome != scheduler.OutcomeBackoff {
		t.Fatalf("expected backoff, got %s", result.Outcome)
	}
	if len(h.spawner.calls) != 0 {
		t.Fatalf("expected no spawns, got %+v", h.spawner.calls)
	}
	if got := counterValue(t, h.metrics.Passes.WithLabelValues("export", "backoff")); got != 1 {
		t.Fatalf("expected backoff metric, got %v", got)
	}
}

func TestExportAdmissionSkipsSiteHeldByAnotherLink(t *testing.T) {
	h := newHarness(t, testsupport.WithCeilings(3, 1))
	testsupport.NewRecord(t, h.store, "L1", "shared", migration.StateQueued)
	testsupport.NewRecord(t, h.store, "L2", "shared", migration.StateStarting)
	testsupport.NewRecord(t, h.store, "L2", "free", migration.StateStarting)

	result := scheduler.NewAdmission(scheduler.ExportStage(h.cfg), h.deps).Pass(context.Background())
	if result.Admitted != 1 {
		t.Fatalf("expected one admission, got %+v", result)
	}
	if got := h.state(t, "L2", "shared"); got != migration.StateStarting {
		t.Fatalf("shared site should wait, got %s", got)
	}
	if got := h.state(t, "L2", "free"); got != migration.StateExporting {
		t.Fatalf("free site should be exporting, got %s", got)
	}
}

func TestSpawnFailureMovesRecordToError(t *testing.T) {
	h := newHarness(t, testsupport.WithCeilings(2, 1))
	h.spawner.err = errors.New("fork: resource temporarily unavailable")
	testsupport.NewRecord(t, h.store, "L", "s1", migration.StateStarting)

	result := scheduler.NewAdmission(scheduler.ExportStage(h.cfg), h.deps).Pass(context.Background())
	if result.Admitted != 0 {
		t.Fatalf("expected no admissions, got %+v", result)
	}
	rec, err := h.store.Get(context.Background(), "L", "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.State != migration.StateError || rec.FailureType != "spawn" {
		t.Fatalf("expected spawn failure, got state=%s type=%q", rec.State, rec.FailureType)
	}
	if len(h.sent.Messages) != 1 || h.sent.Messages[0].Template != "migration-failed" {
		t.Fatalf("expected failure notification, got %+v", h.sent.Messages)
	}
}
