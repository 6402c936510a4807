package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"sitemigrate/internal/config"
	"sitemigrate/internal/escalation"
	"sitemigrate/internal/migration"
	"sitemigrate/internal/notifications"
	"sitemigrate/internal/testsupport"
	"sitemigrate/internal/workflow"
)

type harness struct {
	cfg      *config.Config
	store    *migration.Store
	registry *workflow.Registry
	sender   *notifications.Recorder
	resolved []string
	calls    []string
}

type resolvingEscalator struct {
	*escalation.Escalator
	h *harness
}

func (r resolvingEscalator) Resolve(ctx context.Context, rec *migration.Record) error {
	r.h.resolved = append(r.h.resolved, rec.SiteID)
	return nil
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	h := &harness{
		cfg:      cfg,
		store:    testsupport.MustOpenStore(t, cfg),
		registry: workflow.NewRegistry(),
		sender:   &notifications.Recorder{},
	}
	return h
}

func (h *harness) record(name string) workflow.Action {
	return workflow.ActionFunc(func(ctx context.Context, ac *workflow.ActionContext) error {
		h.calls = append(h.calls, name)
		ac.Notef("%s done", name)
		return nil
	})
}

func (h *harness) executor(flags workflow.Flags) *workflow.Executor {
	esc := resolvingEscalator{Escalator: escalation.New(h.store, h.sender, nil, nil), h: h}
	return workflow.NewExecutor(workflow.Options{
		Config:    h.cfg,
		Store:     h.store,
		Registry:  h.registry,
		Escalator: esc,
		Sender:    h.sender,
		Flags:     flags,
	})
}

type genericAction struct {
	lines []string
}

func (g genericAction) Generic() bool { return true }

func (g genericAction) Run(_ context.Context, ac *workflow.ActionContext) error {
	out := ac.Output("module")
	for _, line := range g.lines {
		fmt.Fprintln(out, line)
	}
	return nil
}

func TestExecuteSkipsConditionalStepAndUsesFinalState(t *testing.T) {
	h := newHarness(t)
	h.registry.MustRegister("first", h.record("first"))
	h.registry.MustRegister("test-only", h.record("test-only"))
	h.registry.MustRegister("last", h.record("last"))
	testsupport.NewRecord(t, h.store, "L1", "S1", migration.StateExporting)

	def := &workflow.Definition{
		Name:       "export",
		FinalState: migration.StateQueued,
		Steps: []workflow.Step{
			{Action: "first", State: migration.StateRunning},
			{Action: "test-only", Condition: "test_run"},
			{Action: "last"},
		},
	}
	if err := h.executor(workflow.Flags{}).Execute(context.Background(), def, "L1", "S1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.Join(h.calls, ",") != "first,last" {
		t.Fatalf("unexpected calls: %v", h.calls)
	}
	rec, err := h.store.Get(context.Background(), "L1", "S1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.State != migration.StateQueued {
		t.Fatalf("expected final state queued, got %s", rec.State)
	}
	if len(rec.Workflow) != 2 {
		t.Fatalf("expected 2 log entries, got %d: %s", len(rec.Workflow), rec.Workflow)
	}
	if rec.Workflow[1].Step != "last" || rec.Workflow[1].Text != "last done" {
		t.Fatalf("unexpected last entry: %+v", rec.Workflow[1])
	}
}

func TestExecuteLastDeclaredStateWins(t *testing.T) {
	h := newHarness(t)
	h.registry.MustRegister("upload", h.record("upload"))
	h.registry.MustRegister("start", h.record("start"))
	testsupport.NewRecord(t, h.store, "L1", "S1", migration.StateUploading)

	def := &workflow.Definition{
		Name:       "upload",
		FinalState: migration.StateCompleted,
		Steps: []workflow.Step{
			{Action: "upload"},
			{Action: "start", State: migration.StateImporting},
		},
	}
	if err := h.executor(workflow.Flags{}).Execute(context.Background(), def, "L1", "S1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	rec, _ := h.store.Get(context.Background(), "L1", "S1")
	if rec.State != migration.StateImporting {
		t.Fatalf("expected importing, got %s", rec.State)
	}
	if len(h.resolved) != 0 {
		t.Fatal("tickets must only be resolved on completion")
	}
}

func TestExecuteCompletedResolvesTickets(t *testing.T) {
	h := newHarness(t)
	h.registry.MustRegister("update", h.record("update"))
	testsupport.NewRecord(t, h.store, "L1", "S1", migration.StateUpdating)

	def := &workflow.Definition{Name: "update", FinalState: migration.StateCompleted, Steps: []workflow.Step{{Action: "update"}}}
	if err := h.executor(workflow.Flags{}).Execute(context.Background(), def, "L1", "S1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(h.resolved) != 1 || h.resolved[0] != "S1" {
		t.Fatalf("expected tickets resolved for S1, got %v", h.resolved)
	}
}

func TestExecuteStopsAtFirstFailure(t *testing.T) {
	h := newHarness(t)
	h.registry.MustRegister("ok", h.record("ok"))
	h.registry.MustRegister("boom", workflow.ActionFunc(func(context.Context, *workflow.ActionContext) error {
		return errors.New("remote exploded")
	}))
	h.registry.MustRegister("after", h.record("after"))
	testsupport.NewRecord(t, h.store, "L1", "S1", migration.StateExporting)

	def := &workflow.Definition{
		Name: "export",
		Steps: []workflow.Step{
			{Action: "ok", State: migration.StateRunning},
			{Action: "boom"},
			{Action: "after"},
		},
	}
	err := h.executor(workflow.Flags{}).Execute(context.Background(), def, "L1", "S1")
	if !errors.Is(err, workflow.ErrStepFailed) {
		t.Fatalf("expected ErrStepFailed, got %v", err)
	}
	if strings.Join(h.calls, ",") != "ok" {
		t.Fatalf("steps after the failure must not run: %v", h.calls)
	}
	got, _ := h.store.Get(context.Background(), "L1", "S1")
	if got.State != migration.StateError || got.FailureType != "boom" {
		t.Fatalf("unexpected failed record: state=%s type=%s", got.State, got.FailureType)
	}
	if len(got.Workflow) != 2 || got.Workflow[1].Outcome != migration.OutcomeFailed {
		t.Fatalf("unexpected log: %s", got.Workflow)
	}
	if len(h.sender.Messages) != 1 || h.sender.Messages[0].Template != "migration-failed" {
		t.Fatalf("expected failure notification, got %+v", h.sender.Messages)
	}
}

func TestExecuteGenericActionFailsOnErrorLines(t *testing.T) {
	h := newHarness(t)
	h.registry.MustRegister("quiet", genericAction{lines: []string{"converted 12 pages", "warning: slow"}})
	h.registry.MustRegister("noisy", genericAction{lines: []string{"ERROR: missing asset"}})
	testsupport.NewRecord(t, h.store, "L1", "S1", migration.StateRunning)

	def := &workflow.Definition{Name: "t", Steps: []workflow.Step{{Action: "quiet"}, {Action: "noisy"}}}
	err := h.executor(workflow.Flags{}).Execute(context.Background(), def, "L1", "S1")
	if !errors.Is(err, workflow.ErrStepFailed) {
		t.Fatalf("expected failure from error marker, got %v", err)
	}
	got, _ := h.store.Get(context.Background(), "L1", "S1")
	if got.FailureType != "noisy" {
		t.Fatalf("expected noisy to be blamed, got %q", got.FailureType)
	}
}

func TestExecuteMailsAndRemovesRunLog(t *testing.T) {
	h := newHarness(t)
	h.cfg.Notifications.MailRunLog = true
	h.cfg.Notifications.AdminEmail = "admin@example.com"
	h.registry.MustRegister("step", h.record("step"))
	testsupport.NewRecord(t, h.store, "L1", "S1", migration.StateQueued)

	def := &workflow.Definition{Name: "t", Steps: []workflow.Step{{Action: "step"}}}
	if err := h.executor(workflow.Flags{}).Execute(context.Background(), def, "L1", "S1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(h.sender.Messages) != 1 {
		t.Fatalf("expected run log mail, got %d messages", len(h.sender.Messages))
	}
	msg := h.sender.Messages[0]
	if msg.Template != "run-log" || msg.Recipients[0] != "admin@example.com" || msg.Values["outcome"] != "success" {
		t.Fatalf("unexpected run log message: %+v", msg)
	}
	if !strings.Contains(msg.Values["log"].(string), "workflow started") {
		t.Fatalf("run log should contain worker output: %q", msg.Values["log"])
	}
	entries, err := os.ReadDir(h.cfg.RunLogDir())
	if err != nil {
		t.Fatalf("read run log dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected run log removed, found %d files", len(entries))
	}
}

func TestExecuteUnknownRecord(t *testing.T) {
	h := newHarness(t)
	h.registry.MustRegister("step", h.record("step"))
	def := &workflow.Definition{Name: "t", Steps: []workflow.Step{{Action: "step"}}}
	err := h.executor(workflow.Flags{}).Execute(context.Background(), def, "nope", "nope")
	if !errors.Is(err, migration.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestExecuteCanceledMidStepStillRecordsFailure(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.registry.MustRegister("long", workflow.ActionFunc(func(ctx context.Context, _ *workflow.ActionContext) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}))
	h.registry.MustRegister("after", h.record("after"))
	testsupport.NewRecord(t, h.store, "L1", "S1", migration.StateExporting)

	def := &workflow.Definition{Name: "export", Steps: []workflow.Step{{Action: "long"}, {Action: "after"}}}
	err := h.executor(workflow.Flags{}).Execute(ctx, def, "L1", "S1")
	if !errors.Is(err, workflow.ErrStepFailed) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected a canceled step failure, got %v", err)
	}
	if len(h.calls) != 0 {
		t.Fatalf("no step may run after cancellation: %v", h.calls)
	}
	got, _ := h.store.Get(context.Background(), "L1", "S1")
	if got.State != migration.StateError || got.FailureType != "long" {
		t.Fatalf("canceled worker left state=%s type=%q", got.State, got.FailureType)
	}
	if len(h.sender.Messages) != 1 || h.sender.Messages[0].Template != "migration-failed" {
		t.Fatalf("expected failure notification, got %+v", h.sender.Messages)
	}
}

func TestExecuteCanceledBetweenStepsFailsNextStep(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.registry.MustRegister("first", workflow.ActionFunc(func(context.Context, *workflow.ActionContext) error {
		cancel()
		return nil
	}))
	h.registry.MustRegister("second", h.record("second"))
	testsupport.NewRecord(t, h.store, "L1", "S1", migration.StateUploading)

	def := &workflow.Definition{Name: "upload", Steps: []workflow.Step{{Action: "first"}, {Action: "second"}}}
	if err := h.executor(workflow.Flags{}).Execute(ctx, def, "L1", "S1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	got, _ := h.store.Get(context.Background(), "L1", "S1")
	if got.State != migration.StateError || got.FailureType != "second" {
		t.Fatalf("expected error blamed on second, got state=%s type=%q", got.State, got.FailureType)
	}
}

// faultyStore fails Get after okGets successful calls, or every SetState.
type faultyStore struct {
	*migration.Store
	okGets   int
	failSet  bool
	getCalls int
}

func (f *faultyStore) Get(ctx context.Context, linkID, siteID string) (*migration.Record, error) {
	f.getCalls++
	if f.okGets >= 0 && f.getCalls > f.okGets {
		return nil, fmt.Errorf("%w: connection reset", migration.ErrStoreUnavailable)
	}
	return f.Store.Get(ctx, linkID, siteID)
}

func (f *faultyStore) SetState(ctx context.Context, linkID, siteID string, state migration.State, log migration.Log) error {
	if f.failSet {
		return fmt.Errorf("%w: disk full", migration.ErrStoreUnavailable)
	}
	return f.Store.SetState(ctx, linkID, siteID, state, log)
}

func TestExecuteStoreFailureDuringStepAbortsAndEscalates(t *testing.T) {
	cases := []struct {
		name  string
		store func(*migration.Store) *faultyStore
		calls string
	}{
		{"reload fails", func(s *migration.Store) *faultyStore { return &faultyStore{Store: s, okGets: 1} }, ""},
		{"state write fails", func(s *migration.Store) *faultyStore { return &faultyStore{Store: s, okGets: -1, failSet: true} }, "first"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.registry.MustRegister("first", h.record("first"))
			h.registry.MustRegister("second", h.record("second"))
			testsupport.NewRecord(t, h.store, "L1", "S1", migration.StateExporting)

			exec := workflow.NewExecutor(workflow.Options{
				Config:    h.cfg,
				Store:     tc.store(h.store),
				Registry:  h.registry,
				Escalator: escalation.New(h.store, h.sender, nil, nil),
				Sender:    h.sender,
			})
			def := &workflow.Definition{Name: "export", Steps: []workflow.Step{
				{Action: "first", State: migration.StateRunning},
				{Action: "second"},
			}}
			err := exec.Execute(context.Background(), def, "L1", "S1")
			if !errors.Is(err, workflow.ErrStepFailed) || !errors.Is(err, migration.ErrStoreUnavailable) {
				t.Fatalf("expected store failure to abort the job, got %v", err)
			}
			if strings.Join(h.calls, ",") != tc.calls {
				t.Fatalf("unexpected calls %v", h.calls)
			}
			got, _ := h.store.Get(context.Background(), "L1", "S1")
			if got.State != migration.StateError || got.FailureType != "first" {
				t.Fatalf("expected error blamed on first, got state=%s type=%q", got.State, got.FailureType)
			}
			if len(h.sender.Messages) != 1 || h.sender.Messages[0].Template != "migration-failed" {
				t.Fatalf("expected one failure notification, got %+v", h.sender.Messages)
			}
		})
	}
}
