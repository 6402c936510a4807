package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sitemigrate/internal/logging"
	"sitemigrate/internal/migration"
	"sitemigrate/internal/supervisor"
)

// Outcome is the result class of one pass.
type Outcome int

const (
	// OutcomeRan means the pass scanned its candidates.
	OutcomeRan Outcome = iota
	// OutcomeBackoff means the stage was full before scanning.
	OutcomeBackoff
	// OutcomeSkipped means the store could not be read.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBackoff:
		return "backoff"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "ran"
	}
}

// PassResult summarises a pass.
type PassResult struct {
	Outcome  Outcome
	Occupied int
	Admitted int
}

// Pass is one scan of a stage.
type Pass interface {
	Name() string
	Pass(ctx context.Context) PassResult
}

// Store is the record store subset the scan loops use.
type Store interface {
	List(ctx context.Context, state migration.State, order migration.OrderBy, expiryMinutes int) ([]*migration.Record, error)
	CountInState(ctx context.Context, states ...migration.State) (int, error)
	ExistsActiveOther(ctx context.Context, linkID, siteID string) (bool, error)
	Admit(ctx context.Context, linkID, siteID string, from, to migration.State, log migration.Log) error
}

// Escalator reports failures found by a pass.
type Escalator interface {
	Fail(ctx context.Context, rec *migration.Record, failureType, detail string, log migration.Log) error
	Escalate(ctx context.Context, rec *migration.Record, failureType, detail string, log migration.Log) error
}

// Stage describes an admission-controlled stage.
type Stage struct {
	Name     string
	Source   migration.State
	Order    migration.OrderBy
	Budget   []migration.State
	Admitted migration.State
	Workflow string
	Max      int
	// Eligible filters candidates before admission; the string is the skip reason.
	Eligible func(rec *migration.Record) (bool, string)
}

// Admission runs the common admission pass for a Stage.
type Admission struct {
	stage          Stage
	store          Store
	spawner        supervisor.Spawner
	supervisor     *supervisor.Supervisor
	escalator      Escalator
	metrics        *Metrics
	logger         *slog.Logger
	escalateErrors bool
}

// Deps are shared by every pass.
type Deps struct {
	Store      Store
	Spawner    supervisor.Spawner
	Supervisor *supervisor.Supervisor
	Escalator  Escalator
	Metrics    *Metrics
	Logger     *slog.Logger
	// EscalateCandidateErrors escalates unexpected per-candidate errors.
	EscalateCandidateErrors bool
}

// NewAdmission builds the pass for stage.
func NewAdmission(stage Stage, deps Deps) *Admission {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Admission{
		stage:          stage,
		store:          deps.Store,
		spawner:        deps.Spawner,
		supervisor:     deps.Supervisor,
		escalator:      deps.Escalator,
		metrics:        deps.Metrics,
		logger:         logger.With(logging.String(logging.FieldStage, stage.Name)),
		escalateErrors: deps.EscalateCandidateErrors,
	}
}

// Name implements Pass.
func (a *Admission) Name() string { return a.stage.Name }

// Pass implements Pass.
func (a *Admission) Pass(ctx context.Context) PassResult {
	result := a.pass(ctx)
	a.metrics.pass(a.stage.Name, result.Outcome)
	return result
}

func (a *Admission) pass(ctx context.Context) PassResult {
	occupied, err := a.store.CountInState(ctx, a.stage.Budget...)
	if err != nil {
		logging.WarnWithContext(a.logger, "store unavailable; pass skipped", "pass_skipped",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no records admitted this pass"),
		)
		return PassResult{Outcome: OutcomeSkipped}
	}
	a.metrics.occupancy(a.stage.Name, occupied)
	if occupied >= a.stage.Max {
		a.logger.Debug("stage full; backing off",
			logging.Int("occupied", occupied),
			logging.Int("max", a.stage.Max),
		)
		return PassResult{Outcome: OutcomeBackoff, Occupied: occupied}
	}

	candidates, err := a.store.List(ctx, a.stage.Source, a.stage.Order, 0)
	if err != nil {
		logging.WarnWithContext(a.logger, "store unavailable; pass skipped", "pass_skipped",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no records admitted this pass"),
		)
		return PassResult{Outcome: OutcomeSkipped, Occupied: occupied}
	}

	started := 0
	for _, rec := range candidates {
		if ctx.Err() != nil {
			break
		}
		if occupied+started >= a.stage.Max {
			break
		}
		if a.admit(ctx, rec) {
			started++
		}
	}
	if started > 0 {
		a.logger.Info("admission pass finished",
			logging.Int("admitted", started),
			logging.Int("occupied", occupied+started),
			logging.Int("max", a.stage.Max),
		)
	}
	return PassResult{Outcome: OutcomeRan, Occupied: occupied, Admitted: started}
}

func (a *Admission) admit(ctx context.Context, rec *migration.Record) bool {
	logger := a.logger.With(
		logging.String(logging.FieldLinkID, rec.LinkID),
		logging.String(logging.FieldSiteID, rec.SiteID),
	)
	if a.stage.Eligible != nil {
		if ok, reason := a.stage.Eligible(rec); !ok {
			logging.WarnWithContext(logger, "candidate not eligible", "candidate_skipped",
				logging.String("reason", reason),
				logging.String(logging.FieldErrorHint, "re-run the previous stage for this record"),
			)
			a.metrics.skipped(a.stage.Name, "ineligible")
			return false
		}
	}
	busy, err := a.store.ExistsActiveOther(ctx, rec.LinkID, rec.SiteID)
	if err != nil {
		a.candidateError(ctx, logger, rec, fmt.Errorf("single-worker check: %w", err))
		return false
	}
	if busy {
		logger.Info("site already in progress under another request; skipped")
		a.metrics.skipped(a.stage.Name, "site_busy")
		return false
	}
	if err := a.store.Admit(ctx, rec.LinkID, rec.SiteID, a.stage.Source, a.stage.Admitted, nil); err != nil {
		if errors.Is(err, migration.ErrStateConflict) {
			logger.Info("record moved by another process; skipped")
			a.metrics.skipped(a.stage.Name, "conflict")
			return false
		}
		a.candidateError(ctx, logger, rec, fmt.Errorf("admit: %w", err))
		return false
	}
	a.metrics.transition(a.stage.Name, string(a.stage.Admitted))

	if !a.spawn(ctx, logger, rec, a.stage.Workflow) {
		return false
	}
	a.metrics.admitted(a.stage.Name)
	return true
}

// spawn starts the worker for an admitted record. A spawn failure moves the
// record to error so it does not hold a slot forever.
func (a *Admission) spawn(ctx context.Context, logger *slog.Logger, rec *migration.Record, workflow string) bool {
	return spawnWorker(ctx, a.spawner, a.supervisor, a.escalator, logger, rec, workflow)
}

func (a *Admission) candidateError(ctx context.Context, logger *slog.Logger, rec *migration.Record, err error) {
	logging.ErrorWithContext(logger, "candidate failed", "candidate_error",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "the record is retried next pass"),
	)
	a.metrics.skipped(a.stage.Name, "error")
	if a.escalateErrors && a.escalator != nil {
		if escErr := a.escalator.Escalate(ctx, rec, "scheduler-"+a.stage.Name, err.Error(), rec.Workflow); escErr != nil {
			logger.Warn("candidate escalation incomplete", logging.Error(escErr))
		}
	}
}

func spawnWorker(ctx context.Context, spawner supervisor.Spawner, sup *supervisor.Supervisor, esc Escalator, logger *slog.Logger, rec *migration.Record, workflow string) bool {
	handle, err := spawner.Spawn(ctx, workflow, rec.LinkID, rec.SiteID)
	if err != nil {
		logging.ErrorWithContext(logger, "worker spawn failed", "spawn_failed",
			logging.String("workflow", workflow),
			logging.Error(err),
		)
		if esc != nil {
			log := rec.Workflow.Append("spawn "+workflow, migration.OutcomeFailed, err.Error())
			if failErr := esc.Fail(ctx, rec, "spawn", err.Error(), log); failErr != nil {
				logger.Warn("spawn failure escalation incomplete", logging.Error(failErr))
			}
		}
		return false
	}
	if sup != nil {
		sup.Track(fmt.Sprintf("%s %s", workflow, rec.Key()), handle)
	}
	logger.Info("worker started",
		logging.String(logging.FieldEventType, "worker_spawned"),
		logging.String("workflow", workflow),
		logging.Int("pid", handle.PID()),
	)
	return true
}
