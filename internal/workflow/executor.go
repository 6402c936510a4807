package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sitemigrate/internal/config"
	"sitemigrate/internal/logging"
	"sitemigrate/internal/migration"
	"sitemigrate/internal/notifications"
	"sitemigrate/internal/runlog"
	"sitemigrate/internal/services"
)

// RecordStore is the subset of the record store the executor needs.
type RecordStore interface {
	Get(ctx context.Context, linkID, siteID string) (*migration.Record, error)
	SetState(ctx context.Context, linkID, siteID string, state migration.State, log migration.Log) error
}

// Escalator records and announces job failures.
type Escalator interface {
	Fail(ctx context.Context, rec *migration.Record, failureType, detail string, log migration.Log) error
	Resolve(ctx context.Context, rec *migration.Record) error
}

// ErrStepFailed wraps the error that stopped a workflow.
var ErrStepFailed = errors.New("workflow step failed")

// failureWriteTimeout bounds the store and escalation writes made after the
// worker context has been canceled.
const failureWriteTimeout = 30 * time.Second

// detached returns a context that survives cancellation of ctx but gives up
// after failureWriteTimeout. The error state must land even on SIGTERM.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
}

// Options configures an Executor.
type Options struct {
	Config    *config.Config
	Store     RecordStore
	Registry  *Registry
	Escalator Escalator
	Sender    notifications.Sender
	Logger    *slog.Logger
	Flags     Flags
	Now       func() time.Time
}

// Executor runs workflow definitions against records.
type Executor struct {
	cfg       *config.Config
	store     RecordStore
	registry  *Registry
	escalator Escalator
	sender    notifications.Sender
	logger    *slog.Logger
	flags     Flags
	now       func() time.Time
}

// NewExecutor builds an executor.
func NewExecutor(opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Executor{
		cfg:       opts.Config,
		store:     opts.Store,
		registry:  opts.Registry,
		escalator: opts.Escalator,
		sender:    opts.Sender,
		logger:    logger,
		flags:     opts.Flags,
		now:       now,
	}
}

// Execute runs def for the record (linkID, siteID). A returned error wrapping
// ErrStepFailed means the record was moved to error and escalated.
func (e *Executor) Execute(ctx context.Context, def *Definition, linkID, siteID string) (err error) {
	if def == nil {
		return errors.New("workflow definition is required")
	}
	rl, err := runlog.Open(e.cfg.RunLogDir(), linkID, siteID)
	if err != nil {
		return err
	}
	ctx = services.WithRecord(ctx, linkID, siteID)
	ctx = services.WithRequestID(ctx, rl.RunID())
	level := slog.LevelInfo
	if e.flags.Debug {
		level = slog.LevelDebug
	}
	logger := logging.WithContext(ctx, logging.TeeLogger(e.logger, rl.Handler(level))).
		With(logging.String("workflow", def.Name))

	defer func() {
		e.teardown(ctx, logger, rl, def.Name, linkID, siteID, err)
	}()

	loadCtx, cancelLoad := detached(ctx)
	rec, err := e.store.Get(loadCtx, linkID, siteID)
	cancelLoad()
	if err != nil {
		logger.Error("record unavailable", logging.Error(err))
		return fmt.Errorf("load record %s/%s: %w", linkID, siteID, err)
	}

	logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_start"),
		logging.String(logging.FieldState, string(rec.State)),
		logging.Int("steps", len(def.Steps)),
	)

	runTimestamp := e.now()
	log := rec.Workflow
	var lastState migration.State
	executed := 0

	for i, step := range def.Steps {
		stepCtx := services.WithStage(ctx, step.Label())
		stepLogger := logger.With(logging.String(logging.FieldStage, step.Label()))
		if err := ctx.Err(); err != nil {
			return e.fail(stepCtx, stepLogger, rec, step, log, fmt.Errorf("worker interrupted: %w", err))
		}

		run, condErr := EvaluateCondition(step.Condition, e.flags, rec)
		if condErr != nil {
			return e.fail(stepCtx, stepLogger, rec, step, log, condErr)
		}
		if !run {
			stepLogger.Debug("step skipped", logging.String("condition", step.Condition))
			continue
		}

		current, getErr := e.store.Get(stepCtx, linkID, siteID)
		if getErr != nil {
			return e.fail(stepCtx, stepLogger, rec, step, log, getErr)
		}
		rec = current

		action, ok := e.registry.Lookup(step.Action)
		if !ok {
			return e.fail(stepCtx, stepLogger, rec, step, log,
				services.Wrap(services.ErrConfiguration, "workflow", step.Action, "action not registered", nil))
		}

		ac := &ActionContext{
			Record:  rec,
			Step:    step,
			Fields:  contextFields(rec, step.Context, runTimestamp),
			Flags:   e.flags,
			Logger:  stepLogger,
			WorkDir: e.cfg.SiteWorkDir(linkID, siteID),
			RunID:   rl.RunID(),
			runLog:  rl,
		}

		stepLogger.Info("step started",
			logging.String(logging.FieldEventType, "step_start"),
			logging.Int("index", i+1),
		)
		started := time.Now()
		mark := rl.Mark()
		runErr := action.Run(stepCtx, ac)
		if runErr == nil && isGeneric(action) {
			if n := rl.ErrorsSince(mark); n > 0 {
				runErr = services.Wrap(services.ErrExternalTool, "workflow", step.Action,
					fmt.Sprintf("%d error line(s) in run log", n), nil)
			}
		}
		if runErr != nil {
			return e.fail(stepCtx, stepLogger, rec, step, log, runErr)
		}

		executed++
		log = log.Append(step.Label(), migration.OutcomeOK, ac.Note())
		lastState = step.State
		if step.State != "" {
			if err := e.store.SetState(stepCtx, linkID, siteID, step.State, log); err != nil {
				return e.fail(stepCtx, stepLogger, rec, step, log, err)
			}
			rec.State = step.State
		}
		stepLogger.Info("step completed",
			logging.String(logging.FieldEventType, "step_complete"),
			logging.Duration("elapsed", time.Since(started)),
			logging.String(logging.FieldState, string(rec.State)),
		)
	}

	final := lastState
	if final == "" {
		final = def.FinalState
		if final == "" {
			final = rec.State
		}
		finalCtx, cancelFinal := detached(ctx)
		err := e.store.SetState(finalCtx, linkID, siteID, final, log)
		if err != nil {
			logging.ErrorWithContext(logger, "failed to persist final state", "workflow_store_failed",
				logging.String(logging.FieldState, string(final)),
				logging.Error(err),
			)
			if e.escalator != nil {
				_ = e.escalator.Fail(finalCtx, rec, "finalize", err.Error(), log)
			}
		}
		cancelFinal()
		if err != nil {
			return fmt.Errorf("%w: finalize: %w", ErrStepFailed, err)
		}
		rec.State = final
	}

	if final == migration.StateCompleted && e.escalator != nil {
		if err := e.escalator.Resolve(ctx, rec); err != nil {
			logging.WarnWithContext(logger, "could not close failure tickets", "tracker_resolve_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "stale tickets remain open"),
			)
		}
	}

	logger.Info("workflow completed",
		logging.String(logging.FieldEventType, "workflow_complete"),
		logging.String(logging.FieldState, string(final)),
		logging.Int("executed", executed),
	)
	return nil
}

func (e *Executor) fail(ctx context.Context, logger *slog.Logger, rec *migration.Record, step Step, log migration.Log, cause error) error {
	kind, message := services.Details(cause)
	log = log.Append(step.Label(), migration.OutcomeFailed, message)
	logging.ErrorWithContext(logger, "step failed", "step_failure",
		logging.String("failure_kind", kind),
		logging.Error(cause),
	)
	if e.escalator != nil {
		writeCtx, cancel := detached(ctx)
		defer cancel()
		if err := e.escalator.Fail(writeCtx, rec, step.Action, message, log); err != nil {
			logger.Warn("escalation incomplete", logging.Error(err))
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrStepFailed, step.Label(), cause)
}

// teardown runs on every exit: optionally mails the run log to the admin,
// then removes it.
func (e *Executor) teardown(ctx context.Context, logger *slog.Logger, rl *runlog.Log, workflow, linkID, siteID string, runErr error) {
	if e.cfg.Notifications.MailRunLog && e.sender != nil {
		outcome := "success"
		if runErr != nil {
			outcome = "failure"
		}
		msg := notifications.Message{
			Template:   "run-log",
			Recipients: []string{e.cfg.Notifications.AdminEmail},
			Values: map[string]any{
				"workflow": workflow,
				"link_id":  linkID,
				"site_id":  siteID,
				"outcome":  outcome,
				"log":      rl.Text(),
			},
		}
		sendCtx, cancel := detached(ctx)
		defer cancel()
		if err := e.sender.Send(sendCtx, msg); err != nil {
			logger.Warn("run log mail not delivered", logging.Error(err))
		}
	}
	if err := rl.Remove(); err != nil {
		logger.Debug("run log cleanup failed", logging.Error(err))
	}
}
