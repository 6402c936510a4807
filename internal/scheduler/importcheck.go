package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"sitemigrate/internal/config"
	"sitemigrate/internal/logging"
	"sitemigrate/internal/migration"
	"sitemigrate/internal/services"
	"sitemigrate/internal/services/target"
	"sitemigrate/internal/supervisor"
)

// ImportStore is the record store subset the import checker uses.
type ImportStore interface {
	List(ctx context.Context, state migration.State, order migration.OrderBy, expiryMinutes int) ([]*migration.Record, error)
	Admit(ctx context.Context, linkID, siteID string, from, to migration.State, log migration.Log) error
	SetImportedSiteID(ctx context.Context, linkID, siteID, importedID string) (bool, error)
}

// TargetAPI is the target platform subset the import checker uses.
type TargetAPI interface {
	Authenticator
	JobStatus(ctx context.Context, s *target.Session, importedSiteID string) (target.ImportStatus, error)
	FindSite(ctx context.Context, s *target.Session, transferSiteID string) (string, error)
}

// PropertySetter writes the cross reference on the source site.
type PropertySetter interface {
	SetProperty(ctx context.Context, siteID, name, value string) error
}

// ImportChecker polls running imports and moves finished ones on.
type ImportChecker struct {
	cfg        config.Import
	store      ImportStore
	target     TargetAPI
	source     PropertySetter
	session    *SessionCache
	spawner    supervisor.Spawner
	supervisor *supervisor.Supervisor
	escalator  Escalator
	metrics    *Metrics
	logger     *slog.Logger
}

// NewImportChecker builds the checker. The session cache lives as long as
// the checker.
func NewImportChecker(cfg config.Import, store ImportStore, tgt TargetAPI, src PropertySetter, deps Deps) *ImportChecker {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ImportChecker{
		cfg:        cfg,
		store:      store,
		target:     tgt,
		source:     src,
		session:    NewSessionCache(tgt, time.Duration(cfg.ReloginIdleMinutes)*time.Minute),
		spawner:    deps.Spawner,
		supervisor: deps.Supervisor,
		escalator:  deps.Escalator,
		metrics:    deps.Metrics,
		logger:     logger.With(logging.String(logging.FieldStage, "import")),
	}
}

// Name implements Pass.
func (c *ImportChecker) Name() string { return "import" }

type statusResult struct {
	status target.ImportStatus
	err    error
}

// Pass implements Pass.
func (c *ImportChecker) Pass(ctx context.Context) PassResult {
	records, err := c.store.List(ctx, migration.StateImporting, migration.OrderStartedAt, c.cfg.ExpiryMinutes)
	if err != nil {
		logging.WarnWithContext(c.logger, "store unavailable; pass skipped", "pass_skipped",
			logging.Error(err),
			logging.String(logging.FieldImpact, "import outcomes are checked next pass"),
		)
		c.metrics.pass("import", OutcomeSkipped)
		return PassResult{Outcome: OutcomeSkipped}
	}
	c.metrics.occupancy("import", len(records))

	statuses := make(map[string]statusResult)
	moved := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		logger := c.logger.With(
			logging.String(logging.FieldLinkID, rec.LinkID),
			logging.String(logging.FieldSiteID, rec.SiteID),
		)
		advanced, err := c.check(ctx, logger, rec, statuses)
		if err != nil {
			logging.ErrorWithContext(logger, "import check failed", "import_check_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the record is checked again next pass"),
			)
			c.metrics.skipped("import", "error")
			if c.escalator != nil {
				if escErr := c.escalator.Escalate(ctx, rec, "import-check", err.Error(), rec.Workflow); escErr != nil {
					logger.Warn("import check escalation incomplete", logging.Error(escErr))
				}
			}
			continue
		}
		if advanced {
			moved++
		}
	}
	c.metrics.pass("import", OutcomeRan)
	return PassResult{Outcome: OutcomeRan, Occupied: len(records), Admitted: moved}
}

// check handles one record and reports whether it left the importing state.
func (c *ImportChecker) check(ctx context.Context, logger *slog.Logger, rec *migration.Record, statuses map[string]statusResult) (bool, error) {
	if rec.ImportedSiteID == "" && rec.TransferSiteID != "" {
		if err := c.resolveImportedID(ctx, logger, rec); err != nil {
			return false, err
		}
	}

	var status target.ImportStatus
	if rec.ImportedSiteID != "" {
		res, ok := statuses[rec.ImportedSiteID]
		if !ok {
			res = c.lookup(ctx, rec.ImportedSiteID)
			statuses[rec.ImportedSiteID] = res
		}
		if res.err != nil {
			if c.cfg.EscalateOnLookupErr {
				return false, fmt.Errorf("import status of %s: %w", rec.ImportedSiteID, res.err)
			}
			logger.Debug("import status unavailable", logging.Error(res.err))
		}
		status = res.status
	}

	success := status.Status != "" && slices.Contains(c.cfg.SuccessStatuses, status.Status)
	failure := status.Status != "" && slices.Contains(c.cfg.FailureStatuses, status.Status)

	switch {
	case rec.Expired && !success:
		detail := fmt.Sprintf("import not finished %d minutes after upload", c.cfg.ExpiryMinutes)
		if status.Status != "" {
			detail += " (last status " + status.Status + ")"
		}
		log := rec.Workflow.Append("import-check", migration.OutcomeFailed, detail)
		c.metrics.transition("import", string(migration.StateError))
		return true, c.fail(ctx, rec, "expired", detail, log)
	case success:
		log := rec.Workflow.Append("import-check", migration.OutcomeOK, "import "+status.Status)
		if err := c.store.Admit(ctx, rec.LinkID, rec.SiteID, migration.StateImporting, migration.StateUpdating, log); err != nil {
			if errors.Is(err, migration.ErrStateConflict) {
				logger.Info("record moved by another process; skipped")
				return false, nil
			}
			return false, err
		}
		rec.Workflow = log
		c.metrics.transition("import", string(migration.StateUpdating))
		if spawnWorker(ctx, c.spawner, c.supervisor, c.escalator, logger, rec, c.cfg.Workflow) {
			c.metrics.admitted("import")
		}
		return true, nil
	case failure:
		detail := "import status " + status.Status
		if status.LogRef != "" {
			detail += ", log " + status.LogRef
		}
		log := rec.Workflow.Append("import-check", migration.OutcomeFailed, detail)
		c.metrics.transition("import", string(migration.StateError))
		return true, c.fail(ctx, rec, "import-error", detail, log)
	default:
		logger.Debug("import still running", logging.String("status", status.Status))
		return false, nil
	}
}

func (c *ImportChecker) resolveImportedID(ctx context.Context, logger *slog.Logger, rec *migration.Record) error {
	session, err := c.session.Get(ctx)
	if err != nil {
		logger.Debug("target login failed; imported site lookup deferred", logging.Error(err))
		return nil
	}
	importedID, err := c.target.FindSite(ctx, session, rec.TransferSiteID)
	if err != nil {
		if errors.Is(err, services.ErrSecurity) {
			c.session.Invalidate()
		}
		logger.Debug("imported site not found yet", logging.String("transfer_site_id", rec.TransferSiteID), logging.Error(err))
		return nil
	}
	assigned, err := c.store.SetImportedSiteID(ctx, rec.LinkID, rec.SiteID, importedID)
	if err != nil {
		return err
	}
	if !assigned {
		return nil
	}
	rec.ImportedSiteID = importedID
	logger.Info("imported site identified", logging.String("imported_site_id", importedID))
	if c.source != nil {
		if err := c.source.SetProperty(ctx, rec.SiteID, c.cfg.CrossRefProperty, importedID); err != nil {
			logging.WarnWithContext(logger, "cross reference not written", "cross_reference_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "the update workflow writes it again"),
			)
		}
	}
	return nil
}

func (c *ImportChecker) lookup(ctx context.Context, importedID string) statusResult {
	session, err := c.session.Get(ctx)
	if err != nil {
		return statusResult{err: err}
	}
	status, err := c.target.JobStatus(ctx, session, importedID)
	if errors.Is(err, services.ErrSecurity) {
		c.session.Invalidate()
	}
	return statusResult{status: status, err: err}
}

func (c *ImportChecker) fail(ctx context.Context, rec *migration.Record, failureType, detail string, log migration.Log) error {
	if c.escalator == nil {
		return errors.New("no escalator configured")
	}
	return c.escalator.Fail(ctx, rec, failureType, detail, log)
}
