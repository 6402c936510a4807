// Package escalation records job failures and tells people about them.
//
// A failure has three independent side effects: the record moves to the
// error state, a notification goes to the record's recipients plus the user
// who started it, and the issue tracker gets a ticket for the site. One side
// effect failing never prevents the others.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sitemigrate/internal/config"
	"sitemigrate/internal/logging"
	"sitemigrate/internal/migration"
	"sitemigrate/internal/notifications"
	"sitemigrate/internal/services/tracker"
)

// FailureStore persists the error state of a record.
type FailureStore interface {
	SetFailure(ctx context.Context, linkID, siteID, failureType, detail string, log migration.Log) error
}

// Tracker files and closes tickets.
type Tracker interface {
	Report(ctx context.Context, issue tracker.Issue) (string, error)
	Close(ctx context.Context, siteID string) (int, error)
}

// Escalator fans a failure out to the store, notifications and the tracker.
type Escalator struct {
	store   FailureStore
	sender  notifications.Sender
	tracker Tracker
	logger  *slog.Logger
}

// New assembles an Escalator. A nil tracker disables ticketing.
func New(store FailureStore, sender notifications.Sender, tr Tracker, logger *slog.Logger) *Escalator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Escalator{store: store, sender: sender, tracker: tr, logger: logger}
}

// NewFromConfig wires the configured notification backend and tracker.
func NewFromConfig(cfg *config.Config, store FailureStore, logger *slog.Logger) *Escalator {
	var tr Tracker
	if cfg.Tracker.Enabled {
		tr = tracker.New(cfg.Tracker)
	}
	return New(store, notifications.NewSender(cfg, logger), tr, logger)
}

// Fail moves rec to the error state and escalates the failure.
func (e *Escalator) Fail(ctx context.Context, rec *migration.Record, failureType, detail string, log migration.Log) error {
	var errs []error
	if e.store != nil {
		if err := e.store.SetFailure(ctx, rec.LinkID, rec.SiteID, failureType, detail, log); err != nil {
			logging.ErrorWithContext(e.logger, "failed to persist failure state", "escalation_store_failed",
				logging.String(logging.FieldLinkID, rec.LinkID),
				logging.String(logging.FieldSiteID, rec.SiteID),
				logging.Error(err),
			)
			errs = append(errs, fmt.Errorf("persist failure: %w", err))
		}
	}
	if err := e.Escalate(ctx, rec, failureType, detail, log); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Escalate notifies and files a ticket without touching the record state.
func (e *Escalator) Escalate(ctx context.Context, rec *migration.Record, failureType, detail string, log migration.Log) error {
	logger := e.logger.With(
		logging.String(logging.FieldLinkID, rec.LinkID),
		logging.String(logging.FieldSiteID, rec.SiteID),
	)
	logging.WarnWithContext(logger, "migration failure escalated", "migration_failed",
		logging.String("failure_type", failureType),
		logging.String("failure_detail", detail),
		logging.String(logging.FieldState, string(rec.State)),
		logging.String(logging.FieldImpact, "site migration stopped until retried"),
	)

	var errs []error
	if e.sender != nil {
		msg := notifications.Message{
			Template:   "migration-failed",
			Recipients: rec.Notification,
			StartedBy:  rec.StartedBy,
			Values:     failureValues(rec, failureType, detail, log),
		}
		if err := e.sender.Send(ctx, msg); err != nil {
			logging.WarnWithContext(logger, "failure notification not delivered", "notification_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notifications settings"),
			)
			errs = append(errs, fmt.Errorf("notify: %w", err))
		}
	}
	if e.tracker != nil {
		issue := tracker.Issue{
			SiteID:      rec.SiteID,
			Summary:     fmt.Sprintf("Migration of %s failed: %s", rec.SiteID, failureType),
			Description: describe(rec, failureType, detail, log),
		}
		if key, err := e.tracker.Report(ctx, issue); err != nil {
			logging.WarnWithContext(logger, "failure ticket not filed", "tracker_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check tracker settings"),
			)
			errs = append(errs, fmt.Errorf("report: %w", err))
		} else {
			logger.Info("failure ticket updated", logging.String("ticket", key))
		}
	}
	return errors.Join(errs...)
}

// Resolve closes outstanding tickets for the record's site.
func (e *Escalator) Resolve(ctx context.Context, rec *migration.Record) error {
	if e.tracker == nil {
		return nil
	}
	closed, err := e.tracker.Close(ctx, rec.SiteID)
	if err != nil {
		return fmt.Errorf("close tickets for %s: %w", rec.SiteID, err)
	}
	if closed > 0 {
		e.logger.Info("failure tickets closed",
			logging.String(logging.FieldSiteID, rec.SiteID),
			logging.Int("count", closed),
		)
	}
	return nil
}

func failureValues(rec *migration.Record, failureType, detail string, log migration.Log) map[string]any {
	return map[string]any{
		"link_id":        rec.LinkID,
		"site_id":        rec.SiteID,
		"title":          rec.Title,
		"state":          string(rec.State),
		"failure_type":   failureType,
		"failure_detail": detail,
		"log":            log.String(),
	}
}

func describe(rec *migration.Record, failureType, detail string, log migration.Log) string {
	text := fmt.Sprintf("Request: %s\nSite: %s\nState: %s\nFailure: %s\n", rec.LinkID, rec.SiteID, rec.State, failureType)
	if detail != "" {
		text += "Detail: " + detail + "\n"
	}
	if len(log) > 0 {
		text += "\nWorkflow log:\n" + log.String()
	}
	return text
}
