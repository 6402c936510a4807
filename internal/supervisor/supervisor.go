package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sitemigrate/internal/logging"
)

// Exit describes one observed worker exit.
type Exit struct {
	Label    string
	PID      int
	Code     int
	Duration time.Duration
}

// OK reports whether the worker exited successfully.
func (e Exit) OK() bool {
	return e.Code == 0
}

type entry struct {
	label   string
	handle  Handle
	started time.Time
}

// Supervisor holds the handles a scan loop has spawned.
type Supervisor struct {
	mu      sync.Mutex
	entries []entry
	logger  *slog.Logger
	onExit  func(Exit)
}

// New constructs a Supervisor.
func New(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Supervisor{logger: logger}
}

// OnExit registers a callback invoked for every exit Poll observes.
func (s *Supervisor) OnExit(fn func(Exit)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExit = fn
}

// Track adds a handle. label identifies the job in log lines.
func (s *Supervisor) Track(label string, handle Handle) {
	if handle == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry{label: label, handle: handle, started: time.Now()})
}

// Len returns the number of handles still tracked.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Poll checks every tracked handle without blocking, in insertion order.
// Exited handles are logged and removed; running handles stay tracked.
func (s *Supervisor) Poll() []Exit {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exits []Exit
	kept := s.entries[:0]
	for _, e := range s.entries {
		code, done := e.handle.Exited()
		if !done {
			kept = append(kept, e)
			continue
		}
		exit := Exit{Label: e.label, PID: e.handle.PID(), Code: code, Duration: time.Since(e.started)}
		s.logExit(exit)
		if s.onExit != nil {
			s.onExit(exit)
		}
		exits = append(exits, exit)
	}
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = entry{}
	}
	s.entries = kept
	return exits
}

// Wait polls until every handle has exited or ctx ends, returning the exits
// it observed.
func (s *Supervisor) Wait(ctx context.Context, interval time.Duration) []Exit {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	var all []Exit
	for {
		all = append(all, s.Poll()...)
		if s.Len() == 0 {
			return all
		}
		select {
		case <-ctx.Done():
			if remaining := s.Len(); remaining > 0 {
				logging.WarnWithContext(s.logger, "workers still running at shutdown", "supervisor_wait_timeout",
					logging.Int("remaining", remaining),
					logging.String(logging.FieldImpact, "their exits will not be logged by this scan process"),
					logging.String(logging.FieldErrorHint, "check the worker logs for their outcome"),
				)
			}
			return all
		case <-time.After(interval):
		}
	}
}

func (s *Supervisor) logExit(exit Exit) {
	attrs := []logging.Attr{
		logging.String("job", exit.Label),
		logging.Int("pid", exit.PID),
		logging.Int("exit_code", exit.Code),
		logging.Duration("duration", exit.Duration.Round(time.Second)),
	}
	if exit.OK() {
		s.logger.Info("worker finished", logging.Args(append(attrs, logging.String(logging.FieldEventType, "worker_succeeded"))...)...)
		return
	}
	logging.ErrorWithContext(s.logger, "worker failed", "worker_failed",
		append(attrs, logging.String(logging.FieldErrorHint, "inspect the worker log and the record's failure fields"))...,
	)
}
