package migration

import (
	"fmt"
	"strings"
	"time"
)

// State is the pipeline position of a record.
type State string

const (
	StateInit      State = "init"
	StateStarting  State = "starting"
	StateExporting State = "exporting"
	StateRunning   State = "running"
	StateQueued    State = "queued"
	StateUploading State = "uploading"
	StateImporting State = "importing"
	StateUpdating  State = "updating"
	StateCompleted State = "completed"
	StateError     State = "error"
	StatePaused    State = "paused"
	StateAdmin     State = "admin"
)

var allStates = []State{
	StateInit,
	StateStarting,
	StateExporting,
	StateRunning,
	StateQueued,
	StateUploading,
	StateImporting,
	StateUpdating,
	StateCompleted,
	StateError,
	StatePaused,
	StateAdmin,
}

// busyStates hold a site: a record in one of them owns the site's single worker slot.
var busyStates = []State{
	StateExporting,
	StateRunning,
	StateQueued,
	StateUploading,
	StateImporting,
	StateUpdating,
}

// siteHoldingStates block another link from starting on the same site. A
// record parked by an operator keeps the site until it is resolved.
var siteHoldingStates = append([]State{StatePaused, StateAdmin}, busyStates...)

// AllStates returns every known state in pipeline order.
func AllStates() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

// BusyStates returns the states that occupy a site.
func BusyStates() []State {
	out := make([]State, len(busyStates))
	copy(out, busyStates)
	return out
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	for _, state := range allStates {
		if state == normalized {
			return state, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further pipeline work happens in this state.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateError
}

// IsRest reports whether the state is an operator-only rest state.
func (s State) IsRest() bool {
	return s == StatePaused || s == StateAdmin
}

// IsBusy reports whether a record in this state holds its site.
func (s State) IsBusy() bool {
	for _, busy := range busyStates {
		if s == busy {
			return true
		}
	}
	return false
}

// HoldsSite reports whether a record in this state keeps other links off
// its site. Unlike IsBusy it includes the operator rest states.
func (s State) HoldsSite() bool {
	return s.IsBusy() || s.IsRest()
}

// OrderBy selects the candidate ordering for List.
type OrderBy int

const (
	// OrderStartedAt sorts by ascending started_at.
	OrderStartedAt OrderBy = iota
	// OrderZipSize sorts by ascending zip_size so smaller artifacts go first.
	OrderZipSize
)

func (o OrderBy) clause() string {
	switch o {
	case OrderZipSize:
		return "zip_size ASC, started_at ASC, link_id ASC, site_id ASC"
	default:
		return "started_at ASC, link_id ASC, site_id ASC"
	}
}

// Record is one (link_id, site_id) pipeline instance.
type Record struct {
	LinkID         string
	SiteID         string
	State          State
	Active         bool
	FailureType    string
	FailureDetail  string
	TransferSiteID string
	ImportedSiteID string
	TargetSiteID   string
	Files          map[string]string
	Workflow       Log
	ZipSize        int64
	StartedAt      time.Time
	UploadedAt     time.Time
	ModifiedAt     time.Time
	ModifiedBy     string
	Notification   []string
	StartedBy      string
	Title          string

	// Expired is computed by List when an expiry window is supplied.
	Expired bool
}

// Key renders the record identity for logs and tables.
func (r *Record) Key() string {
	if r == nil {
		return ""
	}
	return r.LinkID + "/" + r.SiteID
}

// File returns the artifact path recorded under key.
func (r *Record) File(key string) (string, bool) {
	if r == nil || r.Files == nil {
		return "", false
	}
	path, ok := r.Files[key]
	return path, ok && strings.TrimSpace(path) != ""
}

// Log outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
	OutcomeInfo   = "info"
)

// LogEntry is one line of a record's persisted workflow log.
type LogEntry struct {
	At      time.Time `json:"at"`
	Step    string    `json:"step"`
	Outcome string    `json:"outcome"`
	Text    string    `json:"text,omitempty"`
}

// Log is the ordered workflow log accumulated across a record's lifetime.
type Log []LogEntry

// Append returns the log with one more entry stamped now.
func (l Log) Append(step, outcome, text string) Log {
	return append(l, LogEntry{At: time.Now().UTC(), Step: step, Outcome: outcome, Text: strings.TrimSpace(text)})
}

// String renders the log as plain text for emails and ticket bodies.
func (l Log) String() string {
	var b strings.Builder
	for _, entry := range l {
		fmt.Fprintf(&b, "%s %-7s %s", entry.At.UTC().Format(time.RFC3339), entry.Outcome, entry.Step)
		if entry.Text != "" {
			b.WriteString(": ")
			b.WriteString(entry.Text)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
