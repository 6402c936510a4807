package preflight

import (
	"context"
	"strings"

	"sitemigrate/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Detail   string
	Optional bool
}

// Pinger is anything with a cheap reachability probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Remotes holds the probes for each collaborator. Nil entries are reported as
// not configured.
type Remotes struct {
	Store   Pinger
	Source  Pinger
	Target  Pinger
	Tracker Pinger
	Objects Pinger
}

// RunAll executes every applicable preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config, remotes Remotes) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Flag directory", cfg.Paths.FlagDir),
		CheckFreeSpace("Work disk space", cfg.Paths.WorkDir, uint64(max(cfg.Export.MaxArchiveBytes, 0))),
	}
	results = append(results, CheckCommands(cfg.Actions.Commands)...)

	results = append(results, CheckService(ctx, "Record store", remotes.Store, true))
	results = append(results, CheckService(ctx, "Source platform", remotes.Source, strings.TrimSpace(cfg.Source.BaseURL) != ""))
	results = append(results, CheckService(ctx, "Target platform", remotes.Target, strings.TrimSpace(cfg.Target.BaseURL) != ""))
	results = append(results, CheckService(ctx, "Object store", remotes.Objects, strings.TrimSpace(cfg.ObjectStore.Bucket) != ""))
	tracker := CheckService(ctx, "Issue tracker", remotes.Tracker, cfg.Tracker.Enabled)
	tracker.Optional = true
	results = append(results, tracker)
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			out = append(out, r)
		}
	}
	return out
}
