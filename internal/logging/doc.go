// Package logging assembles the structured slog loggers used by the scan loops,
// the workers and the CLI.
//
// It owns the console and JSON handlers, level and output plumbing, the tee
// handler that mirrors worker output into per-run logs, and context helpers
// that tag lines with link/site identifiers and stage names. Old worker and
// run logs are pruned by CleanupOldLogs.
package logging
