// Package migration persists migration records and exposes the typed
// accessors the scan loops and workers use to move them through the pipeline.
//
// One row exists per (link_id, site_id). Every write is a single-row,
// single-statement update; ownership of a record is enforced by the
// single-worker-per-site check at admission time rather than by locking.
// Admission updates are additionally guarded by the expected source state so
// two scanners cannot both move the same record forward.
//
// The Store runs on SQLite (default) or PostgreSQL. Queries are written once
// with '?' placeholders and rebound per dialect; the schema is applied from
// embedded, versioned migration files recorded in schema_migrations.
//
// Any driver, connectivity or constraint failure is reported wrapped in
// ErrStoreUnavailable.
package migration
