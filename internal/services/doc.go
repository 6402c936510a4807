// Package services defines shared utilities consumed by the workflow actions,
// the scan loops and the remote platform clients.
//
// Key responsibilities:
//   - Context helpers that stamp link/site identifiers, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     (retryable, size abort, security fatal) consistently across clients.
//
// The subpackages hold the REST clients for the source platform, the target
// platform, the issue tracker and the S3-compatible object store.
package services
