// Package preflight provides readiness checks for the directories and remote
// services sitemigrate depends on.
//
// These checks run in two contexts:
//   - "sitemigrate check" prints every result as a table.
//   - A scan loop runs RunAll at start and refuses to start when a required
//     check fails, so it never admits records into a pipeline that cannot
//     make progress.
//
// Remote checks are skipped for collaborators that are not configured.
package preflight
