// Package workflow runs the linear step lists that make up a worker job.
//
// A Definition names an ordered list of steps. Each step dispatches a
// registered Action with the record fields it declares, may be skipped by a
// condition, and may declare the record state to persist once it succeeds.
// The Executor reloads the record before every step, stops at the first
// failure (escalating it), and persists the final state when the list is
// exhausted. Definitions ship embedded as YAML and can be overridden from a
// file.
package workflow
