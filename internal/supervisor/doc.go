// Package supervisor tracks the worker processes spawned by the scan loops.
//
// Spawning never blocks the scan loop. Each ProcessHandle owns a goroutine
// that waits on its process, so exit codes are collected as soon as the
// process ends and no zombies accumulate. Poll walks tracked handles in the
// order they were started, logs each exit exactly once, and forgets exited
// handles.
package supervisor
