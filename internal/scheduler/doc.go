// Package scheduler runs the scan loops that admit records into pipeline
// stages.
//
// Each stage has a ceiling on how many records may occupy it. A pass counts
// the occupied slots, lists candidates in the stage's order, and admits
// candidates one by one until the ceiling is reached: the record moves to
// its admitted state and a worker process is spawned for the stage's
// workflow. A pass that finds its stage full backs off. The import checker is
// a third pass that polls the target platform for the outcome of running
// imports. Passes never run concurrently within a loop, and one lock file per
// stage keeps a second loop from starting.
package scheduler
