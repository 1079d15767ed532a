// Package executor implements the pipeline state machine.
//
// Stages move Pending -> Running -> {Success, Failure}; dependents of a
// failed or skipped stage move straight to Skipped without their adapter
// ever being invoked. Independent stages run concurrently over a bounded
// worker pool shared across runs. Results and artifacts are write-once,
// run state is persisted at every transition, and the notifier fires
// exactly once per run on every exit path.
package executor
