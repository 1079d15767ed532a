// Package orchestrator manages pipeline run lifecycles.
//
// The manager coordinates runs by:
//   - Validating the stage graph and resolving adapters before launch
//   - Managing the run lifecycle (submit, track, cancel)
//   - Publishing events to the event bus
//   - Persisting run state via run storage
package orchestrator
