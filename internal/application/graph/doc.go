// Package graph represents and validates the stage-dependency structure of
// a pipeline. Validation rejects duplicate stages, unknown dependencies and
// cycles, and fixes a deterministic topological ordering for scheduling.
package graph
