// Package domain holds the core types of the pipeline orchestration engine:
// pipeline and stage specifications, run state, stage results with
// severity-tagged findings, artifact references, gate policies and the
// lifecycle events published on the bus.
package domain
