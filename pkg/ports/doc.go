// Package ports defines the interfaces between the orchestration core and
// its adapters: stage adapters wrapping external tools, run storage, the
// event bus, notifiers and metrics.
package ports
