// Package storage holds the run storage adapters: redis persists JSON
// run records with a TTL, memory keeps snapshots for tests and one-shot
// runs.
package storage
