// Package events holds the event bus adapters. The redis implementation
// uses Streams with consumer groups for multi-server delivery; memory is
// a synchronous bus for tests and one-shot runs.
package events
