// Package noop provides a metrics collector that discards everything,
// for tests and one-shot runs.
package noop

import "time"

// Collector discards all metrics.
type Collector struct{}

// NewCollector creates a no-op collector.
func NewCollector() *Collector { return &Collector{} }

func (Collector) RecordRunSubmitted(string) {}

func (Collector) RecordRunCompleted(string, time.Duration) {}

func (Collector) RecordStageExecuted(string, string, time.Duration) {}

func (Collector) RecordGateEvaluated(string) {}

func (Collector) RecordNotification(string) {}

func (Collector) RecordWorkerOccupancy(int, int) {}
