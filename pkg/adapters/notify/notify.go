// Package notify provides run completion notifiers.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/conduitci/conduit/pkg/domain"
)

// LogNotifier reports run completion through the structured log. It is
// the default notifier when no external channel is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the run's terminal status and stage breakdown.
func (n *LogNotifier) Notify(_ context.Context, run *domain.PipelineRun) error {
	stages := make(map[string]string, len(run.StageResults))
	for id, res := range run.StageResults {
		stages[id] = string(res.Status)
	}

	fields := []zap.Field{
		zap.String("run_id", run.ID),
		zap.String("pipeline", run.Pipeline.Name),
		zap.String("status", string(run.Status)),
		zap.Any("stages", stages),
	}
	if run.Error != "" {
		fields = append(fields, zap.String("error", run.Error))
	}

	if run.Status == domain.RunStatusSucceeded {
		n.logger.Info("pipeline run completed", fields...)
	} else {
		n.logger.Warn("pipeline run completed", fields...)
	}
	return nil
}
