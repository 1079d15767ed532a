package ports

import (
	"context"
	"time"

	"github.com/conduitci/conduit/pkg/domain"
)

// ArtifactReader exposes artifacts produced by upstream stages to a stage
// adapter. Adapters must only read artifacts of declared dependencies.
type ArtifactReader interface {
	Get(stageID, name string) (domain.ArtifactRef, error)
}

// StageContext carries everything an adapter needs for one invocation.
// Configuration is passed explicitly per call; adapters hold no run state.
type StageContext struct {
	RunID     string
	StageID   string
	Params    map[string]string
	Artifacts ArtifactReader
}

// StageAdapter wraps one external tool or service as a stage
// implementation. Execute returns a StageResult with findings and
// artifacts; an error return is treated by the executor as a stage
// failure, never as an engine failure. Retries, if any, are the adapter's
// own responsibility and must be idempotent.
type StageAdapter interface {
	Name() string
	Execute(ctx context.Context, sc StageContext) (*domain.StageResult, error)
}

// AdapterRegistry resolves adapter names declared in pipeline
// definitions to stage adapters.
type AdapterRegistry interface {
	Get(name string) (StageAdapter, bool)
	Names() []string
}

// RunStorage persists pipeline run records for audit and replay.
type RunStorage interface {
	SaveRun(ctx context.Context, run *domain.PipelineRun) error
	GetRun(ctx context.Context, runID string) (*domain.PipelineRun, error)
	ListRuns(ctx context.Context) ([]*domain.PipelineRun, error)
	DeleteRun(ctx context.Context, runID string) error
}

// EventHandler processes a single event from the bus.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes and delivers run/stage lifecycle events.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// Notifier delivers the terminal status of a run to an external channel.
// The executor invokes it exactly once per run; delivery failures are
// surfaced on the run record but never fail the pipeline.
type Notifier interface {
	Notify(ctx context.Context, run *domain.PipelineRun) error
}

// RunSummarizer produces a short human-readable summary of a run,
// used to enrich notifications. Optional.
type RunSummarizer interface {
	Summarize(ctx context.Context, run *domain.PipelineRun) (string, error)
}

// MetricsCollector records orchestration metrics.
type MetricsCollector interface {
	RecordRunSubmitted(status string)
	RecordRunCompleted(status string, duration time.Duration)
	RecordStageExecuted(adapter, status string, duration time.Duration)
	RecordGateEvaluated(outcome string)
	RecordNotification(outcome string)
	RecordWorkerOccupancy(busy, capacity int)
}
