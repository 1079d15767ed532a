package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduitci/conduit/internal/application/executor"
	"github.com/conduitci/conduit/internal/application/graph"
	"github.com/conduitci/conduit/pkg/domain"
	"github.com/conduitci/conduit/pkg/ports"
)

// Manager coordinates pipeline run lifecycles: submission, tracking,
// cancellation and graceful shutdown.
type Manager struct {
	executor *executor.Executor
	registry ports.AdapterRegistry
	storage  ports.RunStorage
	events   ports.EventBus
	metrics  ports.MetricsCollector
	logger   *zap.Logger

	// Track active runs
	runs sync.Map // map[string]*runHandle

	runTimeout time.Duration
}

// runHandle holds the cancellation hook for one active run.
type runHandle struct {
	runID     string
	startedAt time.Time
	cancel    context.CancelFunc
}

// NewManager creates a run manager.
func NewManager(
	exec *executor.Executor,
	registry ports.AdapterRegistry,
	storage ports.RunStorage,
	events ports.EventBus,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	runTimeout time.Duration,
) *Manager {
	return &Manager{
		executor:   exec,
		registry:   registry,
		storage:    storage,
		events:     events,
		metrics:    metrics,
		logger:     logger,
		runTimeout: runTimeout,
	}
}

// Submit validates a pipeline specification and launches its execution.
// Graph construction errors (duplicate stages, unknown dependencies,
// cycles) and unknown adapter names are fatal here, before any stage runs.
func (m *Manager) Submit(ctx context.Context, spec *domain.PipelineSpec) (string, error) {
	g, err := graph.FromSpec(spec)
	if err != nil {
		m.logger.Error("pipeline validation failed",
			zap.String("pipeline", specName(spec)),
			zap.Error(err))
		m.metrics.RecordRunSubmitted("rejected")
		return "", fmt.Errorf("validation failed: %w", err)
	}

	adapters := make(map[string]ports.StageAdapter, g.Len())
	for _, st := range g.Stages() {
		adapter, ok := m.registry.Get(st.Adapter)
		if !ok {
			m.metrics.RecordRunSubmitted("rejected")
			return "", fmt.Errorf("%w: %q (stage %q)", domain.ErrUnknownAdapter, st.Adapter, st.ID)
		}
		adapters[st.Adapter] = adapter
	}

	runID := uuid.New().String()
	run := domain.NewPipelineRun(runID, spec)

	if err := m.storage.SaveRun(ctx, run); err != nil {
		m.logger.Error("failed to save initial run state",
			zap.String("run_id", runID),
			zap.Error(err))
		return "", fmt.Errorf("failed to save run: %w", err)
	}

	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      domain.EventTypeRunSubmitted,
		RunID:     runID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"pipeline": spec.Name,
			"stages":   g.Len(),
		},
	}
	if err := m.events.Publish(ctx, executor.TopicRunEvents, event); err != nil {
		m.logger.Error("failed to publish run submitted event",
			zap.String("run_id", runID),
			zap.Error(err))
	}

	runCtx, cancel := context.WithTimeout(context.Background(), m.runTimeout)
	m.runs.Store(runID, &runHandle{
		runID:     runID,
		startedAt: time.Now(),
		cancel:    cancel,
	})

	m.metrics.RecordRunSubmitted("submitted")
	m.logger.Info("run submitted",
		zap.String("run_id", runID),
		zap.String("pipeline", spec.Name))

	go func() {
		defer cancel()
		defer m.runs.Delete(runID)
		if err := m.executor.Run(runCtx, run, g, adapters); err != nil {
			m.logger.Error("run aborted before execution",
				zap.String("run_id", runID),
				zap.Error(err))
		}
	}()

	return runID, nil
}

// GetRun retrieves the current state of a run.
func (m *Manager) GetRun(ctx context.Context, runID string) (*domain.PipelineRun, error) {
	return m.storage.GetRun(ctx, runID)
}

// ListRuns returns all persisted runs.
func (m *Manager) ListRuns(ctx context.Context) ([]*domain.PipelineRun, error) {
	return m.storage.ListRuns(ctx)
}

// Cancel aborts an active run. Pending and running stages transition to
// Skipped and the notifier still fires exactly once.
func (m *Manager) Cancel(ctx context.Context, runID string) error {
	val, ok := m.runs.Load(runID)
	if !ok {
		run, err := m.storage.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if run.Status.Terminal() {
			return fmt.Errorf("%w: %s", domain.ErrRunTerminal, run.Status)
		}
		return fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}

	handle := val.(*runHandle)
	handle.cancel()

	m.logger.Info("run cancellation requested",
		zap.String("run_id", runID))
	return nil
}

// Shutdown cancels all active runs and waits for them to reach a terminal
// state or the context to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down run manager")

	m.runs.Range(func(key, value interface{}) bool {
		value.(*runHandle).cancel()
		return true
	})

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		active := 0
		m.runs.Range(func(key, value interface{}) bool {
			active++
			return true
		})
		if active == 0 {
			m.logger.Info("run manager shut down complete")
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("shutdown timeout with %d active runs", active)
		case <-ticker.C:
		}
	}
}

func specName(spec *domain.PipelineSpec) string {
	if spec == nil {
		return ""
	}
	return spec.Name
}
