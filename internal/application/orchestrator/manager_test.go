package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conduitci/conduit/internal/application/executor"
	eventsmemory "github.com/conduitci/conduit/pkg/adapters/events/memory"
	"github.com/conduitci/conduit/pkg/adapters/metrics/noop"
	storagememory "github.com/conduitci/conduit/pkg/adapters/storage/memory"
	"github.com/conduitci/conduit/pkg/adapters/tools"
	"github.com/conduitci/conduit/pkg/domain"
	"github.com/conduitci/conduit/pkg/ports"
)

type instantAdapter struct {
	name  string
	block chan struct{}
}

func (a *instantAdapter) Name() string { return a.name }

func (a *instantAdapter) Execute(ctx context.Context, _ ports.StageContext) (*domain.StageResult, error) {
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &domain.StageResult{}, nil
}

func newTestManager(t *testing.T, adapters ...ports.StageAdapter) (*Manager, ports.RunStorage) {
	t.Helper()

	storage := storagememory.NewRunStorage()
	events := eventsmemory.NewInMemoryEventBus()
	metrics := noop.NewCollector()

	registry := tools.NewRegistry()
	for _, a := range adapters {
		require.NoError(t, registry.Register(a))
	}

	exec := executor.New(executor.Config{
		Storage:             storage,
		Events:              events,
		Metrics:             metrics,
		Logger:              zap.NewNop(),
		MaxConcurrentStages: 2,
		StageTimeout:        time.Minute,
	})

	return NewManager(exec, registry, storage, events, metrics, zap.NewNop(), time.Minute), storage
}

func waitTerminal(t *testing.T, m *Manager, runID string) *domain.PipelineRun {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, err := m.GetRun(context.Background(), runID)
		require.NoError(t, err)
		if run.Status.Terminal() {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s never reached a terminal status", runID)
	return nil
}

func TestSubmitRunsToCompletion(t *testing.T) {
	m, _ := newTestManager(t, &instantAdapter{name: "noop"})

	runID, err := m.Submit(context.Background(), &domain.PipelineSpec{
		Name: "quick",
		Stages: []domain.StageSpec{
			{ID: "a", Adapter: "noop"},
			{ID: "b", Adapter: "noop", DependsOn: []string{"a"}},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	run := waitTerminal(t, m, runID)
	assert.Equal(t, domain.RunStatusSucceeded, run.Status)
}

func TestSubmitRejectsInvalidPipeline(t *testing.T) {
	m, _ := newTestManager(t, &instantAdapter{name: "noop"})

	_, err := m.Submit(context.Background(), &domain.PipelineSpec{
		Name: "cyclic",
		Stages: []domain.StageSpec{
			{ID: "a", Adapter: "noop", DependsOn: []string{"b"}},
			{ID: "b", Adapter: "noop", DependsOn: []string{"a"}},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCycleDetected)
}

func TestSubmitRejectsUnknownAdapter(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Submit(context.Background(), &domain.PipelineSpec{
		Name:   "unknown",
		Stages: []domain.StageSpec{{ID: "a", Adapter: "ghost"}},
	})
	assert.ErrorIs(t, err, domain.ErrUnknownAdapter)
}

func TestCancelActiveRun(t *testing.T) {
	blocker := &instantAdapter{name: "blocking", block: make(chan struct{})}
	m, _ := newTestManager(t, blocker)

	runID, err := m.Submit(context.Background(), &domain.PipelineSpec{
		Name:   "long",
		Stages: []domain.StageSpec{{ID: "a", Adapter: "blocking"}},
	})
	require.NoError(t, err)

	// Wait for the stage to actually start before cancelling.
	require.Eventually(t, func() bool {
		run, err := m.GetRun(context.Background(), runID)
		return err == nil && run.Status == domain.RunStatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Cancel(context.Background(), runID))

	run := waitTerminal(t, m, runID)
	assert.Equal(t, domain.RunStatusCancelled, run.Status)
	assert.Equal(t, domain.SkipReasonCancelled, run.StageResults["a"].SkipReason)
}

func TestCancelTerminalRun(t *testing.T) {
	m, _ := newTestManager(t, &instantAdapter{name: "noop"})

	runID, err := m.Submit(context.Background(), &domain.PipelineSpec{
		Name:   "quick",
		Stages: []domain.StageSpec{{ID: "a", Adapter: "noop"}},
	})
	require.NoError(t, err)
	waitTerminal(t, m, runID)

	// The handle is gone once the run finishes.
	require.Eventually(t, func() bool {
		return m.Cancel(context.Background(), runID) != nil
	}, 5*time.Second, 10*time.Millisecond)

	err = m.Cancel(context.Background(), runID)
	assert.ErrorIs(t, err, domain.ErrRunTerminal)
}

func TestCancelUnknownRun(t *testing.T) {
	m, _ := newTestManager(t)

	err := m.Cancel(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestShutdownCancelsActiveRuns(t *testing.T) {
	blocker := &instantAdapter{name: "blocking", block: make(chan struct{})}
	m, _ := newTestManager(t, blocker)

	runID, err := m.Submit(context.Background(), &domain.PipelineSpec{
		Name:   "long",
		Stages: []domain.StageSpec{{ID: "a", Adapter: "blocking"}},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		run, err := m.GetRun(context.Background(), runID)
		return err == nil && run.Status == domain.RunStatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	run, err := m.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCancelled, run.Status)
}

func TestListRuns(t *testing.T) {
	m, _ := newTestManager(t, &instantAdapter{name: "noop"})

	for i := 0; i < 3; i++ {
		runID, err := m.Submit(context.Background(), &domain.PipelineSpec{
			Name:   "quick",
			Stages: []domain.StageSpec{{ID: "a", Adapter: "noop"}},
		})
		require.NoError(t, err)
		waitTerminal(t, m, runID)
	}

	runs, err := m.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}
