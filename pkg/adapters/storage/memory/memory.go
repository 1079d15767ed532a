package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/conduitci/conduit/pkg/domain"
)

// RunStorage implements run storage using an in-memory map. Runs are
// stored as JSON snapshots so readers never observe a run mutating
// under the executor.
type RunStorage struct {
	runs map[string][]byte
	mu   sync.RWMutex
}

// NewRunStorage creates a new in-memory run storage
func NewRunStorage() *RunStorage {
	return &RunStorage{
		runs: make(map[string][]byte),
	}
}

// SaveRun persists a snapshot of the run (ports.RunStorage interface)
func (s *RunStorage) SaveRun(ctx context.Context, run *domain.PipelineRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = data
	return nil
}

// GetRun retrieves a run by ID (ports.RunStorage interface)
func (s *RunStorage) GetRun(ctx context.Context, runID string) (*domain.PipelineRun, error) {
	s.mu.RLock()
	data, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}

	var run domain.PipelineRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}

// ListRuns returns all stored runs, newest first (ports.RunStorage interface)
func (s *RunStorage) ListRuns(ctx context.Context) ([]*domain.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*domain.PipelineRun, 0, len(s.runs))
	for _, data := range s.runs {
		var run domain.PipelineRun
		if err := json.Unmarshal(data, &run); err != nil {
			continue
		}
		runs = append(runs, &run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].SubmittedAt.After(runs[j].SubmittedAt)
	})
	return runs, nil
}

// DeleteRun removes a run (ports.RunStorage interface)
func (s *RunStorage) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, runID)
	return nil
}
