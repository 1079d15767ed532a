package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/conduitci/conduit/pkg/domain"
)

const keyPrefix = "conduit:run:"

// RunStorage implements run storage using Redis
type RunStorage struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRunStorage creates a new Redis run storage. The TTL bounds how long
// completed runs stay queryable; zero keeps them forever.
func NewRunStorage(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RunStorage {
	return &RunStorage{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveRun persists a snapshot of the run (ports.RunStorage interface)
func (s *RunStorage) SaveRun(ctx context.Context, run *domain.PipelineRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	if err := s.client.Set(ctx, runKey(run.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	s.logger.Debug("run saved",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)))

	return nil
}

// GetRun retrieves a run by ID (ports.RunStorage interface)
func (s *RunStorage) GetRun(ctx context.Context, runID string) (*domain.PipelineRun, error) {
	data, err := s.client.Get(ctx, runKey(runID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run domain.PipelineRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}

	return &run, nil
}

// ListRuns returns all stored runs, newest first (ports.RunStorage interface)
func (s *RunStorage) ListRuns(ctx context.Context) ([]*domain.PipelineRun, error) {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		return nil, err
	}

	runs := make([]*domain.PipelineRun, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			// Key may have expired between scan and get.
			continue
		}

		var run domain.PipelineRun
		if err := json.Unmarshal(data, &run); err != nil {
			s.logger.Warn("skipping unreadable run record", zap.String("key", key))
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
	if err := s.client.Del(ctx, runKey(runID)).Err(); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	s.logger.Debug("run deleted", zap.String("run_id", runID))

	return nil
}

func (s *RunStorage) scanKeys(ctx context.Context) ([]string, error) {
	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// runKey returns the Redis key for a run record
func runKey(runID string) string {
	return keyPrefix + runID
}
