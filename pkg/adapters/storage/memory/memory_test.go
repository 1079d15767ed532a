package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduitci/conduit/pkg/domain"
)

func sampleRun(id string) *domain.PipelineRun {
	return domain.NewPipelineRun(id, &domain.PipelineSpec{
		Name: "sample",
		Stages: []domain.StageSpec{
			{ID: "build", Adapter: "docker-build"},
		},
	})
}

func TestSaveAndGetRun(t *testing.T) {
	storage := NewRunStorage()
	ctx := context.Background()

	run := sampleRun("run-1")
	require.NoError(t, storage.SaveRun(ctx, run))

	got, err := storage.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, domain.RunStatusSubmitted, got.Status)
	assert.Contains(t, got.StageResults, "build")
}

func TestGetRunSnapshotIsolation(t *testing.T) {
	storage := NewRunStorage()
	ctx := context.Background()

	run := sampleRun("run-1")
	require.NoError(t, storage.SaveRun(ctx, run))

	// Mutating the live run must not leak into stored state.
	run.Status = domain.RunStatusFailed

	got, err := storage.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSubmitted, got.Status)
}

func TestGetRunNotFound(t *testing.T) {
	storage := NewRunStorage()

	_, err := storage.GetRun(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	storage := NewRunStorage()
	ctx := context.Background()

	older := sampleRun("older")
	older.SubmittedAt = time.Now().Add(-time.Hour)
	newer := sampleRun("newer")

	require.NoError(t, storage.SaveRun(ctx, older))
	require.NoError(t, storage.SaveRun(ctx, newer))

	runs, err := storage.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "newer", runs[0].ID)
	assert.Equal(t, "older", runs[1].ID)
}

func TestDeleteRun(t *testing.T) {
	storage := NewRunStorage()
	ctx := context.Background()

	require.NoError(t, storage.SaveRun(ctx, sampleRun("run-1")))
	require.NoError(t, storage.DeleteRun(ctx, "run-1"))

	_, err := storage.GetRun(ctx, "run-1")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)

	// Deleting an absent run is not an error.
	assert.NoError(t, storage.DeleteRun(ctx, "run-1"))
}
