package kubectl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conduitci/conduit/pkg/adapters/toolexec"
	"github.com/conduitci/conduit/pkg/ports"
)

type scriptRunner struct {
	results map[string]*toolexec.Result
	calls   [][]string
}

func (r *scriptRunner) Run(_ context.Context, _ string, args []string, _ ...toolexec.Option) (*toolexec.Result, error) {
	r.calls = append(r.calls, args)
	if res, ok := r.results[args[0]]; ok {
		return res, nil
	}
	return &toolexec.Result{}, nil
}

func (r *scriptRunner) subcommands() []string {
	out := make([]string, len(r.calls))
	for i, call := range r.calls {
		out[i] = call[0]
	}
	return out
}

func TestExecuteApplyAndRollout(t *testing.T) {
	runner := &scriptRunner{}
	adapter := New(Config{}, runner, zap.NewNop())

	res, err := adapter.Execute(context.Background(), ports.StageContext{
		RunID:   "run-1",
		StageID: "deploy",
		Params: map[string]string{
			"manifest":   "deploy/app.yaml",
			"deployment": "app",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"apply", "rollout"}, runner.subcommands())
	assert.Equal(t, []string{"apply", "-n", "default", "-f", "deploy/app.yaml"}, runner.calls[0])
	assert.Equal(t, "default/deployment/app", res.Artifacts["deployment"].Reference)
}

func TestExecuteSetImage(t *testing.T) {
	runner := &scriptRunner{}
	adapter := New(Config{}, runner, zap.NewNop())

	res, err := adapter.Execute(context.Background(), ports.StageContext{
		Params: map[string]string{
			"manifest":   "deploy/",
			"namespace":  "staging",
			"deployment": "app",
			"container":  "web",
			"image":      "registry.example.com/app@sha256:abc123",
		},
	})
	require.NoError(t, err)

	require.Equal(t, []string{"apply", "set", "rollout"}, runner.subcommands())
	assert.Equal(t, []string{
		"set", "image", "-n", "staging",
		"deployment/app", "web=registry.example.com/app@sha256:abc123",
	}, runner.calls[1])
	assert.Equal(t, "staging/deployment/app", res.Artifacts["deployment"].Reference)
}

func TestExecuteRolloutFailure(t *testing.T) {
	runner := &scriptRunner{results: map[string]*toolexec.Result{
		"rollout": {ExitCode: 1, Stderr: "deployment exceeded its progress deadline"},
	}}
	adapter := New(Config{}, runner, zap.NewNop())

	_, err := adapter.Execute(context.Background(), ports.StageContext{
		Params: map[string]string{"manifest": "deploy/app.yaml", "deployment": "app"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "progress deadline")
}

func TestExecuteMissingParams(t *testing.T) {
	adapter := New(Config{}, &scriptRunner{}, zap.NewNop())

	_, err := adapter.Execute(context.Background(), ports.StageContext{
		Params: map[string]string{"deployment": "app"},
	})
	assert.Error(t, err)

	_, err = adapter.Execute(context.Background(), ports.StageContext{
		Params: map[string]string{"manifest": "deploy/app.yaml"},
	})
	assert.Error(t, err)
}

func TestExecuteImageArtifactResolution(t *testing.T) {
	runner := &scriptRunner{}
	adapter := New(Config{}, runner, zap.NewNop())

	_, err := adapter.Execute(context.Background(), ports.StageContext{
		Params: map[string]string{
			"manifest":   "deploy/app.yaml",
			"deployment": "app",
			"container":  "web",
		},
	})
	require.NoError(t, err)

	// Without an image the set step is skipped entirely.
	assert.Equal(t, []string{"apply", "rollout"}, runner.subcommands())
}
