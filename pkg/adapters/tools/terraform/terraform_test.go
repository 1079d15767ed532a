package terraform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conduitci/conduit/pkg/adapters/toolexec"
	"github.com/conduitci/conduit/pkg/ports"
)

// scriptRunner replays canned results per invocation, keyed by the first
// argument (the terraform subcommand).
type scriptRunner struct {
	results map[string]*toolexec.Result
	calls   []string
	dirs    []string
}

func (r *scriptRunner) Run(_ context.Context, _ string, args []string, opts ...toolexec.Option) (*toolexec.Result, error) {
	options := &toolexec.Options{}
	for _, opt := range opts {
		opt(options)
	}
	r.calls = append(r.calls, args[0])
	r.dirs = append(r.dirs, options.Dir)

	if res, ok := r.results[args[0]]; ok {
		return res, nil
	}
	return &toolexec.Result{}, nil
}

const outputsJSON = `{
  "cluster_endpoint": {"value": "https://10.0.0.1:6443", "sensitive": false},
  "registry_url": {"value": "registry.example.com", "sensitive": false},
  "admin_password": {"value": "hunter2", "sensitive": true},
  "node_count": {"value": 3, "sensitive": false}
}`

func TestExecuteAppliesAndExtractsOutputs(t *testing.T) {
	runner := &scriptRunner{results: map[string]*toolexec.Result{
		"output": {Stdout: outputsJSON},
	}}
	adapter := New(Config{}, runner, zap.NewNop())

	res, err := adapter.Execute(context.Background(), ports.StageContext{
		RunID:   "run-1",
		StageID: "provision",
		Params:  map[string]string{"dir": "./infra"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"init", "apply", "output"}, runner.calls)
	for _, dir := range runner.dirs {
		assert.Equal(t, "./infra", dir)
	}

	require.Len(t, res.Artifacts, 3)
	assert.Equal(t, "https://10.0.0.1:6443", res.Artifacts["cluster_endpoint"].Reference)
	assert.Equal(t, "registry.example.com", res.Artifacts["registry_url"].Reference)
	// Non-string outputs are carried as raw JSON.
	assert.Equal(t, "3", res.Artifacts["node_count"].Reference)

	// Sensitive outputs never become artifacts.
	_, ok := res.Artifacts["admin_password"]
	assert.False(t, ok)
}

func TestExecuteApplyFailure(t *testing.T) {
	runner := &scriptRunner{results: map[string]*toolexec.Result{
		"apply": {ExitCode: 1, Stderr: "Error: resource already exists"},
	}}
	adapter := New(Config{}, runner, zap.NewNop())

	_, err := adapter.Execute(context.Background(), ports.StageContext{
		Params: map[string]string{"dir": "./infra"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terraform apply")
	assert.Contains(t, err.Error(), "already exists")
}

func TestExecuteMissingDir(t *testing.T) {
	adapter := New(Config{}, &scriptRunner{}, zap.NewNop())

	_, err := adapter.Execute(context.Background(), ports.StageContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dir")
}

func TestParseOutputsInvalid(t *testing.T) {
	_, err := parseOutputs([]byte("not json"))
	assert.Error(t, err)
}
