// Package terraform wraps the Terraform CLI as a provisioning stage
// adapter: init, apply, and output extraction in one stage execution.
package terraform

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/conduitci/conduit/pkg/adapters/toolexec"
	"github.com/conduitci/conduit/pkg/adapters/tools"
	"github.com/conduitci/conduit/pkg/domain"
	"github.com/conduitci/conduit/pkg/ports"
)

// Config holds terraform adapter configuration.
type Config struct {
	// Binary is the terraform executable. Defaults to "terraform".
	Binary string
}

// Adapter provisions infrastructure from a terraform working directory.
// Stage params:
//
//	dir       - working directory containing the configuration (required)
//	var_file  - optional tfvars file passed to apply
type Adapter struct {
	cfg    Config
	runner toolexec.Runner
	logger *zap.Logger
}

// New creates a terraform adapter.
func New(cfg Config, runner toolexec.Runner, logger *zap.Logger) *Adapter {
	if cfg.Binary == "" {
		cfg.Binary = "terraform"
	}
	return &Adapter{cfg: cfg, runner: runner, logger: logger}
}

func (a *Adapter) Name() string { return "terraform" }

// Execute runs init and apply, then publishes every non-sensitive root
// output as a stage artifact named after the output.
func (a *Adapter) Execute(ctx context.Context, sc ports.StageContext) (*domain.StageResult, error) {
	dir, err := tools.RequireParam(sc, "dir")
	if err != nil {
		return nil, err
	}
	varFile, err := tools.OptionalParam(sc, "var_file", "")
	if err != nil {
		return nil, err
	}

	if err := a.step(ctx, dir, "init", "-input=false", "-no-color"); err != nil {
		return nil, err
	}

	applyArgs := []string{"apply", "-input=false", "-auto-approve", "-no-color"}
	if varFile != "" {
		applyArgs = append(applyArgs, "-var-file="+varFile)
	}
	if err := a.step(ctx, dir, applyArgs...); err != nil {
		return nil, err
	}

	res, err := a.runner.Run(ctx, a.cfg.Binary, []string{"output", "-json"}, toolexec.WithDir(dir))
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("terraform output exited with code %d: %s",
			res.ExitCode, toolexec.Tail(res.Stderr, 5))
	}

	artifacts, err := parseOutputs([]byte(res.Stdout))
	if err != nil {
		return nil, fmt.Errorf("parsing terraform outputs: %w", err)
	}

	a.logger.Info("terraform apply completed",
		zap.String("run_id", sc.RunID),
		zap.String("stage_id", sc.StageID),
		zap.String("dir", dir),
		zap.Int("outputs", len(artifacts)))

	return &domain.StageResult{Artifacts: artifacts}, nil
}

func (a *Adapter) step(ctx context.Context, dir string, args ...string) error {
	res, err := a.runner.Run(ctx, a.cfg.Binary, args, toolexec.WithDir(dir))
	if err != nil {
		return fmt.Errorf("terraform %s: %w", args[0], err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("terraform %s exited with code %d: %s",
			args[0], res.ExitCode, toolexec.Tail(res.Stderr, 5))
	}
	return nil
}

type output struct {
	Value     json.RawMessage `json:"value"`
	Sensitive bool            `json:"sensitive"`
}

// parseOutputs maps terraform's `output -json` document to artifacts.
// Sensitive outputs are withheld: artifact references are visible in run
// results and over the event stream.
func parseOutputs(data []byte) (map[string]domain.ArtifactRef, error) {
	var outputs map[string]output
	if err := json.Unmarshal(data, &outputs); err != nil {
		return nil, err
	}

	artifacts := make(map[string]domain.ArtifactRef, len(outputs))
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		out := outputs[name]
		if out.Sensitive {
			continue
		}
		var reference string
		var str string
		if err := json.Unmarshal(out.Value, &str); err == nil {
			reference = str
		} else {
			reference = string(out.Value)
		}
		artifacts[name] = domain.ArtifactRef{Name: name, Reference: reference}
	}
	return artifacts, nil
}
