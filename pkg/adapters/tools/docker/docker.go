// Package docker wraps the Docker CLI as a build stage adapter: build,
// optional push, and digest resolution.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/conduitci/conduit/pkg/adapters/toolexec"
	"github.com/conduitci/conduit/pkg/adapters/tools"
	"github.com/conduitci/conduit/pkg/domain"
	"github.com/conduitci/conduit/pkg/ports"
)

// Config holds docker adapter configuration.
type Config struct {
	// Binary is the docker executable. Defaults to "docker".
	Binary string
}

// Adapter builds and optionally pushes a container image. Stage params:
//
//	context    - build context directory (required)
//	tag        - image tag to build (required)
//	dockerfile - optional Dockerfile path relative to the context
//	push       - "true" to push and resolve the registry digest
type Adapter struct {
	cfg    Config
	runner toolexec.Runner
	logger *zap.Logger
}

// New creates a docker adapter.
func New(cfg Config, runner toolexec.Runner, logger *zap.Logger) *Adapter {
	if cfg.Binary == "" {
		cfg.Binary = "docker"
	}
	return &Adapter{cfg: cfg, runner: runner, logger: logger}
}

func (a *Adapter) Name() string { return "docker-build" }

// Execute builds the image and records it as the "image" artifact. When
// pushing, the artifact reference is the immutable registry digest; a
// local-only build is referenced by its tag.
func (a *Adapter) Execute(ctx context.Context, sc ports.StageContext) (*domain.StageResult, error) {
	buildCtx, err := tools.RequireParam(sc, "context")
	if err != nil {
		return nil, err
	}
	tag, err := tools.RequireParam(sc, "tag")
	if err != nil {
		return nil, err
	}
	dockerfile, err := tools.OptionalParam(sc, "dockerfile", "")
	if err != nil {
		return nil, err
	}
	push, err := tools.OptionalParam(sc, "push", "false")
	if err != nil {
		return nil, err
	}

	buildArgs := []string{"build", "-t", tag}
	if dockerfile != "" {
		buildArgs = append(buildArgs, "-f", dockerfile)
	}
	buildArgs = append(buildArgs, buildCtx)
	if err := a.step(ctx, buildArgs...); err != nil {
		return nil, err
	}

	reference := tag
	if push == "true" {
		if err := a.step(ctx, "push", tag); err != nil {
			return nil, err
		}
		digest, err := a.repoDigest(ctx, tag)
		if err != nil {
			return nil, err
		}
		reference = digest
	}

	a.logger.Info("image build completed",
		zap.String("run_id", sc.RunID),
		zap.String("stage_id", sc.StageID),
		zap.String("tag", tag),
		zap.Bool("pushed", push == "true"))

	return &domain.StageResult{
		Artifacts: map[string]domain.ArtifactRef{
			"image": {Name: "image", Reference: reference},
		},
	}, nil
}

func (a *Adapter) step(ctx context.Context, args ...string) error {
	res, err := a.runner.Run(ctx, a.cfg.Binary, args)
	if err != nil {
		return fmt.Errorf("docker %s: %w", args[0], err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("docker %s exited with code %d: %s",
			args[0], res.ExitCode, toolexec.Tail(res.Stderr, 5))
	}
	return nil
}

// repoDigest resolves the pushed image's repository digest via inspect.
func (a *Adapter) repoDigest(ctx context.Context, tag string) (string, error) {
	res, err := a.runner.Run(ctx, a.cfg.Binary,
		[]string{"inspect", "--format", "{{json .RepoDigests}}", tag})
	if err != nil {
		return "", fmt.Errorf("docker inspect: %w", err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("docker inspect exited with code %d: %s",
			res.ExitCode, toolexec.Tail(res.Stderr, 5))
	}

	var digests []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(res.Stdout)), &digests); err != nil {
		return "", fmt.Errorf("parsing repo digests: %w", err)
	}
	if len(digests) == 0 {
		return "", fmt.Errorf("image %s has no repository digest after push", tag)
	}
	return digests[0], nil
}
