// Package kubectl wraps the kubectl CLI as a deployment stage adapter.
package kubectl

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduitci/conduit/pkg/adapters/toolexec"
	"github.com/conduitci/conduit/pkg/adapters/tools"
	"github.com/conduitci/conduit/pkg/domain"
	"github.com/conduitci/conduit/pkg/ports"
)

// Config holds kubectl adapter configuration.
type Config struct {
	// Binary is the kubectl executable. Defaults to "kubectl".
	Binary string
}

// Adapter applies Kubernetes manifests and waits for rollout. Stage params:
//
//	manifest   - manifest file or directory to apply (required)
//	namespace  - target namespace, defaults to "default"
//	deployment - deployment to watch for rollout completion (required)
//	container  - with image, patches the deployment before the rollout wait
//	image      - image reference to set; supports @stage/artifact
type Adapter struct {
	cfg    Config
	runner toolexec.Runner
	logger *zap.Logger
}

// New creates a kubectl adapter.
func New(cfg Config, runner toolexec.Runner, logger *zap.Logger) *Adapter {
	if cfg.Binary == "" {
		cfg.Binary = "kubectl"
	}
	return &Adapter{cfg: cfg, runner: runner, logger: logger}
}

func (a *Adapter) Name() string { return "kubectl-deploy" }

// Execute applies the manifest, optionally retargets the deployment's
// container image, and blocks until the rollout completes. The deployed
// revision is recorded as the "deployment" artifact.
func (a *Adapter) Execute(ctx context.Context, sc ports.StageContext) (*domain.StageResult, error) {
	manifest, err := tools.RequireParam(sc, "manifest")
	if err != nil {
		return nil, err
	}
	namespace, err := tools.OptionalParam(sc, "namespace", "default")
	if err != nil {
		return nil, err
	}
	deployment, err := tools.RequireParam(sc, "deployment")
	if err != nil {
		return nil, err
	}
	container, err := tools.OptionalParam(sc, "container", "")
	if err != nil {
		return nil, err
	}
	image, err := tools.OptionalParam(sc, "image", "")
	if err != nil {
		return nil, err
	}

	if err := a.step(ctx, "apply", "-n", namespace, "-f", manifest); err != nil {
		return nil, err
	}

	if container != "" && image != "" {
		setArg := fmt.Sprintf("%s=%s", container, image)
		if err := a.step(ctx, "set", "image", "-n", namespace,
			"deployment/"+deployment, setArg); err != nil {
			return nil, err
		}
	}

	if err := a.step(ctx, "rollout", "status", "-n", namespace,
		"deployment/"+deployment); err != nil {
		return nil, err
	}

	a.logger.Info("deployment rolled out",
		zap.String("run_id", sc.RunID),
		zap.String("stage_id", sc.StageID),
		zap.String("namespace", namespace),
		zap.String("deployment", deployment))

	return &domain.StageResult{
		Artifacts: map[string]domain.ArtifactRef{
			"deployment": {
				Name:      "deployment",
				Reference: fmt.Sprintf("%s/deployment/%s", namespace, deployment),
			},
		},
	}, nil
}

func (a *Adapter) step(ctx context.Context, args ...string) error {
	res, err := a.runner.Run(ctx, a.cfg.Binary, args)
	if err != nil {
		return fmt.Errorf("kubectl %s: %w", args[0], err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("kubectl %s exited with code %d: %s",
			args[0], res.ExitCode, toolexec.Tail(res.Stderr, 5))
	}
	return nil
}
