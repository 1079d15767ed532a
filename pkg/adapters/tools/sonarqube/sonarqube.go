// Package sonarqube wraps the sonar-scanner CLI and the SonarQube quality
// gate API as a static-analysis stage adapter.
package sonarqube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/conduitci/conduit/pkg/adapters/toolexec"
	"github.com/conduitci/conduit/pkg/adapters/tools"
	"github.com/conduitci/conduit/pkg/domain"
	"github.com/conduitci/conduit/pkg/ports"
)

// Config holds sonarqube adapter configuration.
type Config struct {
	// Binary is the scanner executable. Defaults to "sonar-scanner".
	Binary string

	// HostURL is the SonarQube server base URL.
	HostURL string

	// Token authenticates both the scanner and the API queries.
	Token string

	// GateWait bounds the poll for the server-side analysis to land
	// before the gate status is read. Defaults to 2 minutes.
	GateWait time.Duration
}

// Adapter runs a SonarQube analysis. Stage params:
//
//	project_key - the SonarQube project key (required)
//	dir         - source directory to scan, defaults to "."
type Adapter struct {
	cfg    Config
	runner toolexec.Runner
	client *http.Client
	logger *zap.Logger
}

// New creates a sonarqube adapter.
func New(cfg Config, runner toolexec.Runner, logger *zap.Logger) *Adapter {
	if cfg.Binary == "" {
		cfg.Binary = "sonar-scanner"
	}
	if cfg.GateWait == 0 {
		cfg.GateWait = 2 * time.Minute
	}
	return &Adapter{
		cfg:    cfg,
		runner: runner,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

func (a *Adapter) Name() string { return "sonarqube" }

// Execute runs the scanner, reads the project's quality gate status from
// the server, and reports each failed gate condition as a finding. The
// project dashboard URL is recorded as the "dashboard" artifact.
func (a *Adapter) Execute(ctx context.Context, sc ports.StageContext) (*domain.StageResult, error) {
	projectKey, err := tools.RequireParam(sc, "project_key")
	if err != nil {
		return nil, err
	}
	dir, err := tools.OptionalParam(sc, "dir", ".")
	if err != nil {
		return nil, err
	}

	args := []string{
		"-Dsonar.projectKey=" + projectKey,
		"-Dsonar.host.url=" + a.cfg.HostURL,
	}
	res, err := a.runner.Run(ctx, a.cfg.Binary, args,
		toolexec.WithDir(dir),
		toolexec.WithEnv(map[string]string{"SONAR_TOKEN": a.cfg.Token}))
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("sonar-scanner exited with code %d: %s",
			res.ExitCode, toolexec.Tail(res.Stderr, 5))
	}

	gate, err := a.gateStatus(ctx, projectKey)
	if err != nil {
		return nil, err
	}

	var findings []domain.Finding
	for _, cond := range gate.Conditions {
		if cond.Status != "ERROR" {
			continue
		}
		findings = append(findings, domain.Finding{
			ID:       cond.MetricKey,
			Type:     domain.FindingTypeQualityGate,
			Severity: domain.SeverityHigh,
			Target:   projectKey,
			Message: fmt.Sprintf("%s is %s, threshold %s",
				cond.MetricKey, cond.ActualValue, cond.ErrorThreshold),
		})
	}

	a.logger.Info("sonarqube analysis completed",
		zap.String("run_id", sc.RunID),
		zap.String("stage_id", sc.StageID),
		zap.String("project_key", projectKey),
		zap.String("gate_status", gate.Status),
		zap.Int("failed_conditions", len(findings)))

	dashboard := fmt.Sprintf("%s/dashboard?id=%s", a.cfg.HostURL, url.QueryEscape(projectKey))
	return &domain.StageResult{
		Findings: findings,
		Artifacts: map[string]domain.ArtifactRef{
			"dashboard": {Name: "dashboard", Reference: dashboard},
		},
	}, nil
}

type gateStatus struct {
	Status     string `json:"status"`
	Conditions []struct {
		Status         string `json:"status"`
		MetricKey      string `json:"metricKey"`
		ActualValue    string `json:"actualValue"`
		ErrorThreshold string `json:"errorThreshold"`
	} `json:"conditions"`
}

// gateStatus polls the project_status endpoint until the analysis has
// landed server-side. A fresh scan can report NONE briefly while the
// compute engine catches up.
func (a *Adapter) gateStatus(ctx context.Context, projectKey string) (*gateStatus, error) {
	deadline := time.Now().Add(a.cfg.GateWait)
	for {
		status, err := a.fetchGateStatus(ctx, projectKey)
		if err != nil {
			return nil, err
		}
		if status.Status != "NONE" || time.Now().After(deadline) {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

func (a *Adapter) fetchGateStatus(ctx context.Context, projectKey string) (*gateStatus, error) {
	endpoint := fmt.Sprintf("%s/api/qualitygates/project_status?projectKey=%s",
		a.cfg.HostURL, url.QueryEscape(projectKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(a.cfg.Token, "")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying quality gate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quality gate query returned %s", resp.Status)
	}

	var body struct {
		ProjectStatus gateStatus `json:"projectStatus"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding quality gate response: %w", err)
	}
	return &body.ProjectStatus, nil
}
