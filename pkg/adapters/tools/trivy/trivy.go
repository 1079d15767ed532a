// Package trivy wraps the Trivy vulnerability scanner as a stage adapter,
// in filesystem and image variants. The scanner is always invoked with
// --exit-code 0: blocking on findings is the gate's decision, not the
// scanner's.
package trivy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduitci/conduit/pkg/adapters/toolexec"
	"github.com/conduitci/conduit/pkg/adapters/tools"
	"github.com/conduitci/conduit/pkg/domain"
	"github.com/conduitci/conduit/pkg/ports"
)

// Mode selects the scan target kind.
type Mode string

const (
	ModeFilesystem Mode = "fs"
	ModeImage      Mode = "image"
)

// Config holds trivy adapter configuration.
type Config struct {
	// Binary is the trivy executable. Defaults to "trivy".
	Binary string

	// Scanners narrows the scanner set (e.g. "vuln,secret,misconfig").
	// Empty uses trivy's default.
	Scanners string
}

// Adapter runs trivy scans. Stage params:
//
//	target - filesystem path or image reference; supports @stage/artifact.
type Adapter struct {
	mode   Mode
	cfg    Config
	runner toolexec.Runner
	logger *zap.Logger
}

// New creates a trivy adapter for the given mode.
func New(mode Mode, cfg Config, runner toolexec.Runner, logger *zap.Logger) *Adapter {
	if cfg.Binary == "" {
		cfg.Binary = "trivy"
	}
	return &Adapter{mode: mode, cfg: cfg, runner: runner, logger: logger}
}

// Name returns "trivy-fs" or "trivy-image".
func (a *Adapter) Name() string {
	return "trivy-" + string(a.mode)
}

// Execute runs the scan and maps the JSON report to severity-bucketed
// findings. The report checksum is recorded as the stage's artifact.
func (a *Adapter) Execute(ctx context.Context, sc ports.StageContext) (*domain.StageResult, error) {
	target, err := tools.RequireParam(sc, "target")
	if err != nil {
		return nil, err
	}

	args := []string{string(a.mode), "--format", "json", "--exit-code", "0", "--quiet"}
	if a.cfg.Scanners != "" {
		args = append(args, "--scanners", a.cfg.Scanners)
	}
	args = append(args, target)

	res, err := a.runner.Run(ctx, a.cfg.Binary, args)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("trivy exited with code %d: %s", res.ExitCode, toolexec.Tail(res.Stderr, 5))
	}

	findings, err := parseReport([]byte(res.Stdout))
	if err != nil {
		return nil, fmt.Errorf("parsing trivy report: %w", err)
	}

	a.logger.Info("trivy scan completed",
		zap.String("run_id", sc.RunID),
		zap.String("stage_id", sc.StageID),
		zap.String("mode", string(a.mode)),
		zap.String("target", target),
		zap.Int("findings", len(findings)))

	sum := sha256.Sum256([]byte(res.Stdout))
	result := &domain.StageResult{Findings: findings}
	result.Artifacts = map[string]domain.ArtifactRef{
		"report": {Name: "report", Reference: "sha256:" + hex.EncodeToString(sum[:])},
	}
	return result, nil
}

// report mirrors the subset of trivy's JSON schema the adapter consumes.
type report struct {
	Results []struct {
		Target          string `json:"Target"`
		Vulnerabilities []struct {
			VulnerabilityID string `json:"VulnerabilityID"`
			PkgName         string `json:"PkgName"`
			Severity        string `json:"Severity"`
			Title           string `json:"Title"`
		} `json:"Vulnerabilities"`
		Secrets []struct {
			RuleID   string `json:"RuleID"`
			Severity string `json:"Severity"`
			Title    string `json:"Title"`
		} `json:"Secrets"`
		Misconfigurations []struct {
			ID       string `json:"ID"`
			Severity string `json:"Severity"`
			Title    string `json:"Title"`
		} `json:"Misconfigurations"`
	} `json:"Results"`
}

func parseReport(data []byte) ([]domain.Finding, error) {
	var rep report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, err
	}

	var findings []domain.Finding
	for _, result := range rep.Results {
		for _, v := range result.Vulnerabilities {
			findings = append(findings, domain.Finding{
				ID:       v.VulnerabilityID,
				Type:     domain.FindingTypeVulnerability,
				Severity: mapSeverity(v.Severity),
				Target:   result.Target,
				Message:  fmt.Sprintf("%s: %s", v.PkgName, v.Title),
			})
		}
		for _, s := range result.Secrets {
			findings = append(findings, domain.Finding{
				ID:       s.RuleID,
				Type:     domain.FindingTypeSecret,
				Severity: mapSeverity(s.Severity),
				Target:   result.Target,
				Message:  s.Title,
			})
		}
		for _, m := range result.Misconfigurations {
			findings = append(findings, domain.Finding{
				ID:       m.ID,
				Type:     domain.FindingTypeMisconfiguration,
				Severity: mapSeverity(m.Severity),
				Target:   result.Target,
				Message:  m.Title,
			})
		}
	}
	return findings, nil
}

// mapSeverity tolerates unknown severity names: trivy's UNKNOWN bucket
// stays SeverityUnknown rather than failing the scan.
func mapSeverity(name string) domain.Severity {
	sev, err := domain.ParseSeverity(name)
	if err != nil {
		return domain.SeverityUnknown
	}
	return sev
}
