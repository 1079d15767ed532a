package trivy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conduitci/conduit/pkg/adapters/toolexec"
	"github.com/conduitci/conduit/pkg/domain"
	"github.com/conduitci/conduit/pkg/ports"
)

const sampleReport = `{
  "Results": [
    {
      "Target": "go.sum",
      "Vulnerabilities": [
        {
          "VulnerabilityID": "CVE-2026-1111",
          "PkgName": "golang.org/x/net",
          "Severity": "HIGH",
          "Title": "request smuggling"
        },
        {
          "VulnerabilityID": "CVE-2026-2222",
          "PkgName": "gopkg.in/yaml.v2",
          "Severity": "LOW",
          "Title": "unbounded alias expansion"
        }
      ]
    },
    {
      "Target": "config/",
      "Secrets": [
        {
          "RuleID": "aws-access-key-id",
          "Severity": "CRITICAL",
          "Title": "AWS access key"
        }
      ],
      "Misconfigurations": [
        {
          "ID": "DS002",
          "Severity": "MEDIUM",
          "Title": "image runs as root"
        }
      ]
    }
  ]
}`

// stubRunner returns canned results and records invocations.
type stubRunner struct {
	result *toolexec.Result
	err    error

	program string
	args    []string
}

func (r *stubRunner) Run(_ context.Context, program string, args []string, _ ...toolexec.Option) (*toolexec.Result, error) {
	r.program = program
	r.args = args
	return r.result, r.err
}

func stageContext(params map[string]string) ports.StageContext {
	return ports.StageContext{RunID: "run-1", StageID: "scan", Params: params}
}

func TestExecuteParsesFindings(t *testing.T) {
	runner := &stubRunner{result: &toolexec.Result{Stdout: sampleReport}}
	adapter := New(ModeFilesystem, Config{}, runner, zap.NewNop())

	res, err := adapter.Execute(context.Background(), stageContext(map[string]string{"target": "."}))
	require.NoError(t, err)

	assert.Equal(t, "trivy", runner.program)
	assert.Equal(t, "fs", runner.args[0])
	assert.Contains(t, runner.args, "--exit-code")
	assert.Equal(t, ".", runner.args[len(runner.args)-1])

	require.Len(t, res.Findings, 4)

	byID := make(map[string]domain.Finding, len(res.Findings))
	for _, f := range res.Findings {
		byID[f.ID] = f
	}

	vuln := byID["CVE-2026-1111"]
	assert.Equal(t, domain.FindingTypeVulnerability, vuln.Type)
	assert.Equal(t, domain.SeverityHigh, vuln.Severity)
	assert.Equal(t, "go.sum", vuln.Target)

	secret := byID["aws-access-key-id"]
	assert.Equal(t, domain.FindingTypeSecret, secret.Type)
	assert.Equal(t, domain.SeverityCritical, secret.Severity)

	misconf := byID["DS002"]
	assert.Equal(t, domain.FindingTypeMisconfiguration, misconf.Type)
	assert.Equal(t, domain.SeverityMedium, misconf.Severity)

	ref, ok := res.Artifacts["report"]
	require.True(t, ok)
	assert.Contains(t, ref.Reference, "sha256:")
}

func TestExecuteImageMode(t *testing.T) {
	runner := &stubRunner{result: &toolexec.Result{Stdout: `{"Results": []}`}}
	adapter := New(ModeImage, Config{Scanners: "vuln"}, runner, zap.NewNop())

	res, err := adapter.Execute(context.Background(),
		stageContext(map[string]string{"target": "registry.example.com/app@sha256:abc"}))
	require.NoError(t, err)

	assert.Equal(t, "trivy-image", adapter.Name())
	assert.Equal(t, "image", runner.args[0])
	assert.Contains(t, runner.args, "--scanners")
	assert.Empty(t, res.Findings)
}

func TestExecuteMissingTarget(t *testing.T) {
	adapter := New(ModeFilesystem, Config{}, &stubRunner{}, zap.NewNop())

	_, err := adapter.Execute(context.Background(), stageContext(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target")
}

func TestExecuteScannerFailure(t *testing.T) {
	runner := &stubRunner{result: &toolexec.Result{ExitCode: 1, Stderr: "db download failed"}}
	adapter := New(ModeFilesystem, Config{}, runner, zap.NewNop())

	_, err := adapter.Execute(context.Background(), stageContext(map[string]string{"target": "."}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db download failed")
}

func TestExecuteRunnerError(t *testing.T) {
	runner := &stubRunner{err: errors.New("binary not found")}
	adapter := New(ModeFilesystem, Config{}, runner, zap.NewNop())

	_, err := adapter.Execute(context.Background(), stageContext(map[string]string{"target": "."}))
	assert.Error(t, err)
}

func TestParseReportUnknownSeverity(t *testing.T) {
	findings, err := parseReport([]byte(`{
		"Results": [{"Target": "x", "Vulnerabilities": [
			{"VulnerabilityID": "CVE-1", "Severity": "UNKNOWN", "Title": "t"}
		]}]
	}`))
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, domain.SeverityUnknown, findings[0].Severity)
}

func TestParseReportInvalidJSON(t *testing.T) {
	_, err := parseReport([]byte("not json"))
	assert.Error(t, err)
}
