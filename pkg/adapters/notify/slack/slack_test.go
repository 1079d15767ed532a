package slack

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conduitci/conduit/pkg/domain"
)

func completedRun(status domain.RunStatus) *domain.PipelineRun {
	started := time.Now().Add(-90 * time.Second)
	completed := time.Now()

	run := domain.NewPipelineRun("run-1", &domain.PipelineSpec{
		Name: "deploy-service",
		Stages: []domain.StageSpec{
			{ID: "scan", Adapter: "trivy-fs"},
			{ID: "deploy", Adapter: "kubectl-deploy", DependsOn: []string{"scan"}},
		},
	})
	run.Status = status
	run.StartedAt = &started
	run.CompletedAt = &completed

	run.StageResults["scan"].Status = domain.StageStatusFailure
	run.StageResults["scan"].Findings = []domain.Finding{{
		Type: domain.FindingTypeVulnerability, Severity: domain.SeverityCritical, Message: "CVE-2026-0001",
	}}
	run.StageResults["scan"].GateOutcome = &domain.GateOutcome{Passed: false, Reason: "1 finding(s) at or above critical"}
	run.StageResults["deploy"].Status = domain.StageStatusSkipped
	run.StageResults["deploy"].SkipReason = domain.SkipReasonUpstreamFailure
	return run
}

type fixedSummarizer struct {
	summary string
	err     error
}

func (s fixedSummarizer) Summarize(context.Context, *domain.PipelineRun) (string, error) {
	return s.summary, s.err
}

func capturePost(captured **slack.WebhookMessage, err error) func(context.Context, string, *slack.WebhookMessage) error {
	return func(_ context.Context, _ string, msg *slack.WebhookMessage) error {
		*captured = msg
		return err
	}
}

func TestNotifyPostsAttachment(t *testing.T) {
	var posted *slack.WebhookMessage
	n := New("https://hooks.slack.example/T/B/X", nil, zap.NewNop())
	n.post = capturePost(&posted, nil)

	require.NoError(t, n.Notify(context.Background(), completedRun(domain.RunStatusFailed)))
	require.NotNil(t, posted)
	require.Len(t, posted.Attachments, 1)

	att := posted.Attachments[0]
	assert.Equal(t, colorDanger, att.Color)
	assert.Contains(t, att.Title, "deploy-service")
	assert.Contains(t, att.Title, "failed")

	// One field per stage, in declaration order.
	require.Len(t, att.Fields, 2)
	assert.Equal(t, "scan", att.Fields[0].Title)
	assert.Contains(t, att.Fields[0].Value, "gate:")
	assert.Equal(t, "deploy", att.Fields[1].Title)
	assert.Contains(t, att.Fields[1].Value, domain.SkipReasonUpstreamFailure)
}

func TestNotifySummarizerEnrichesFailures(t *testing.T) {
	var posted *slack.WebhookMessage
	n := New("url", fixedSummarizer{summary: "the scan gate blocked the deploy"}, zap.NewNop())
	n.post = capturePost(&posted, nil)

	require.NoError(t, n.Notify(context.Background(), completedRun(domain.RunStatusFailed)))

	fields := posted.Attachments[0].Fields
	last := fields[len(fields)-1]
	assert.Equal(t, "Summary", last.Title)
	assert.Equal(t, "the scan gate blocked the deploy", last.Value)
}

func TestNotifySummarizerErrorIgnored(t *testing.T) {
	var posted *slack.WebhookMessage
	n := New("url", fixedSummarizer{err: errors.New("api quota exceeded")}, zap.NewNop())
	n.post = capturePost(&posted, nil)

	require.NoError(t, n.Notify(context.Background(), completedRun(domain.RunStatusFailed)))

	for _, field := range posted.Attachments[0].Fields {
		assert.NotEqual(t, "Summary", field.Title)
	}
}

func TestNotifySummarizerSkippedOnSuccess(t *testing.T) {
	var posted *slack.WebhookMessage
	n := New("url", fixedSummarizer{summary: "should not appear"}, zap.NewNop())
	n.post = capturePost(&posted, nil)

	require.NoError(t, n.Notify(context.Background(), completedRun(domain.RunStatusSucceeded)))

	assert.Equal(t, colorGood, posted.Attachments[0].Color)
	for _, field := range posted.Attachments[0].Fields {
		assert.NotEqual(t, "Summary", field.Title)
	}
}

func TestNotifyPostError(t *testing.T) {
	var posted *slack.WebhookMessage
	n := New("url", nil, zap.NewNop())
	n.post = capturePost(&posted, errors.New("502 bad gateway"))

	err := n.Notify(context.Background(), completedRun(domain.RunStatusFailed))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
