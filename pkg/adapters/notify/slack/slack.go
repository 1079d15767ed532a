// Package slack delivers run completion notifications to a Slack
// incoming webhook.
package slack

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/conduitci/conduit/pkg/domain"
	"github.com/conduitci/conduit/pkg/ports"
)

const (
	colorGood    = "#36a64f"
	colorDanger  = "#d00000"
	colorWarning = "#daa038"
)

// Notifier posts one message per completed run. When a summarizer is
// configured, failed runs carry a generated failure summary.
type Notifier struct {
	webhookURL string
	summarizer ports.RunSummarizer
	logger     *zap.Logger

	// post is swappable for tests.
	post func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

// New creates a Slack webhook notifier. summarizer may be nil.
func New(webhookURL string, summarizer ports.RunSummarizer, logger *zap.Logger) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		summarizer: summarizer,
		logger:     logger,
		post:       slack.PostWebhookContext,
	}
}

// Notify posts the run's terminal status to the webhook.
func (n *Notifier) Notify(ctx context.Context, run *domain.PipelineRun) error {
	msg := n.buildMessage(ctx, run)
	if err := n.post(ctx, n.webhookURL, msg); err != nil {
		return fmt.Errorf("posting slack webhook: %w", err)
	}
	n.logger.Debug("slack notification delivered",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)))
	return nil
}

func (n *Notifier) buildMessage(ctx context.Context, run *domain.PipelineRun) *slack.WebhookMessage {
	attachment := slack.Attachment{
		Color: statusColor(run.Status),
		Title: fmt.Sprintf("Pipeline %s %s", run.Pipeline.Name, run.Status),
		Text:  attachmentText(run),
	}
	for _, stage := range run.Pipeline.Stages {
		res := run.StageResults[stage.ID]
		if res == nil {
			continue
		}
		attachment.Fields = append(attachment.Fields, slack.AttachmentField{
			Title: stage.ID,
			Value: stageLine(res),
			Short: true,
		})
	}

	if run.Status == domain.RunStatusFailed && n.summarizer != nil {
		summary, err := n.summarizer.Summarize(ctx, run)
		if err != nil {
			n.logger.Warn("run summary unavailable",
				zap.String("run_id", run.ID),
				zap.Error(err))
		} else if summary != "" {
			attachment.Fields = append(attachment.Fields, slack.AttachmentField{
				Title: "Summary",
				Value: summary,
			})
		}
	}

	return &slack.WebhookMessage{Attachments: []slack.Attachment{attachment}}
}

func attachmentText(run *domain.PipelineRun) string {
	parts := []string{"Run " + run.ID}
	if run.StartedAt != nil && run.CompletedAt != nil {
		parts = append(parts, "took "+run.CompletedAt.Sub(*run.StartedAt).Round(time.Second).String())
	}
	if run.Error != "" {
		parts = append(parts, run.Error)
	}
	return strings.Join(parts, " · ")
}

func stageLine(res *domain.StageResult) string {
	line := string(res.Status)
	if res.SkipReason != "" {
		line += " (" + res.SkipReason + ")"
	}
	if len(res.Findings) > 0 {
		line += fmt.Sprintf(", %d findings (max %s)", len(res.Findings), res.MaxSeverity())
	}
	if res.GateOutcome != nil && !res.GateOutcome.Passed {
		line += ", gate: " + res.GateOutcome.Reason
	}
	return line
}

func statusColor(status domain.RunStatus) string {
	switch status {
	case domain.RunStatusSucceeded:
		return colorGood
	case domain.RunStatusFailed:
		return colorDanger
	default:
		return colorWarning
	}
}
