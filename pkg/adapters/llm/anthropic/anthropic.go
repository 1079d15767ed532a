// Package anthropic implements a run summarizer on the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/conduitci/conduit/pkg/domain"
)

const defaultModel = "claude-3-5-haiku-latest"

const systemPrompt = "You are a CI/CD assistant. Given a pipeline run report, " +
	"explain in at most three sentences what failed and the most likely fix. " +
	"Be concrete and mention stage names."

// Summarizer generates short failure summaries for pipeline runs.
type Summarizer struct {
	client anthropic.Client
	model  anthropic.Model
	logger *zap.Logger
}

// NewSummarizer creates an Anthropic-backed summarizer. An empty model
// selects a small default.
func NewSummarizer(apiKey, model string, logger *zap.Logger) *Summarizer {
	if model == "" {
		model = defaultModel
	}
	return &Summarizer{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
		logger: logger,
	}
}

// Summarize renders the run as a compact report and asks the model for a
// diagnosis.
func (s *Summarizer) Summarize(ctx context.Context, run *domain.PipelineRun) (string, error) {
	report := renderReport(run)

	msg, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(report)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	summary := strings.TrimSpace(sb.String())

	s.logger.Debug("run summary generated",
		zap.String("run_id", run.ID),
		zap.Int("length", len(summary)))
	return summary, nil
}

// renderReport serializes the run into the plain-text report the model
// consumes. Findings are capped per stage to bound prompt size.
func renderReport(run *domain.PipelineRun) string {
	const maxFindings = 10

	var sb strings.Builder
	fmt.Fprintf(&sb, "Pipeline: %s\nRun: %s\nStatus: %s\n",
		run.Pipeline.Name, run.ID, run.Status)
	if run.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", run.Error)
	}

	for _, stage := range run.Pipeline.Stages {
		res := run.StageResults[stage.ID]
		if res == nil {
			continue
		}
		fmt.Fprintf(&sb, "\nStage %s (%s): %s", stage.ID, stage.Adapter, res.Status)
		if res.SkipReason != "" {
			fmt.Fprintf(&sb, " (%s)", res.SkipReason)
		}
		sb.WriteString("\n")
		if res.Error != "" {
			fmt.Fprintf(&sb, "  error: %s\n", res.Error)
		}
		if res.GateOutcome != nil && !res.GateOutcome.Passed {
			fmt.Fprintf(&sb, "  gate failed: %s\n", res.GateOutcome.Reason)
		}
		for i, f := range res.Findings {
			if i == maxFindings {
				fmt.Fprintf(&sb, "  ... %d more findings\n", len(res.Findings)-maxFindings)
				break
			}
			fmt.Fprintf(&sb, "  [%s] %s: %s\n", f.Severity, f.Type, f.Message)
		}
	}
	return sb.String()
}
