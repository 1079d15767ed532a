package gate

import (
	"fmt"

	"github.com/conduitci/conduit/pkg/domain"
)

// Evaluate applies a gate policy to a completed stage's findings.
//
// A nil policy always passes: this is the report-only mode used for scan
// stages that should surface findings without blocking the pipeline. The
// same adapter output can be judged under different policies per
// environment without re-running the stage.
func Evaluate(result *domain.StageResult, policy *domain.GatePolicy) domain.GateOutcome {
	if policy == nil {
		return domain.GateOutcome{Passed: true}
	}

	if policy.FailOn > domain.SeverityUnknown {
		worst := domain.SeverityUnknown
		var offending int
		for _, f := range result.Findings {
			if f.Severity >= policy.FailOn {
				offending++
				if f.Severity > worst {
					worst = f.Severity
				}
			}
		}
		if offending > 0 {
			return domain.GateOutcome{
				Passed: false,
				Reason: fmt.Sprintf("%d finding(s) at or above %s (worst: %s)",
					offending, policy.FailOn, worst),
			}
		}
	}

	if len(policy.MaxCounts) > 0 {
		counts := make(map[domain.Severity]int)
		for _, f := range result.Findings {
			counts[f.Severity]++
		}
		for _, sev := range []domain.Severity{
			domain.SeverityCritical,
			domain.SeverityHigh,
			domain.SeverityMedium,
			domain.SeverityLow,
		} {
			max, bounded := policy.MaxCounts[sev]
			if !bounded {
				continue
			}
			if counts[sev] > max {
				return domain.GateOutcome{
					Passed: false,
					Reason: fmt.Sprintf("%d %s finding(s), at most %d allowed", counts[sev], sev, max),
				}
			}
		}
	}

	return domain.GateOutcome{Passed: true}
}
