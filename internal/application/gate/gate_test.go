package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conduitci/conduit/pkg/domain"
)

func result(severities ...domain.Severity) *domain.StageResult {
	res := &domain.StageResult{StageID: "scan"}
	for _, sev := range severities {
		res.Findings = append(res.Findings, domain.Finding{
			Type:     domain.FindingTypeVulnerability,
			Severity: sev,
			Message:  "finding",
		})
	}
	return res
}

func TestNilPolicyPasses(t *testing.T) {
	outcome := Evaluate(result(domain.SeverityCritical, domain.SeverityCritical), nil)
	assert.True(t, outcome.Passed)
}

func TestFailOnCeiling(t *testing.T) {
	policy := &domain.GatePolicy{FailOn: domain.SeverityHigh}

	outcome := Evaluate(result(domain.SeverityLow, domain.SeverityMedium), policy)
	assert.True(t, outcome.Passed)

	outcome = Evaluate(result(domain.SeverityHigh), policy)
	assert.False(t, outcome.Passed)
	assert.Contains(t, outcome.Reason, "high")

	outcome = Evaluate(result(domain.SeverityHigh, domain.SeverityCritical), policy)
	assert.False(t, outcome.Passed)
	assert.Contains(t, outcome.Reason, "worst: critical")
}

func TestFailOnUnknownDisablesCeiling(t *testing.T) {
	policy := &domain.GatePolicy{FailOn: domain.SeverityUnknown}
	outcome := Evaluate(result(domain.SeverityCritical), policy)
	assert.True(t, outcome.Passed)
}

func TestMaxCounts(t *testing.T) {
	policy := &domain.GatePolicy{
		MaxCounts: map[domain.Severity]int{
			domain.SeverityMedium: 2,
			domain.SeverityHigh:   0,
		},
	}

	outcome := Evaluate(result(domain.SeverityMedium, domain.SeverityMedium), policy)
	assert.True(t, outcome.Passed)

	outcome = Evaluate(result(domain.SeverityMedium, domain.SeverityMedium, domain.SeverityMedium), policy)
	assert.False(t, outcome.Passed)
	assert.Contains(t, outcome.Reason, "medium")

	outcome = Evaluate(result(domain.SeverityHigh), policy)
	assert.False(t, outcome.Passed)
}

func TestMaxCountsReportsMostSevereBreach(t *testing.T) {
	policy := &domain.GatePolicy{
		MaxCounts: map[domain.Severity]int{
			domain.SeverityLow:      0,
			domain.SeverityCritical: 0,
		},
	}
	outcome := Evaluate(result(domain.SeverityLow, domain.SeverityCritical), policy)
	assert.False(t, outcome.Passed)
	assert.Contains(t, outcome.Reason, "critical")
}

func TestUnboundedSeverityIgnored(t *testing.T) {
	policy := &domain.GatePolicy{
		MaxCounts: map[domain.Severity]int{domain.SeverityCritical: 0},
	}
	outcome := Evaluate(result(domain.SeverityLow, domain.SeverityLow, domain.SeverityHigh), policy)
	assert.True(t, outcome.Passed)
}

func TestNoFindingsAlwaysPass(t *testing.T) {
	policy := &domain.GatePolicy{
		FailOn:    domain.SeverityLow,
		MaxCounts: map[domain.Severity]int{domain.SeverityLow: 0},
	}
	outcome := Evaluate(result(), policy)
	assert.True(t, outcome.Passed)
}
