package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityCritical > SeverityHigh)
	assert.True(t, SeverityHigh > SeverityMedium)
	assert.True(t, SeverityMedium > SeverityLow)
	assert.True(t, SeverityLow > SeverityUnknown)
}

func TestParseSeverityAliases(t *testing.T) {
	cases := map[string]Severity{
		"low":      SeverityLow,
		"MINOR":    SeverityLow,
		"Medium":   SeverityMedium,
		"moderate": SeverityMedium,
		"HIGH":     SeverityHigh,
		"major":    SeverityHigh,
		"critical": SeverityCritical,
		"blocker":  SeverityCritical,
		"":         SeverityUnknown,
		"none":     SeverityUnknown,
	}
	for name, want := range cases {
		got, err := ParseSeverity(name)
		require.NoError(t, err, "name %q", name)
		assert.Equal(t, want, got, "name %q", name)
	}

	_, err := ParseSeverity("catastrophic")
	assert.Error(t, err)
}

func TestSeverityJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(SeverityHigh)
	require.NoError(t, err)
	assert.Equal(t, `"high"`, string(data))

	var sev Severity
	require.NoError(t, json.Unmarshal([]byte(`"critical"`), &sev))
	assert.Equal(t, SeverityCritical, sev)
}

func TestSeverityAsMapKey(t *testing.T) {
	policy := GatePolicy{
		FailOn: SeverityHigh,
		MaxCounts: map[Severity]int{
			SeverityMedium: 3,
		},
	}

	data, err := json.Marshal(policy)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"medium":3`)

	var decoded GatePolicy
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, policy.FailOn, decoded.FailOn)
	assert.Equal(t, 3, decoded.MaxCounts[SeverityMedium])
}
