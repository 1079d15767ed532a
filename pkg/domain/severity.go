package domain

import (
	"fmt"
	"strings"
)

// Severity buckets findings for gate evaluation. The ordering is
// significant: higher values are more severe.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityUnknown:  "unknown",
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseSeverity maps a case-insensitive severity name to a Severity.
// Unrecognized names map to SeverityUnknown with an error.
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "low", "minor":
		return SeverityLow, nil
	case "medium", "moderate":
		return SeverityMedium, nil
	case "high", "major":
		return SeverityHigh, nil
	case "critical", "blocker":
		return SeverityCritical, nil
	case "", "unknown", "none":
		return SeverityUnknown, nil
	default:
		return SeverityUnknown, fmt.Errorf("unknown severity: %q", name)
	}
}

// MarshalText encodes the severity as its lowercase name, both as a JSON
// value and as an object key (GatePolicy.MaxCounts).
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts a severity name.
func (s *Severity) UnmarshalText(data []byte) error {
	parsed, err := ParseSeverity(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
