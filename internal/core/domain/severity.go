package domain

import (
	"encoding/json"
	"strings"
)

// Severity is a ranked vulnerability severity label.
// The zero value is SeverityUnknown, which ranks below every classified label.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityLabels = [...]string{
	SeverityUnknown:  "UNKNOWN",
	SeverityLow:      "LOW",
	SeverityMedium:   "MEDIUM",
	SeverityHigh:     "HIGH",
	SeverityCritical: "CRITICAL",
}

// Severities lists every label from the highest rank to the lowest.
var Severities = []Severity{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityUnknown,
}

// ParseSeverity maps an upstream label to a Severity.
// Empty, "NONE" and unrecognized labels map to SeverityUnknown.
func ParseSeverity(label string) Severity {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "CRITICAL":
		return SeverityCritical
	case "HIGH":
		return SeverityHigh
	case "MEDIUM":
		return SeverityMedium
	case "LOW":
		return SeverityLow
	default:
		return SeverityUnknown
	}
}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityLabels) {
		return severityLabels[SeverityUnknown]
	}
	return severityLabels[s]
}

// BadgeClass returns the CSS class the dashboard uses for the label.
func (s Severity) BadgeClass() string {
	return "badge-" + strings.ToLower(s.String())
}

// MaxSeverity returns the highest ranked of the given labels, SeverityUnknown when empty.
func MaxSeverity(labels ...Severity) Severity {
	worst := SeverityUnknown
	for _, l := range labels {
		if l > worst {
			worst = l
		}
	}
	return worst
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	*s = ParseSeverity(label)
	return nil
}

// MarshalText lets Severity be used as a JSON map key.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	*s = ParseSeverity(string(text))
	return nil
}
