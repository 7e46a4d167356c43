package model

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Severity represents how urgently a finding needs attention.
// Only three levels exist; their order is significant because the
// enrichment engine compares ranks against a configured floor.
type Severity int

const (
	// SeverityLow is the fallback level for findings with no specific policy.
	SeverityLow Severity = iota

	// SeverityMedium marks findings that hurt quality but do not block users.
	// Examples: missing meta description, a moderate layout shift.
	SeverityMedium

	// SeverityCritical marks findings that should be fixed first.
	// Examples: a very slow largest contentful paint, failing color contrast.
	SeverityCritical
)

// titleCaser renders severity labels for human-facing reports.
var titleCaser = cases.Title(language.English)

// String returns the lower-case name used in configuration files, CSV
// output and cache signatures.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Label returns the title-cased name (e.g. "Critical") for reports.
func (s Severity) Label() string {
	return titleCaser.String(s.String())
}

// Rank returns the ordinal used for floor comparisons: low=0, medium=1, critical=2.
func (s Severity) Rank() int {
	return int(s)
}

// AtLeast reports whether s ranks at or above floor.
func (s Severity) AtLeast(floor Severity) bool {
	return s.Rank() >= floor.Rank()
}

// ParseSeverity converts a level name into a Severity.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityLow, fmt.Errorf("unknown severity %q (want low, medium or critical)", name)
	}
}

// MarshalText implements encoding.TextMarshaler so that severities are
// written by name in JSON reports and the history database.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// AllSeverities returns every level from most to least severe.
// Report writers iterate it to keep a stable column order.
func AllSeverities() []Severity {
	return []Severity{SeverityCritical, SeverityMedium, SeverityLow}
}
