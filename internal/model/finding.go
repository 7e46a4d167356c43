package model

import (
	"strconv"
	"strings"
)

// signatureSeparator joins signature components.
const signatureSeparator = "|"

// Metrics holds the three named metric values copied onto every finding
// of a page. A nil field means the analyzer did not report the metric.
type Metrics struct {
	LCP *float64 `json:"lcp,omitempty"`
	CLS *float64 `json:"cls,omitempty"`
	TTI *float64 `json:"tti,omitempty"`
}

// FormatMetric renders an optional metric value. Absent values render as
// the given placeholder.
func FormatMetric(v *float64, absent string) string {
	if v == nil {
		return absent
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// Finding is one failing rule on one page.
// It is created by extraction and then mutated in place, first by the
// severity grader and then by the enrichment engine.
type Finding struct {
	// PageURL is the page the finding belongs to (the document's final URL).
	PageURL string `json:"page_url"`

	// Category is the rule group reported by the analyzer, may be empty.
	Category string `json:"category"`

	// RuleID is the analyzer rule id.
	RuleID string `json:"rule_id"`

	// Title is the rule title; never empty for an extracted finding.
	Title string `json:"title"`

	// Example is a representative snippet or source location.
	Example string `json:"example"`

	// Metrics are the page-level metric values at the time of the audit.
	Metrics Metrics `json:"metrics"`

	// RawScore is the analyzer score, nil when absent.
	RawScore *float64 `json:"raw_score,omitempty"`

	// Severity is assigned by the grader.
	Severity Severity `json:"severity"`

	// RootCause explains why the rule failed.
	RootCause string `json:"root_cause"`

	// Recommendation describes how to fix the finding.
	Recommendation string `json:"recommendation"`

	// EnrichError records a remote enrichment failure for this finding.
	// It never reaches the CSV output.
	EnrichError string `json:"enrich_error,omitempty"`
}

// Signature is the exact identity of a finding for caching and broadcast:
// page, rule id, title, example and severity, in that order.
func (f *Finding) Signature() string {
	return strings.Join([]string{
		f.PageURL,
		f.RuleID,
		f.Title,
		f.Example,
		f.Severity.String(),
	}, signatureSeparator)
}

// RuleKey is the coarse identity used when enriching once per rule:
// page, rule id and severity.
func (f *Finding) RuleKey() string {
	return strings.Join([]string{
		f.PageURL,
		f.RuleID,
		f.Severity.String(),
	}, signatureSeparator)
}

// FillBlank copies rootCause and recommendation into the finding, but only
// into fields that are still empty. It reports whether anything changed.
func (f *Finding) FillBlank(rootCause, recommendation string) bool {
	changed := false
	if f.RootCause == "" && rootCause != "" {
		f.RootCause = rootCause
		changed = true
	}
	if f.Recommendation == "" && recommendation != "" {
		f.Recommendation = recommendation
		changed = true
	}
	return changed
}

// NeedsRecommendation reports whether the recommendation is still blank.
func (f *Finding) NeedsRecommendation() bool {
	return f.Recommendation == ""
}
