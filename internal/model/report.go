package model

import (
	"time"

	"github.com/google/uuid"
)

// SeverityCounts tallies findings by severity.
type SeverityCounts struct {
	Critical int `json:"critical"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Add increments the counter for s.
func (c *SeverityCounts) Add(s Severity) {
	switch s {
	case SeverityCritical:
		c.Critical++
	case SeverityMedium:
		c.Medium++
	default:
		c.Low++
	}
}

// Get returns the count for s.
func (c SeverityCounts) Get(s Severity) int {
	switch s {
	case SeverityCritical:
		return c.Critical
	case SeverityMedium:
		return c.Medium
	default:
		return c.Low
	}
}

// Total returns the number of counted findings.
func (c SeverityCounts) Total() int {
	return c.Critical + c.Medium + c.Low
}

// Merge adds other into c.
func (c *SeverityCounts) Merge(other SeverityCounts) {
	c.Critical += other.Critical
	c.Medium += other.Medium
	c.Low += other.Low
}

// PageSummary is the per-page summary record handed to report writers.
type PageSummary struct {
	// Page is the page URL.
	Page string `json:"page"`

	// Counts are the severity tallies of the page's findings.
	Counts SeverityCounts `json:"counts"`

	// AvgLCP, AvgCLS and AvgTTI are arithmetic means over present values.
	// They are nil when no finding carried the metric.
	AvgLCP *float64 `json:"avg_lcp,omitempty"`
	AvgCLS *float64 `json:"avg_cls,omitempty"`
	AvgTTI *float64 `json:"avg_tti,omitempty"`
}

// PageReport groups the findings of one page with their summary.
type PageReport struct {
	// URL is the page URL.
	URL string `json:"url"`

	// Findings are in extraction order.
	Findings []*Finding `json:"findings"`

	// Summary is derived from Findings by the aggregator.
	Summary PageSummary `json:"summary"`
}

// EnrichmentStats records what the enrichment engine did during a run.
type EnrichmentStats struct {
	// TemplateFilled counts findings that received template text.
	TemplateFilled int `json:"template_filled"`

	// Candidates counts findings selected for remote enrichment after caps.
	Candidates int `json:"candidates"`

	// CacheHits counts candidates answered from the cache.
	CacheHits int `json:"cache_hits"`

	// RemoteCalls counts network calls made to the remote provider.
	RemoteCalls int `json:"remote_calls"`

	// RemoteFailures counts remote calls that produced no usable text.
	RemoteFailures int `json:"remote_failures"`

	// Broadcasts counts findings filled from another finding's result.
	Broadcasts int `json:"broadcasts"`

	// Skipped counts candidates left blank because the provider was unusable.
	Skipped int `json:"skipped"`
}

// Merge adds other into s.
func (s *EnrichmentStats) Merge(other EnrichmentStats) {
	s.TemplateFilled += other.TemplateFilled
	s.Candidates += other.Candidates
	s.CacheHits += other.CacheHits
	s.RemoteCalls += other.RemoteCalls
	s.RemoteFailures += other.RemoteFailures
	s.Broadcasts += other.Broadcasts
	s.Skipped += other.Skipped
}

// AuditReport is the result of auditing one site.
type AuditReport struct {
	// ID uniquely identifies the run; it is the primary key in the history database.
	ID string `json:"id"`

	// StartURL is the normalized crawl start URL.
	StartURL string `json:"start_url"`

	// Device is the analyzer form factor (mobile or desktop).
	Device string `json:"device"`

	// DateScanned is when the run started.
	DateScanned time.Time `json:"date_scanned"`

	// Duration is how long the run took.
	Duration time.Duration `json:"duration"`

	// Pages are the crawled pages in breadth-first order.
	Pages []*Page `json:"pages"`

	// PageReports are the aggregated results in first-seen page order.
	PageReports []*PageReport `json:"page_reports"`

	// SkippedPages lists crawled pages that produced no audit document.
	SkippedPages []string `json:"skipped_pages,omitempty"`

	// Enrichment summarizes the enrichment engine's work.
	Enrichment EnrichmentStats `json:"enrichment"`

	// TimedOut is true when the run was cancelled before it finished.
	TimedOut bool `json:"timed_out"`

	// Error is the error that stopped the run, if any.
	Error error `json:"-"`

	// ErrorMessage is Error as a string for serialization.
	ErrorMessage string `json:"error,omitempty"`
}

// NewAuditReport creates an empty report for startURL with a fresh run id.
func NewAuditReport(startURL string) *AuditReport {
	return &AuditReport{
		ID:           uuid.NewString(),
		StartURL:     startURL,
		DateScanned:  time.Now(),
		Pages:        make([]*Page, 0),
		PageReports:  make([]*PageReport, 0),
		SkippedPages: make([]string, 0),
	}
}

// Totals returns the severity tallies across all pages.
func (r *AuditReport) Totals() SeverityCounts {
	var total SeverityCounts
	for _, pr := range r.PageReports {
		total.Merge(pr.Summary.Counts)
	}
	return total
}

// Findings returns every finding of the run in page order.
func (r *AuditReport) Findings() []*Finding {
	out := make([]*Finding, 0)
	for _, pr := range r.PageReports {
		out = append(out, pr.Findings...)
	}
	return out
}

// HasFindings reports whether any page has at least one finding.
func (r *AuditReport) HasFindings() bool {
	return r.Totals().Total() > 0
}
