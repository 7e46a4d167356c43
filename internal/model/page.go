package model

import "time"

// Page is a crawled HTML page that was accepted into the frontier output.
// Only pages that answered with a non-error status and an HTML content
// type become Pages.
type Page struct {
	// URL is the normalized page URL (the frontier key).
	URL string `json:"url"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// ContentType is the Content-Type response header.
	ContentType string `json:"content_type"`

	// Title is the text of the <title> element, if any.
	Title string `json:"title,omitempty"`

	// FetchedAt is when the crawler received the response.
	FetchedAt time.Time `json:"fetched_at"`
}

// PageAudit is the unit of work for the per-page pipeline.
// Steps fill Document and Findings in turn; a step that cannot produce
// its output marks the page as skipped and later steps leave it alone.
type PageAudit struct {
	// URL is the crawled page URL handed to the analyzer.
	URL string `json:"url"`

	// Document is the analyzer output, nil until the audit step succeeds.
	Document *AuditDocument `json:"-"`

	// Findings are extracted from Document and then graded and enriched.
	Findings []*Finding `json:"findings"`

	// Skipped is true when the page dropped out of the pipeline.
	Skipped bool `json:"skipped"`

	// SkipReason explains why the page was skipped.
	SkipReason string `json:"skip_reason,omitempty"`

	// PerformedSteps lists the steps that ran for this page, in order.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// Enrichment records what the enrichment step did for this page.
	Enrichment EnrichmentStats `json:"enrichment"`
}

// NewPageAudit creates an empty PageAudit for the given URL.
func NewPageAudit(pageURL string) *PageAudit {
	return &PageAudit{
		URL:      pageURL,
		Findings: make([]*Finding, 0),
	}
}

// Skip marks the page as skipped with the given reason.
func (p *PageAudit) Skip(reason string) {
	p.Skipped = true
	p.SkipReason = reason
}
