// Package model defines the core data structures used throughout SiteAudit.
//
// This package contains the following main types:
//   - Page: a crawled HTML page accepted by the frontier crawler
//   - AuditDocument: the analyzer result for one page, rules in document order
//   - Finding: one failing rule on one page, graded and enriched in place
//   - PageAudit: the per-page unit of work carried through the pipeline
//   - PageReport and AuditReport: aggregated results handed to report writers
//
// The types live in their own package so that the crawler, grader,
// enrichment engine, aggregator and report writers can share them without
// import cycles. All of them serialize to JSON for reports and the history
// database.
package model
