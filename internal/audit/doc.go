// Package audit runs the page-quality analyzer and turns its output into
// findings.
//
// The Invoker interface produces a model.AuditDocument for a page URL.
// LighthouseRunner implements it by running the Lighthouse CLI and
// reading the JSON report it writes. ParseDocument decodes a report while
// keeping the audits in document order, and ExtractFindings flattens a
// document into one model.Finding per failing rule.
//
// A page whose report is missing or unparsable is reported with
// ErrAuditUnavailable; callers skip such pages and carry on.
package audit
