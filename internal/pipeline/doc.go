// Package pipeline runs the per-page audit stages and drives whole sites.
//
// A Pipeline executes Step values in order on a model.PageAudit: the
// analyzer run, finding extraction, severity grading, the optional
// only-failing filter and enrichment. A step that cannot produce its
// output marks the page skipped and the remaining steps are not run.
//
// SiteRunner crawls a site first and then feeds its pages through the
// pipeline one after another before aggregating the findings.
// BatchProcessor audits several sites concurrently with errgroup while
// each site stays strictly sequential.
package pipeline
