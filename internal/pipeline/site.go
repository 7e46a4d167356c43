package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nao1215/siteaudit/internal/aggregate"
	"github.com/nao1215/siteaudit/internal/crawler"
	"github.com/nao1215/siteaudit/internal/model"
)

// Crawler returns the pages of one site in breadth-first order.
type Crawler interface {
	Crawl(ctx context.Context, startURL string) ([]*model.Page, error)
}

// statsReporter is implemented by crawlers that count their frontier.
type statsReporter interface {
	Stats() crawler.SpiderStats
}

// SiteRunner audits one site: it crawls first, then runs the pipeline for
// each page in turn and aggregates the findings.
type SiteRunner struct {
	crawler  Crawler
	pipeline *Pipeline
	device   string
	logger   *slog.Logger
}

// SiteOption configures a SiteRunner.
type SiteOption func(*SiteRunner)

// WithSiteLogger sets a custom logger for the runner.
func WithSiteLogger(logger *slog.Logger) SiteOption {
	return func(r *SiteRunner) {
		r.logger = logger
	}
}

// WithSiteDevice records the analyzer form factor on the report.
func WithSiteDevice(device string) SiteOption {
	return func(r *SiteRunner) {
		r.device = device
	}
}

// NewSiteRunner creates a runner from a crawler and a per-page pipeline.
func NewSiteRunner(c Crawler, p *Pipeline, opts ...SiteOption) *SiteRunner {
	r := &SiteRunner{
		crawler:  c,
		pipeline: p,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run audits the site at startURL. The returned report is never nil;
// an error that stopped the run is also stored on it.
func (r *SiteRunner) Run(ctx context.Context, startURL string) (*model.AuditReport, error) {
	report := model.NewAuditReport(startURL)
	report.Device = r.device
	defer func() {
		report.Duration = time.Since(report.DateScanned)
	}()

	pages, err := r.crawler.Crawl(ctx, startURL)
	report.Pages = pages
	if err != nil {
		return r.fail(report, err)
	}
	attrs := []any{"site", startURL, "pages", len(pages)}
	if sr, ok := r.crawler.(statsReporter); ok {
		attrs = append(attrs, "urls_queued", sr.Stats().URLsQueued)
	}
	r.logger.Info("crawl completed", attrs...)

	findings := make([]*model.Finding, 0)
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			report.PageReports = aggregate.Aggregate(findings)
			return r.fail(report, err)
		}

		r.logger.Info("auditing page",
			"page", page.URL,
			"index", i+1,
			"total", len(pages),
		)

		pa := model.NewPageAudit(page.URL)
		err := r.pipeline.Execute(ctx, pa)
		report.Enrichment.Merge(pa.Enrichment)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				report.PageReports = aggregate.Aggregate(findings)
				return r.fail(report, ctxErr)
			}
			r.logger.Warn("page failed", "page", page.URL, "error", err)
			report.SkippedPages = append(report.SkippedPages, page.URL)
			continue
		}
		if pa.Skipped {
			report.SkippedPages = append(report.SkippedPages, page.URL)
			continue
		}
		findings = append(findings, pa.Findings...)
	}

	report.PageReports = aggregate.Aggregate(findings)
	return report, nil
}

// fail records err on report. A cancelled run is marked TimedOut and
// keeps the pages finished before it stopped.
func (r *SiteRunner) fail(report *model.AuditReport, err error) (*model.AuditReport, error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		report.TimedOut = true
	}
	report.Error = err
	report.ErrorMessage = err.Error()
	r.logger.Warn("site audit stopped", "site", report.StartURL, "error", err)
	return report, err
}
