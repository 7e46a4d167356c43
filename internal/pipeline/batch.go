package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/siteaudit/internal/model"
)

// RunnerFactory builds the runner for one start URL.
// Each site gets its own crawler state and enrichment engine.
type RunnerFactory func(target string) *SiteRunner

// BatchProcessor audits several sites concurrently. Every site is still
// processed sequentially inside its own SiteRunner.
type BatchProcessor struct {
	// runnerFactory creates a fresh runner for each site.
	runnerFactory RunnerFactory

	// concurrency is the maximum number of sites audited at once.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger

	// results stores completed reports in target order.
	results []*model.AuditReport
	mu      sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent sites.
// Non-positive values are ignored.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor. The default concurrency
// is one site at a time.
func NewBatchProcessor(runnerFactory RunnerFactory, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		runnerFactory: runnerFactory,
		concurrency:   1,
		results:       make([]*model.AuditReport, 0),
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch audits every target and returns the reports in target
// order. A failed site keeps its error on its report and does not stop
// the others; only cancellation is returned as an error. Targets that
// never started because of cancellation have a nil report.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, targets []string) ([]*model.AuditReport, error) {
	bp.logger.Info("starting batch processing",
		"total_sites", len(targets),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()
	bp.results = make([]*model.AuditReport, len(targets))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("auditing site",
				"site", target,
				"index", i+1,
				"total", len(targets),
			)

			report, err := bp.runnerFactory(target).Run(ctx, target)

			bp.mu.Lock()
			bp.results[i] = report
			bp.mu.Unlock()

			if err != nil {
				bp.logger.Warn("site audit failed",
					"site", target,
					"error", err,
				)
				if report.TimedOut {
					return err
				}
				return nil
			}

			bp.logger.Info("site audit completed",
				"site", target,
				"pages", len(report.Pages),
				"findings", report.Totals().Total(),
			)
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Info("batch processing complete",
		"total_sites", len(targets),
		"elapsed", time.Since(startTime),
	)

	return bp.results, err
}
