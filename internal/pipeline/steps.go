package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nao1215/siteaudit/internal/audit"
	"github.com/nao1215/siteaudit/internal/enrich"
	"github.com/nao1215/siteaudit/internal/model"
	"github.com/nao1215/siteaudit/internal/severity"
)

// AuditStep runs the analyzer for the page and stores its document.
// A page without a usable document is skipped.
type AuditStep struct {
	invoker audit.Invoker
	logger  *slog.Logger
}

// AuditStepOption configures an AuditStep.
type AuditStepOption func(*AuditStep)

// WithAuditLogger sets a custom logger for the audit step.
func WithAuditLogger(logger *slog.Logger) AuditStepOption {
	return func(s *AuditStep) {
		s.logger = logger
	}
}

// NewAuditStep creates an audit step backed by invoker.
func NewAuditStep(invoker audit.Invoker, opts ...AuditStepOption) *AuditStep {
	s := &AuditStep{
		invoker: invoker,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *AuditStep) Name() string {
	return "audit"
}

// Do executes the audit step.
func (s *AuditStep) Do(ctx context.Context, page *model.PageAudit) error {
	doc, err := s.invoker.Audit(ctx, page.URL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.Warn("skipping page, no audit document",
			"page", page.URL,
			"unavailable", errors.Is(err, audit.ErrAuditUnavailable),
			"error", err,
		)
		page.Skip(err.Error())
		return nil
	}

	if doc.FinalURL == "" {
		doc.FinalURL = page.URL
	}
	page.Document = doc
	return nil
}

// ExtractStep turns the failing rules of the document into findings.
type ExtractStep struct{}

// NewExtractStep creates an extract step.
func NewExtractStep() *ExtractStep {
	return &ExtractStep{}
}

// Name returns the step name.
func (s *ExtractStep) Name() string {
	return "extract"
}

// Do executes the extract step.
func (s *ExtractStep) Do(_ context.Context, page *model.PageAudit) error {
	if page.Document == nil {
		page.Skip("no audit document")
		return nil
	}
	page.Findings = audit.ExtractFindings(page.Document)
	return nil
}

// GradeStep assigns a severity to every finding.
type GradeStep struct {
	grader *severity.Grader
}

// NewGradeStep creates a grade step.
func NewGradeStep(grader *severity.Grader) *GradeStep {
	return &GradeStep{grader: grader}
}

// Name returns the step name.
func (s *GradeStep) Name() string {
	return "grade"
}

// Do executes the grade step.
func (s *GradeStep) Do(_ context.Context, page *model.PageAudit) error {
	s.grader.GradeAll(page.Findings, page.Document)
	return nil
}

// FilterStep drops findings graded low.
type FilterStep struct{}

// NewFilterStep creates a filter step.
func NewFilterStep() *FilterStep {
	return &FilterStep{}
}

// Name returns the step name.
func (s *FilterStep) Name() string {
	return "only_failing"
}

// Do executes the filter step.
func (s *FilterStep) Do(_ context.Context, page *model.PageAudit) error {
	kept := make([]*model.Finding, 0, len(page.Findings))
	for _, f := range page.Findings {
		if f.Severity.AtLeast(model.SeverityMedium) {
			kept = append(kept, f)
		}
	}
	page.Findings = kept
	return nil
}

// EnrichStep fills root-cause and recommendation text.
type EnrichStep struct {
	engine *enrich.Engine
	logger *slog.Logger
}

// EnrichStepOption configures an EnrichStep.
type EnrichStepOption func(*EnrichStep)

// WithEnrichLogger sets a custom logger for the enrich step.
func WithEnrichLogger(logger *slog.Logger) EnrichStepOption {
	return func(s *EnrichStep) {
		s.logger = logger
	}
}

// NewEnrichStep creates an enrich step backed by engine.
func NewEnrichStep(engine *enrich.Engine, opts ...EnrichStepOption) *EnrichStep {
	s := &EnrichStep{
		engine: engine,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *EnrichStep) Name() string {
	return "enrich"
}

// Do executes the enrich step.
func (s *EnrichStep) Do(ctx context.Context, page *model.PageAudit) error {
	if len(page.Findings) == 0 {
		return nil
	}

	stats, err := s.engine.Enrich(ctx, page.Findings)
	page.Enrichment.Merge(stats)
	if err != nil {
		return err
	}

	s.logger.Debug("enrichment completed",
		"page", page.URL,
		"template_filled", stats.TemplateFilled,
		"remote_calls", stats.RemoteCalls,
		"cache_hits", stats.CacheHits,
	)
	return nil
}

// DefaultPipelineConfig holds configuration for the default pipeline.
type DefaultPipelineConfig struct {
	// OnlyFailing adds the filter step between grading and enrichment.
	OnlyFailing bool

	// Logger is handed to the steps.
	Logger *slog.Logger
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineOnlyFailing drops low findings before enrichment.
func WithPipelineOnlyFailing(enabled bool) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.OnlyFailing = enabled
	}
}

// WithPipelineLogger sets the logger of every step.
func WithPipelineLogger(logger *slog.Logger) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Logger = logger
	}
}

// DefaultPipeline creates the per-page pipeline:
// audit, extract, grade, only_failing (optional) and enrich.
func DefaultPipeline(
	invoker audit.Invoker,
	grader *severity.Grader,
	engine *enrich.Engine,
	pipelineOpts []Option,
	configOpts ...DefaultPipelineOption,
) *Pipeline {
	p := New(pipelineOpts...)

	cfg := &DefaultPipelineConfig{
		Logger: slog.Default(),
	}
	for _, opt := range configOpts {
		opt(cfg)
	}

	p.AddSteps(
		NewAuditStep(invoker, WithAuditLogger(cfg.Logger)),
		NewExtractStep(),
		NewGradeStep(grader),
	)
	if cfg.OnlyFailing {
		p.AddStep(NewFilterStep())
	}
	p.AddStep(NewEnrichStep(engine, WithEnrichLogger(cfg.Logger)))

	return p
}
