package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/siteaudit/internal/config"
	"github.com/nao1215/siteaudit/internal/model"
)

// WaitFunc pauses for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Engine fills root-cause and recommendation text on the findings of one
// page: templates first, then the remote provider for what is left.
// An Engine serves one site at a time; its Cache may be shared.
type Engine struct {
	templates  *TemplateProvider
	generator  Generator
	cache      *Cache
	normalizer *Normalizer
	floor      model.Severity
	top        int
	maxCalls   int
	ruleDedup  bool
	rate       time.Duration
	wait       WaitFunc
	canCall    bool
	logger     *slog.Logger

	// called is set after the first network call.
	called bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTemplates enables the template provider.
func WithTemplates(p *TemplateProvider) EngineOption {
	return func(e *Engine) {
		e.templates = p
	}
}

// WithGenerator enables the remote provider.
func WithGenerator(g Generator) EngineOption {
	return func(e *Engine) {
		e.generator = g
	}
}

// WithCache sets the result cache.
func WithCache(c *Cache) EngineOption {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithNormalizer replaces the default rewrite table.
func WithNormalizer(n *Normalizer) EngineOption {
	return func(e *Engine) {
		e.normalizer = n
	}
}

// WithFloor sets the lowest severity sent to the remote provider.
func WithFloor(s model.Severity) EngineOption {
	return func(e *Engine) {
		e.floor = s
	}
}

// WithTop caps remote candidates per page. Zero or less disables the cap.
func WithTop(n int) EngineOption {
	return func(e *Engine) {
		e.top = n
	}
}

// WithMaxCalls caps remote candidates per page after WithTop.
// Zero disables the cap.
func WithMaxCalls(n int) EngineOption {
	return func(e *Engine) {
		e.maxCalls = n
	}
}

// WithRuleDedup enriches one finding per rule id and broadcasts the
// answer to findings with the same page, rule and severity.
func WithRuleDedup(enabled bool) EngineOption {
	return func(e *Engine) {
		e.ruleDedup = enabled
	}
}

// WithRate sets the pause between consecutive network calls.
func WithRate(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.rate = d
	}
}

// WithWait replaces the pause implementation.
func WithWait(fn WaitFunc) EngineOption {
	return func(e *Engine) {
		e.wait = fn
	}
}

// WithCanCall tells the engine whether the provider may be called at all.
func WithCanCall(ok bool) EngineOption {
	return func(e *Engine) {
		e.canCall = ok
	}
}

// WithEngineLogger sets the logger.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an engine. Without WithTemplates or WithGenerator the
// corresponding step is skipped.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		floor:      model.SeverityMedium,
		top:        config.DefaultLLMTop,
		rate:       config.DefaultLLMRate,
		wait:       sleepContext,
		canCall:    true,
		normalizer: NewNormalizer(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = NewMemoryCache()
	}
	return e
}

// NewEngineFromConfig builds an engine for cfg. The cache is shared by the
// caller so that several sites can use one file.
func NewEngineFromConfig(cfg *config.Config, cache *Cache, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []EngineOption{
		WithCache(cache),
		WithEngineLogger(logger),
	}
	if cfg.TemplatesEnabled() {
		opts = append(opts, WithTemplates(NewTemplateProvider()))
	}
	if cfg.RemoteEnabled() {
		floor, err := cfg.LLM.Floor()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrInvalidMinSeverity, err)
		}
		opts = append(opts,
			WithGenerator(NewRemoteProvider(cfg.LLM, WithRemoteLogger(logger))),
			WithFloor(floor),
			WithTop(cfg.LLM.Top),
			WithMaxCalls(cfg.LLM.MaxCalls),
			WithRuleDedup(cfg.LLM.RuleDedup()),
			WithRate(cfg.LLM.Rate),
			WithCanCall(cfg.LLM.CanCallRemote()),
		)
	}
	return NewEngine(opts...), nil
}

// Enrich fills the findings of one page in place. It returns ctx.Err()
// when cancelled; provider failures are recorded on the finding instead.
func (e *Engine) Enrich(ctx context.Context, findings []*model.Finding) (model.EnrichmentStats, error) {
	var stats model.EnrichmentStats

	if e.templates != nil {
		stats.TemplateFilled = e.templates.Apply(findings)
	}
	if e.generator == nil {
		return stats, nil
	}

	candidates := e.candidates(findings)
	stats.Candidates = len(candidates)
	if len(candidates) == 0 {
		return stats, nil
	}
	if !e.canCall {
		e.logger.Warn("remote provider needs an API key, skipping enrichment",
			"candidates", len(candidates),
		)
		stats.Skipped = len(candidates)
		return stats, nil
	}

	for _, rep := range candidates {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		res, ok := e.cache.Get(rep)
		if ok {
			stats.CacheHits++
		} else {
			var err error
			res, err = e.call(ctx, rep, &stats)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return stats, ctxErr
				}
				e.broadcastError(findings, rep)
				continue
			}
		}

		stats.Broadcasts += e.broadcast(findings, rep, res)
	}

	return stats, nil
}

// call asks the generator about rep, normalizes and caches the answer.
func (e *Engine) call(ctx context.Context, rep *model.Finding, stats *model.EnrichmentStats) (Result, error) {
	if e.called && e.rate > 0 {
		if err := e.wait(ctx, e.rate); err != nil {
			return Result{}, err
		}
	}
	e.called = true
	stats.RemoteCalls++

	raw, err := e.generator.Generate(ctx, rep)
	if err == nil {
		raw.RootCause, raw.Recommendation = e.normalizer.Normalize(rep.RuleID, raw.RootCause, raw.Recommendation)
		if raw.IsEmpty() {
			err = &RemoteError{RuleID: rep.RuleID, Err: ErrEmptyAnswer}
		}
	}
	if err != nil {
		stats.RemoteFailures++
		rep.EnrichError = err.Error()
		e.logger.Warn("remote enrichment failed",
			"page", rep.PageURL,
			"rule_id", rep.RuleID,
			"error", err,
		)
		return Result{}, err
	}

	if err := e.cache.Put(rep, raw); err != nil {
		e.logger.Warn("failed to write enrichment cache", "error", err)
	}
	return raw, nil
}

// candidates selects the findings sent to the remote provider, in order.
func (e *Engine) candidates(findings []*model.Finding) []*model.Finding {
	out := make([]*model.Finding, 0)
	seenRules := make(map[string]bool)
	for _, f := range findings {
		if !f.Severity.AtLeast(e.floor) || !f.NeedsRecommendation() {
			continue
		}
		if e.ruleDedup {
			if seenRules[f.RuleID] {
				continue
			}
			seenRules[f.RuleID] = true
		}
		out = append(out, f)
	}

	if e.top > 0 && len(out) > e.top {
		out = out[:e.top]
	}
	if e.maxCalls > 0 && len(out) > e.maxCalls {
		out = out[:e.maxCalls]
	}
	return out
}

// broadcast fills rep and every finding matching its signature, or its
// rule key under rule dedup. It returns how many findings other than rep
// changed.
func (e *Engine) broadcast(findings []*model.Finding, rep *model.Finding, res Result) int {
	rep.FillBlank(res.RootCause, res.Recommendation)

	filled := 0
	for _, f := range e.siblings(findings, rep) {
		if f.FillBlank(res.RootCause, res.Recommendation) {
			filled++
		}
	}
	return filled
}

// broadcastError copies the failure marker of rep to the siblings that
// are still waiting for a recommendation.
func (e *Engine) broadcastError(findings []*model.Finding, rep *model.Finding) {
	for _, f := range e.siblings(findings, rep) {
		if f.EnrichError == "" && f.NeedsRecommendation() {
			f.EnrichError = rep.EnrichError
		}
	}
}

// siblings returns the other findings that share rep's answer: the same
// signature, or the same rule key when enriching once per rule.
func (e *Engine) siblings(findings []*model.Finding, rep *model.Finding) []*model.Finding {
	signature := rep.Signature()
	ruleKey := rep.RuleKey()

	out := make([]*model.Finding, 0)
	for _, f := range findings {
		if f == rep {
			continue
		}
		if f.Signature() != signature && (!e.ruleDedup || f.RuleKey() != ruleKey) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// sleepContext waits for d unless ctx ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
