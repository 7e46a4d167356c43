package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/siteaudit/internal/model"
)

// Step is one stage of the per-page pipeline.
// Steps run in sequence and each receives the PageAudit filled in by the
// steps before it.
type Step interface {
	// Do executes the step. A page that cannot be processed further is
	// marked with PageAudit.Skip and nil is returned; an error means the
	// step itself broke.
	Do(ctx context.Context, page *model.PageAudit) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline runs its steps in order for one page at a time.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, slog.Default is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError makes the pipeline run the remaining steps after a
// step returns an error.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps:           make([]Step, 0),
		continueOnError: false,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps for page.
// Cancellation is checked before each step. Once a step marks the page
// as skipped the remaining steps are not run.
//
// Returns the first error encountered if continueOnError is false,
// or nil if all steps complete.
func (p *Pipeline) Execute(ctx context.Context, page *model.PageAudit) error {
	var firstErr error

	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"page", page.URL,
				"reason", ctx.Err(),
			)
			return ctx.Err()
		default:
		}

		if page.Skipped {
			p.logger.Debug("page skipped, stopping pipeline",
				"page", page.URL,
				"reason", page.SkipReason,
			)
			break
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"page", page.URL,
		)

		if err := step.Do(ctx, page); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"page", page.URL,
				"error", err,
			)

			if !p.continueOnError {
				return err
			}
			if firstErr == nil {
				firstErr = err
			}
		}

		page.PerformedSteps = append(page.PerformedSteps, step.Name())
	}

	return firstErr
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
