package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/nao1215/siteaudit/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, page *model.PageAudit) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, page *model.PageAudit) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, page)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.continueOnError {
			t.Error("expected continueOnError to default to false")
		}
		if p.logger == nil {
			t.Error("expected default logger")
		}
	})

	t.Run("applies WithContinueOnError option", func(t *testing.T) {
		t.Parallel()

		p := New(WithContinueOnError(true))
		if !p.continueOnError {
			t.Error("expected continueOnError to be true")
		}
	})
}

// TestPipelineExecute tests step execution.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("runs steps in order", func(t *testing.T) {
		t.Parallel()

		var order []string
		record := func(name string) *mockStep {
			return &mockStep{name: name, doFunc: func(context.Context, *model.PageAudit) error {
				order = append(order, name)
				return nil
			}}
		}

		p := New()
		p.AddSteps(record("a"), record("b"), record("c"))

		page := model.NewPageAudit("https://a.test/")
		if err := p.Execute(context.Background(), page); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(order) != 3 || order[0] != "a" || order[2] != "c" {
			t.Errorf("unexpected order %v", order)
		}
		if len(page.PerformedSteps) != 3 {
			t.Errorf("expected 3 performed steps, got %v", page.PerformedSteps)
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		second := &mockStep{name: "second"}
		p := New()
		p.AddSteps(&mockStep{name: "first", doFunc: func(context.Context, *model.PageAudit) error {
			return boom
		}}, second)

		err := p.Execute(context.Background(), model.NewPageAudit("https://a.test/"))
		if !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
		if second.callCount != 0 {
			t.Error("expected second step not to run")
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		second := &mockStep{name: "second"}
		p := New(WithContinueOnError(true))
		p.AddSteps(&mockStep{name: "first", doFunc: func(context.Context, *model.PageAudit) error {
			return boom
		}}, second)

		err := p.Execute(context.Background(), model.NewPageAudit("https://a.test/"))
		if !errors.Is(err, boom) {
			t.Errorf("expected first error to be returned, got %v", err)
		}
		if second.callCount != 1 {
			t.Error("expected second step to run")
		}
	})

	t.Run("skipped page stops the pipeline", func(t *testing.T) {
		t.Parallel()

		second := &mockStep{name: "second"}
		p := New()
		p.AddSteps(&mockStep{name: "first", doFunc: func(_ context.Context, page *model.PageAudit) error {
			page.Skip("no document")
			return nil
		}}, second)

		page := model.NewPageAudit("https://a.test/")
		if err := p.Execute(context.Background(), page); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if second.callCount != 0 {
			t.Error("expected second step not to run")
		}
		if !page.Skipped || page.SkipReason != "no document" {
			t.Errorf("unexpected skip state %v %q", page.Skipped, page.SkipReason)
		}
	})

	t.Run("checks cancellation before each step", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		second := &mockStep{name: "second"}
		p := New()
		p.AddSteps(&mockStep{name: "first", doFunc: func(context.Context, *model.PageAudit) error {
			cancel()
			return nil
		}}, second)

		err := p.Execute(ctx, model.NewPageAudit("https://a.test/"))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if second.callCount != 0 {
			t.Error("expected second step not to run")
		}
	})
}

// TestPipelineStepNames tests step introspection.
func TestPipelineStepNames(t *testing.T) {
	t.Parallel()

	p := New()
	p.AddStep(&mockStep{name: "audit"})
	p.AddStep(&mockStep{name: "extract"})

	names := p.StepNames()
	if len(names) != 2 || names[0] != "audit" || names[1] != "extract" {
		t.Errorf("unexpected names %v", names)
	}
}
