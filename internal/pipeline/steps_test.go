package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/nao1215/siteaudit/internal/audit"
	"github.com/nao1215/siteaudit/internal/config"
	"github.com/nao1215/siteaudit/internal/enrich"
	"github.com/nao1215/siteaudit/internal/model"
	"github.com/nao1215/siteaudit/internal/severity"
)

const testRules = `defaults: low
rules:
  largest-contentful-paint: { crit: ">=4000", med: ">=2500" }
  color-contrast: true
  meta-description: { med: true }
`

func float64Ptr(v float64) *float64 {
	return &v
}

// fakeInvoker returns canned documents per page URL.
type fakeInvoker struct {
	mu    sync.Mutex
	docs  map[string]*model.AuditDocument
	calls []string
}

func (f *fakeInvoker) Audit(_ context.Context, pageURL string) (*model.AuditDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, pageURL)
	doc, ok := f.docs[pageURL]
	if !ok {
		return nil, fmt.Errorf("%w: no report for %s", audit.ErrAuditUnavailable, pageURL)
	}
	return doc, nil
}

func sampleDocument(finalURL string) *model.AuditDocument {
	zero := float64Ptr(0)
	return model.NewAuditDocument(finalURL, []model.RuleResult{
		{ID: model.MetricLCP, Title: "Largest Contentful Paint", Score: float64Ptr(0.2), NumericValue: float64Ptr(4500)},
		{ID: "color-contrast", Title: "Contrast", Score: zero, Example: "<p>"},
		{ID: "meta-description", Title: "Meta description", Score: zero},
		{ID: "uses-http2", Title: "HTTP/2", Score: zero},
		{ID: "document-title", Title: "Title", Score: float64Ptr(1)},
	})
}

func mustGrader(t *testing.T) *severity.Grader {
	t.Helper()

	rules, err := config.ParseRules([]byte(testRules))
	if err != nil {
		t.Fatalf("failed to parse rules: %v", err)
	}
	return severity.NewGrader(rules)
}

// TestAuditStep tests document loading and skipping.
func TestAuditStep(t *testing.T) {
	t.Parallel()

	t.Run("stores the document", func(t *testing.T) {
		t.Parallel()

		inv := &fakeInvoker{docs: map[string]*model.AuditDocument{"https://a.test/": sampleDocument("https://a.test/")}}
		page := model.NewPageAudit("https://a.test/")
		if err := NewAuditStep(inv).Do(context.Background(), page); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.Document == nil || page.Skipped {
			t.Fatal("expected a document")
		}
	})

	t.Run("empty final URL falls back to the page", func(t *testing.T) {
		t.Parallel()

		inv := &fakeInvoker{docs: map[string]*model.AuditDocument{"https://a.test/x": sampleDocument("")}}
		page := model.NewPageAudit("https://a.test/x")
		if err := NewAuditStep(inv).Do(context.Background(), page); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.Document.FinalURL != "https://a.test/x" {
			t.Errorf("expected page URL, got %q", page.Document.FinalURL)
		}
	})

	t.Run("unavailable audit skips the page", func(t *testing.T) {
		t.Parallel()

		page := model.NewPageAudit("https://a.test/missing")
		if err := NewAuditStep(&fakeInvoker{}).Do(context.Background(), page); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !page.Skipped || page.SkipReason == "" {
			t.Error("expected page to be skipped with a reason")
		}
	})

	t.Run("cancellation is returned", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		page := model.NewPageAudit("https://a.test/missing")
		err := NewAuditStep(&fakeInvoker{}).Do(ctx, page)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

// TestExtractGradeFilter tests the middle steps together.
func TestExtractGradeFilter(t *testing.T) {
	t.Parallel()

	page := model.NewPageAudit("https://a.test/")
	page.Document = sampleDocument("https://a.test/")
	ctx := context.Background()

	if err := NewExtractStep().Do(ctx, page); err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(page.Findings) != 4 {
		t.Fatalf("expected 4 findings, got %d", len(page.Findings))
	}

	if err := NewGradeStep(mustGrader(t)).Do(ctx, page); err != nil {
		t.Fatalf("grade failed: %v", err)
	}
	want := []model.Severity{model.SeverityCritical, model.SeverityCritical, model.SeverityMedium, model.SeverityLow}
	for i, f := range page.Findings {
		if f.Severity != want[i] {
			t.Errorf("finding %s: expected %v, got %v", f.RuleID, want[i], f.Severity)
		}
	}

	if err := NewFilterStep().Do(ctx, page); err != nil {
		t.Fatalf("filter failed: %v", err)
	}
	if len(page.Findings) != 3 {
		t.Errorf("expected low finding dropped, got %d findings", len(page.Findings))
	}
}

// TestExtractStepWithoutDocument tests that a missing document skips.
func TestExtractStepWithoutDocument(t *testing.T) {
	t.Parallel()

	page := model.NewPageAudit("https://a.test/")
	if err := NewExtractStep().Do(context.Background(), page); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !page.Skipped {
		t.Error("expected skip")
	}
}

// TestEnrichStep tests that enrichment stats land on the page.
func TestEnrichStep(t *testing.T) {
	t.Parallel()

	page := model.NewPageAudit("https://a.test/")
	page.Findings = []*model.Finding{
		{PageURL: "https://a.test/", RuleID: "color-contrast", Severity: model.SeverityCritical},
		{PageURL: "https://a.test/", RuleID: "custom", Severity: model.SeverityCritical},
	}

	engine := enrich.NewEngine(enrich.WithTemplates(enrich.NewTemplateProvider()))
	if err := NewEnrichStep(engine).Do(context.Background(), page); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Enrichment.TemplateFilled != 1 {
		t.Errorf("expected 1 template fill, got %d", page.Enrichment.TemplateFilled)
	}
	if page.Findings[0].Recommendation == "" {
		t.Error("expected color-contrast to be filled")
	}
	if page.Findings[1].Recommendation != "" {
		t.Error("expected unknown rule to stay blank without a remote provider")
	}
}

// TestDefaultPipeline tests the step layout.
func TestDefaultPipeline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		onlyFailing bool
		want        []string
	}{
		{"all findings", false, []string{"audit", "extract", "grade", "enrich"}},
		{"only failing", true, []string{"audit", "extract", "grade", "only_failing", "enrich"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := DefaultPipeline(&fakeInvoker{}, mustGrader(t), enrich.NewEngine(), nil,
				WithPipelineOnlyFailing(tt.onlyFailing),
			)
			names := p.StepNames()
			if len(names) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, names)
			}
			for i := range names {
				if names[i] != tt.want[i] {
					t.Errorf("step %d: expected %s, got %s", i, tt.want[i], names[i])
				}
			}
		})
	}
}
