package enrich

import (
	"strings"
	"testing"

	"github.com/nao1215/siteaudit/internal/model"
)

func float64Ptr(v float64) *float64 {
	return &v
}

// TestRender tests placeholder substitution.
func TestRender(t *testing.T) {
	t.Parallel()

	f := &model.Finding{
		PageURL: "https://a.test/",
		RuleID:  "largest-contentful-paint",
		Title:   "Largest Contentful Paint",
		Metrics: model.Metrics{LCP: float64Ptr(4200.5), CLS: float64Ptr(0.12)},
	}

	tests := []struct {
		name string
		text string
		want string
	}{
		{"metric", "LCP is {LCP} ms", "LCP is 4200.5 ms"},
		{"absent metric", "TTI is {TTI}", "TTI is n/a"},
		{"finding fields", "{RuleID} on {PageURL}: {Title}", "largest-contentful-paint on https://a.test/: Largest Contentful Paint"},
		{"unknown placeholder", "value {Secret}!", "value !"},
		{"braces with spaces are literal", "use { passive: true }", "use { passive: true }"},
		{"no placeholder", "plain", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Render(tt.text, f); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

// TestTemplateProviderLookup tests rule lookup.
func TestTemplateProviderLookup(t *testing.T) {
	t.Parallel()

	p := NewTemplateProvider()

	t.Run("known rule renders metrics", func(t *testing.T) {
		t.Parallel()

		f := &model.Finding{RuleID: "cumulative-layout-shift", Metrics: model.Metrics{CLS: float64Ptr(0.3)}}
		root, rec := p.Lookup(f)
		if !strings.Contains(root, "(0.3)") {
			t.Errorf("expected CLS value in root cause, got %q", root)
		}
		if rec == "" {
			t.Error("expected recommendation")
		}
	})

	t.Run("rule id is case insensitive", func(t *testing.T) {
		t.Parallel()

		root, _ := p.Lookup(&model.Finding{RuleID: "Image-Alt"})
		if root == "" {
			t.Error("expected template for Image-Alt")
		}
	})

	t.Run("unknown rule yields empty strings", func(t *testing.T) {
		t.Parallel()

		root, rec := p.Lookup(&model.Finding{RuleID: "does-not-exist"})
		if root != "" || rec != "" {
			t.Errorf("expected empty strings, got %q, %q", root, rec)
		}
	})

	t.Run("table has every rule", func(t *testing.T) {
		t.Parallel()

		if got := len(p.Rules()); got != 14 {
			t.Errorf("expected 14 templates, got %d", got)
		}
	})
}

// TestTemplateProviderApplyFillsBlanksOnly tests that existing text is
// never overwritten.
func TestTemplateProviderApplyFillsBlanksOnly(t *testing.T) {
	t.Parallel()

	findings := []*model.Finding{
		{RuleID: "image-alt"},
		{RuleID: "color-contrast", RootCause: "kept"},
		{RuleID: "uses-http2", RootCause: "kept", Recommendation: "kept too"},
		{RuleID: "unknown"},
	}

	filled := NewTemplateProvider().Apply(findings)
	if filled != 2 {
		t.Errorf("expected 2 findings filled, got %d", filled)
	}
	if findings[0].RootCause == "" || findings[0].Recommendation == "" {
		t.Error("expected image-alt to be filled")
	}
	if findings[1].RootCause != "kept" || findings[1].Recommendation == "" {
		t.Errorf("expected only the blank field to change, got %+v", findings[1])
	}
	if findings[2].RootCause != "kept" || findings[2].Recommendation != "kept too" {
		t.Errorf("expected full finding untouched, got %+v", findings[2])
	}
	if findings[3].RootCause != "" || findings[3].Recommendation != "" {
		t.Errorf("expected unknown rule untouched, got %+v", findings[3])
	}
}

// TestClip tests prompt field clipping.
func TestClip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "abc", 5, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"long", "abcdef", 5, "abcde …"},
		{"multibyte", "ääääää", 3, "äää …"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Clip(tt.in, tt.n); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

// TestBuildPrompt tests the prompt layout.
func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	f := &model.Finding{
		PageURL:  "https://a.test/",
		Category: "performance",
		RuleID:   "largest-contentful-paint",
		Title:    "LCP",
		Example:  strings.Repeat("x", 500),
		Severity: model.SeverityCritical,
		Metrics:  model.Metrics{LCP: float64Ptr(5000)},
	}

	prompt := BuildPrompt(f)
	for _, want := range []string{
		"page_url: https://a.test/\n",
		"rule_id: largest-contentful-paint\n",
		"severity: critical\n",
		"example: " + strings.Repeat("x", 400) + " …\n",
		"LCP: 5000 | CLS: n/a | TTI: n/a\n",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("expected prompt to contain %q\n%s", want, prompt)
		}
	}
}
