package aggregate

import (
	"testing"

	"github.com/nao1215/siteaudit/internal/model"
)

func float64Ptr(v float64) *float64 {
	return &v
}

// TestAggregateMeans tests that averages skip absent values.
func TestAggregateMeans(t *testing.T) {
	t.Parallel()

	findings := []*model.Finding{
		{PageURL: "https://a.test/", Metrics: model.Metrics{LCP: float64Ptr(2000)}},
		{PageURL: "https://a.test/"},
		{PageURL: "https://a.test/", Metrics: model.Metrics{LCP: float64Ptr(4000)}},
	}

	reports := Aggregate(findings)
	if len(reports) != 1 {
		t.Fatalf("expected 1 page, got %d", len(reports))
	}
	s := reports[0].Summary
	if s.AvgLCP == nil || *s.AvgLCP != 3000 {
		t.Errorf("expected avg LCP 3000, got %v", s.AvgLCP)
	}
	if s.AvgCLS != nil {
		t.Errorf("expected absent CLS, got %v", *s.AvgCLS)
	}
	if s.AvgTTI != nil {
		t.Errorf("expected absent TTI, got %v", *s.AvgTTI)
	}
}

// TestAggregateGrouping tests first-seen page order and severity counts.
func TestAggregateGrouping(t *testing.T) {
	t.Parallel()

	findings := []*model.Finding{
		{PageURL: "https://a.test/b", RuleID: "r1", Severity: model.SeverityCritical},
		{PageURL: "https://a.test/", RuleID: "r2", Severity: model.SeverityLow},
		{PageURL: "https://a.test/b", RuleID: "r3", Severity: model.SeverityMedium},
		{PageURL: "https://a.test/b", RuleID: "r4", Severity: model.SeverityCritical},
	}

	reports := Aggregate(findings)
	if len(reports) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(reports))
	}
	if reports[0].URL != "https://a.test/b" || reports[1].URL != "https://a.test/" {
		t.Errorf("unexpected order: %s, %s", reports[0].URL, reports[1].URL)
	}

	first := reports[0]
	if len(first.Findings) != 3 || first.Findings[1].RuleID != "r3" {
		t.Errorf("expected findings in extraction order, got %d", len(first.Findings))
	}
	want := model.SeverityCounts{Critical: 2, Medium: 1, Low: 0}
	if first.Summary.Counts != want {
		t.Errorf("expected %+v, got %+v", want, first.Summary.Counts)
	}
	if first.Summary.Page != first.URL {
		t.Errorf("expected summary page %s, got %s", first.URL, first.Summary.Page)
	}
	if reports[1].Summary.Counts.Low != 1 {
		t.Errorf("expected 1 low on second page, got %+v", reports[1].Summary.Counts)
	}
}

// TestAggregateEmpty tests that no findings give no pages.
func TestAggregateEmpty(t *testing.T) {
	t.Parallel()

	if got := Aggregate(nil); len(got) != 0 {
		t.Errorf("expected no pages, got %d", len(got))
	}
}
