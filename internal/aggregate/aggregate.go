// Package aggregate groups findings by page and summarizes each page.
package aggregate

import (
	"github.com/nao1215/siteaudit/internal/model"
)

// Aggregate groups findings by PageURL in first-seen order and computes
// one summary per page. Metric averages use present values only.
func Aggregate(findings []*model.Finding) []*model.PageReport {
	reports := make([]*model.PageReport, 0)
	byPage := make(map[string]*model.PageReport)

	for _, f := range findings {
		pr, ok := byPage[f.PageURL]
		if !ok {
			pr = &model.PageReport{
				URL:      f.PageURL,
				Findings: make([]*model.Finding, 0),
			}
			byPage[f.PageURL] = pr
			reports = append(reports, pr)
		}
		pr.Findings = append(pr.Findings, f)
	}

	for _, pr := range reports {
		pr.Summary = Summarize(pr.URL, pr.Findings)
	}
	return reports
}

// Summarize computes the severity counts and metric means of one page.
func Summarize(page string, findings []*model.Finding) model.PageSummary {
	summary := model.PageSummary{Page: page}

	var lcp, cls, tti mean
	for _, f := range findings {
		summary.Counts.Add(f.Severity)
		lcp.add(f.Metrics.LCP)
		cls.add(f.Metrics.CLS)
		tti.add(f.Metrics.TTI)
	}

	summary.AvgLCP = lcp.value()
	summary.AvgCLS = cls.value()
	summary.AvgTTI = tti.value()
	return summary
}

// mean accumulates optional values.
type mean struct {
	sum   float64
	count int
}

func (m *mean) add(v *float64) {
	if v == nil {
		return
	}
	m.sum += *v
	m.count++
}

// value returns nil when nothing was added.
func (m *mean) value() *float64 {
	if m.count == 0 {
		return nil
	}
	avg := m.sum / float64(m.count)
	return &avg
}
