package audit

import (
	"github.com/nao1215/siteaudit/internal/model"
)

// ExtractFindings returns one finding per failing rule of doc, in
// document order. A rule fails when its score is below 1 or absent;
// rules without a title are ignored.
//
// Every finding carries the page's LCP, CLS and TTI values and starts
// ungraded and unenriched.
func ExtractFindings(doc *model.AuditDocument) []*model.Finding {
	findings := make([]*model.Finding, 0)
	if doc == nil {
		return findings
	}

	metrics := doc.Metrics()
	for _, rule := range doc.Rules {
		if rule.Title == "" || rule.Passed() {
			continue
		}
		findings = append(findings, &model.Finding{
			PageURL:  doc.FinalURL,
			Category: rule.Group,
			RuleID:   rule.ID,
			Title:    rule.Title,
			Example:  rule.Example,
			Metrics:  metrics,
			RawScore: rule.Score,
		})
	}
	return findings
}
