package severity

import (
	"github.com/nao1215/siteaudit/internal/config"
	"github.com/nao1215/siteaudit/internal/model"
)

// thresholdMetrics are the rule ids whose numeric value is compared
// against crit/med thresholds.
var thresholdMetrics = map[string]bool{
	model.MetricLCP: true,
	model.MetricCLS: true,
}

// Grader assigns severities. It is safe for concurrent use.
type Grader struct {
	rules *config.Rules
}

// NewGrader creates a Grader for the given rules. nil rules grade
// everything at the low default.
func NewGrader(rules *config.Rules) *Grader {
	return &Grader{rules: rules}
}

// Default returns the level used when no policy decides.
func (g *Grader) Default() model.Severity {
	if g.rules == nil {
		return model.SeverityLow
	}
	return g.rules.Default
}

// Grade returns the severity of f. Metric values are read from doc, or
// from the finding's own metrics when doc is nil.
func (g *Grader) Grade(f *model.Finding, doc *model.AuditDocument) model.Severity {
	def := g.Default()

	policy, ok := g.rules.Policy(f.RuleID)
	if !ok {
		return def
	}

	if policy.HasThresholdKeys() && thresholdMetrics[f.RuleID] {
		v, ok := metricValue(f, doc)
		return gradeThreshold(v, ok, policy, def)
	}

	switch {
	case policy.IsShorthandTrue(), policy.Crit.IsTrue():
		return model.SeverityCritical
	case policy.Med.IsTrue():
		return model.SeverityMedium
	default:
		return def
	}
}

// GradeAll grades every finding in place.
func (g *Grader) GradeAll(findings []*model.Finding, doc *model.AuditDocument) {
	for _, f := range findings {
		f.Severity = g.Grade(f, doc)
	}
}

// gradeThreshold checks crit first, then med. A true side always matches
// and a numeric side matches when the metric is present and v reaches it.
// crit >= med is not checked. Without a metric value and no true side the
// default applies.
func gradeThreshold(v float64, hasValue bool, policy config.Policy, def model.Severity) model.Severity {
	if reaches(v, hasValue, policy.Crit) {
		return model.SeverityCritical
	}
	if reaches(v, hasValue, policy.Med) {
		return model.SeverityMedium
	}
	if !hasValue {
		return def
	}
	return model.SeverityLow
}

func reaches(v float64, hasValue bool, side config.PolicyValue) bool {
	if side.IsTrue() {
		return true
	}
	limit, ok := side.Threshold()
	return ok && hasValue && v >= limit
}

func metricValue(f *model.Finding, doc *model.AuditDocument) (float64, bool) {
	if doc != nil {
		return doc.MetricValue(f.RuleID)
	}

	var v *float64
	switch f.RuleID {
	case model.MetricLCP:
		v = f.Metrics.LCP
	case model.MetricCLS:
		v = f.Metrics.CLS
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}
