package model

// Metric rule ids that carry a numeric value used by grading, templates
// and aggregation.
const (
	// MetricLCP is the Largest Contentful Paint audit, in milliseconds.
	MetricLCP = "largest-contentful-paint"

	// MetricCLS is the Cumulative Layout Shift audit, unitless.
	MetricCLS = "cumulative-layout-shift"

	// MetricTTI is the Time to Interactive audit, in milliseconds.
	MetricTTI = "interactive"
)

// RuleResult is one audit entry of an AuditDocument.
type RuleResult struct {
	// ID is the analyzer's rule id (e.g. "color-contrast").
	ID string `json:"id"`

	// Title is the human-readable rule title. Rules without a title never
	// produce findings.
	Title string `json:"title"`

	// Group is the optional category the rule belongs to.
	Group string `json:"group,omitempty"`

	// Score is in [0,1]; nil when the analyzer reported no score
	// (informative or not-applicable rules).
	Score *float64 `json:"score,omitempty"`

	// NumericValue is the measured value for metric rules.
	NumericValue *float64 `json:"numeric_value,omitempty"`

	// Example is the snippet or source of the first detail item, if any.
	Example string `json:"example,omitempty"`
}

// Passed reports whether the rule scored a clean pass (score >= 1).
func (r RuleResult) Passed() bool {
	return r.Score != nil && *r.Score >= 1
}

// AuditDocument is the structured result of auditing one page.
// Rules keep the order in which the analyzer emitted them, which makes
// extraction and first-occurrence deduplication deterministic.
type AuditDocument struct {
	// FinalURL is the URL the analyzer ended up on after redirects.
	FinalURL string `json:"final_url"`

	// Rules holds every audit entry in document order.
	Rules []RuleResult `json:"rules"`

	index map[string]int
}

// NewAuditDocument builds a document from rules in document order.
// When a rule id repeats, the later entry wins for lookups.
func NewAuditDocument(finalURL string, rules []RuleResult) *AuditDocument {
	doc := &AuditDocument{
		FinalURL: finalURL,
		Rules:    rules,
		index:    make(map[string]int, len(rules)),
	}
	for i, r := range rules {
		doc.index[r.ID] = i
	}
	return doc
}

// Rule returns the rule with the given id.
func (d *AuditDocument) Rule(id string) (RuleResult, bool) {
	if d == nil {
		return RuleResult{}, false
	}
	if d.index == nil {
		for _, r := range d.Rules {
			if r.ID == id {
				return r, true
			}
		}
		return RuleResult{}, false
	}
	i, ok := d.index[id]
	if !ok {
		return RuleResult{}, false
	}
	return d.Rules[i], true
}

// MetricValue returns the numeric value recorded for a metric rule.
// The boolean is false when the rule is missing or has no value.
func (d *AuditDocument) MetricValue(id string) (float64, bool) {
	r, ok := d.Rule(id)
	if !ok || r.NumericValue == nil {
		return 0, false
	}
	return *r.NumericValue, true
}

// Metrics returns the three named metric values of the document.
func (d *AuditDocument) Metrics() Metrics {
	return Metrics{
		LCP: d.optionalMetric(MetricLCP),
		CLS: d.optionalMetric(MetricCLS),
		TTI: d.optionalMetric(MetricTTI),
	}
}

func (d *AuditDocument) optionalMetric(id string) *float64 {
	v, ok := d.MetricValue(id)
	if !ok {
		return nil
	}
	return &v
}
