package enrich

import (
	"regexp"
	"strings"

	"github.com/nao1215/siteaudit/internal/model"
)

// Field selects which text a rewrite applies to.
type Field int

const (
	// FieldRootCause is the root-cause text.
	FieldRootCause Field = iota
	// FieldRecommendation is the recommendation text.
	FieldRecommendation
)

// RewriteRule is one step of the normalization table.
type RewriteRule struct {
	// Name identifies the rule in tests and logs.
	Name string

	// Applies reports whether the rule runs for a lower-cased rule id.
	// nil means every rule id.
	Applies func(ruleID string) bool

	// Rewrite returns the new text for one field.
	Rewrite func(text string, field Field) string
}

// Canonical texts used when a model answer drifts.
const (
	contrastRootSuffix = " Text contrast should be at least 4.5:1 for normal text (WCAG 2.1 AA 1.4.3)."
	contrastRecSuffix  = " Aim for at least 4.5:1 contrast for normal text (WCAG 2.1 AA 1.4.3)."

	clsRoot = "Layout is jumping during load (high CLS). Elements like images, ads, or banners " +
		"are loading without reserved space, so content moves after first paint."
	clsRec = "Reserve explicit width/height or aspect-ratio boxes for images/ads/embeds, and avoid " +
		"injecting banners above existing content so the page stays stable."

	lcpNetworkRoot = "Largest Contentful Paint (LCP) is above ~2.5s on mobile. Likely causes: large " +
		"hero image, render-blocking CSS/JS, or slow initial server response."
	lcpNetworkRec = "Compress/resize hero images, inline critical CSS, defer non-critical JS, and " +
		"enable caching/CDN to get LCP under ~2.5s on mobile."
	lcpWCAGRoot = "Largest Contentful Paint (LCP) is slower than target (~2.5s on mobile). Heavy hero " +
		"media or render-blocking resources are delaying first meaningful paint."
	lcpWCAGRec = "Compress/resize the main hero image (aim for a lightweight hero, ~100KB or less), " +
		"inline critical CSS, defer non-critical JS, and use CDN caching so above-the-fold content " +
		"renders sooner."
)

var (
	// codeFences are removed longest first so that language tags go too.
	codeFences = []string{"```python", "```json", "```js", "```"}

	repeatedAA    = regexp.MustCompile(`(2\.1 AA\s+)(?:2\.1 AA\s+)+`)
	subSection143 = regexp.MustCompile(`1\.4\.3(?:\.\d+)+`)

	clsRootTriggers = []string{"accessib", "visual", "hero image", "cumulative layout shift", "cls", "shift"}
	clsRecTriggers  = []string{"accessib", "visual", "hero image", "shift", "cls"}
)

// DefaultRewriteRules returns the normalization table in application order.
func DefaultRewriteRules() []RewriteRule {
	return []RewriteRule{
		{
			Name: "strip-code-fences",
			Rewrite: func(text string, _ Field) string {
				for _, fence := range codeFences {
					text = strings.ReplaceAll(text, fence, "")
				}
				return strings.TrimSpace(text)
			},
		},
		{
			Name: "collapse-repeated-aa",
			Rewrite: func(text string, _ Field) string {
				return repeatedAA.ReplaceAllString(text, "$1")
			},
		},
		{
			Name:    "contrast-ratio",
			Applies: isContrastRule,
			Rewrite: func(text string, _ Field) string {
				return strings.ReplaceAll(text, "1.4.3:1", "4.5:1")
			},
		},
		{
			Name:    "contrast-minimum",
			Applies: isContrastRule,
			Rewrite: func(text string, field Field) string {
				if !strings.Contains(strings.ToLower(text), "contrast") || strings.Contains(text, "4.5:1") {
					return text
				}
				if field == FieldRootCause {
					return text + contrastRootSuffix
				}
				return text + contrastRecSuffix
			},
		},
		{
			Name:    "contrast-subsection",
			Applies: isContrastRule,
			Rewrite: func(text string, _ Field) string {
				return subSection143.ReplaceAllString(text, "1.4.3")
			},
		},
		{
			Name:    "cls-canonical",
			Applies: ruleIs(model.MetricCLS),
			Rewrite: func(text string, field Field) string {
				if field == FieldRootCause {
					if containsAny(text, clsRootTriggers) {
						return clsRoot
					}
					return text
				}
				if containsAny(text, clsRecTriggers) {
					return clsRec
				}
				return text
			},
		},
		{
			Name:    "lcp-faster-network",
			Applies: ruleIs(model.MetricLCP),
			Rewrite: func(text string, field Field) string {
				if !containsAny(text, []string{"faster network"}) {
					return text
				}
				if field == FieldRootCause {
					return lcpNetworkRoot
				}
				return lcpNetworkRec
			},
		},
		{
			Name:    "lcp-wcag-limit",
			Applies: ruleIs(model.MetricLCP),
			Rewrite: func(text string, field Field) string {
				if !containsAny(text, []string{"wcag"}) {
					return text
				}
				if field == FieldRootCause {
					return lcpWCAGRoot
				}
				return lcpWCAGRec
			},
		},
	}
}

// Normalizer applies rewrite rules in order.
type Normalizer struct {
	rules []RewriteRule
}

// NewNormalizer returns a normalizer for rules. With no rules it uses
// DefaultRewriteRules.
func NewNormalizer(rules ...RewriteRule) *Normalizer {
	if len(rules) == 0 {
		rules = DefaultRewriteRules()
	}
	return &Normalizer{rules: rules}
}

// Normalize cleans up both texts of a remote answer for ruleID.
func (n *Normalizer) Normalize(ruleID, rootCause, recommendation string) (string, string) {
	rid := strings.ToLower(ruleID)
	root := strings.TrimSpace(rootCause)
	rec := strings.TrimSpace(recommendation)
	for _, rule := range n.rules {
		if rule.Applies != nil && !rule.Applies(rid) {
			continue
		}
		root = rule.Rewrite(root, FieldRootCause)
		rec = rule.Rewrite(rec, FieldRecommendation)
	}
	return root, rec
}

func isContrastRule(ruleID string) bool {
	return strings.Contains(ruleID, "color") || strings.Contains(ruleID, "contrast")
}

func ruleIs(id string) func(string) bool {
	return func(ruleID string) bool {
		return ruleID == id
	}
}

// containsAny reports whether the lower-cased text contains any needle.
func containsAny(text string, needles []string) bool {
	lower := strings.ToLower(text)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}
