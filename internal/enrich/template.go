package enrich

import (
	"regexp"
	"strings"

	"github.com/nao1215/siteaudit/internal/model"
)

// absentMetric is rendered for a metric placeholder without a value.
const absentMetric = "n/a"

// placeholderPattern matches {Name} placeholders.
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z]+)\}`)

// Template is the canned text for one rule id.
type Template struct {
	RootCause      string
	Recommendation string
}

// defaultTemplates are short, practical texts for common rules.
var defaultTemplates = map[string]Template{
	"largest-contentful-paint": {
		RootCause:      "LCP is high ({LCP} ms). Likely causes: render-blocking CSS/JS, slow server, or oversized hero media.",
		Recommendation: "Inline critical CSS, defer non-critical JS, preload hero media, compress/resize hero image, use CDN caching.",
	},
	"cumulative-layout-shift": {
		RootCause:      "CLS is high ({CLS}). Page elements shift after first paint.",
		Recommendation: "Reserve fixed space for images/video (width/height or aspect-ratio), avoid injecting banners above existing content, use font-display: swap, stabilize ad slots.",
	},
	"uses-text-compression": {
		RootCause:      "Text assets are sent uncompressed.",
		Recommendation: "Enable Brotli or Gzip for HTML/CSS/JS/JSON/SVG. Confirm 'content-encoding' headers and reduced transfer size.",
	},
	"render-blocking-resources": {
		RootCause:      "Blocking CSS/JS delays first render.",
		Recommendation: "Inline critical CSS, mark non-critical JS as defer/async, split large CSS, and preload only truly critical styles.",
	},
	"unminified-css": {
		RootCause:      "CSS is shipped unminified.",
		Recommendation: "Minify CSS during build and serve the minified bundle to users.",
	},
	"unminified-javascript": {
		RootCause:      "JavaScript is shipped unminified.",
		Recommendation: "Minify or terser/uglify JS in build; avoid shipping dev/debug bundles to production.",
	},
	"uses-passive-event-listeners": {
		RootCause:      "Scroll/touch listeners block the main thread.",
		Recommendation: "Mark non-critical listeners as { passive: true } to avoid scroll jank.",
	},
	"tap-targets": {
		RootCause:      "Touch targets are too small or too close on mobile.",
		Recommendation: "Give interactive elements ~48x48 CSS px tap area with spacing. Increase padding/line-height for links and buttons.",
	},
	"image-alt": {
		RootCause:      "Images are missing alt text or have unhelpful alt text.",
		Recommendation: `Provide concise, meaningful alt for informative images. Use empty alt (alt="") for decorative images so screen readers skip them.`,
	},
	"color-contrast": {
		RootCause:      "Text/background contrast is below WCAG targets.",
		Recommendation: "Meet WCAG AA contrast: 4.5:1 for normal text, 3:1 for large text. Darken text or lighten background to raise contrast.",
	},
	"meta-description": {
		RootCause:      "Page is missing a unique meta description or it's too generic.",
		Recommendation: `Add a 50-160 character <meta name="description"> that clearly summarizes the page intent using real keywords.`,
	},
	"document-title": {
		RootCause:      "The <title> is missing or not descriptive.",
		Recommendation: "Give each page a unique, specific <title> where the main topic comes first for clarity and SEO.",
	},
	"is-on-https": {
		RootCause:      "Page is served over HTTP instead of HTTPS.",
		Recommendation: "Serve all content over HTTPS. Force redirect HTTP to HTTPS and enable HSTS to prevent downgrade.",
	},
	"uses-http2": {
		RootCause:      "Static assets are not served over HTTP/2.",
		Recommendation: "Enable HTTP/2 or HTTP/3 on your CDN/origin to get multiplexing and lower request overhead.",
	},
}

// TemplateProvider fills findings from a fixed rule id table.
type TemplateProvider struct {
	templates map[string]Template
}

// NewTemplateProvider returns a provider with the built-in table.
func NewTemplateProvider() *TemplateProvider {
	return &TemplateProvider{templates: defaultTemplates}
}

// Lookup returns the rendered text for f. Unknown rule ids yield empty
// strings.
func (p *TemplateProvider) Lookup(f *model.Finding) (rootCause, recommendation string) {
	tpl, ok := p.templates[strings.ToLower(f.RuleID)]
	if !ok {
		return "", ""
	}
	return Render(tpl.RootCause, f), Render(tpl.Recommendation, f)
}

// Apply fills blank fields of every finding it has a template for and
// returns how many findings changed.
func (p *TemplateProvider) Apply(findings []*model.Finding) int {
	filled := 0
	for _, f := range findings {
		root, rec := p.Lookup(f)
		if f.FillBlank(root, rec) {
			filled++
		}
	}
	return filled
}

// Rules returns the rule ids that have a template.
func (p *TemplateProvider) Rules() []string {
	ids := make([]string, 0, len(p.templates))
	for id := range p.templates {
		ids = append(ids, id)
	}
	return ids
}

// Render substitutes placeholders in text from f. Known placeholders are
// LCP, CLS, TTI, PageURL, RuleID and Title; anything else renders empty.
func Render(text string, f *model.Finding) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(m string) string {
		return placeholderValue(m[1:len(m)-1], f)
	})
}

func placeholderValue(name string, f *model.Finding) string {
	switch name {
	case "LCP":
		return model.FormatMetric(f.Metrics.LCP, absentMetric)
	case "CLS":
		return model.FormatMetric(f.Metrics.CLS, absentMetric)
	case "TTI":
		return model.FormatMetric(f.Metrics.TTI, absentMetric)
	case "PageURL":
		return f.PageURL
	case "RuleID":
		return f.RuleID
	case "Title":
		return f.Title
	default:
		return ""
	}
}
