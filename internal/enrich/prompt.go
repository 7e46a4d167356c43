package enrich

import (
	"fmt"
	"strings"

	"github.com/nao1215/siteaudit/internal/model"
)

// clipSuffix marks clipped prompt fields.
const clipSuffix = " …"

// Prompt field limits, in characters.
const (
	clipPage     = 200
	clipCategory = 120
	clipRule     = 120
	clipTitle    = 220
	clipExample  = 400
	clipSeverity = 40
)

// jsonKeysHint names the expected answer shape.
const jsonKeysHint = `{"root_cause":"...","recommendation":"..."}`

// systemPolicy steers the model toward correct guidance for the rules
// it most often gets wrong.
const systemPolicy = "You output ONLY compact JSON like " + jsonKeysHint + " " +
	"No prose before or after. No code blocks. No ```.\n" +
	"\n" +
	"Guidance for correctness:\n" +
	"- LCP: Say that LCP above ~2.5 seconds on mobile hurts perceived load speed. " +
	"Causes: large hero image, render-blocking CSS/JS, slow server response. " +
	"Fixes: compress/resize hero image, inline critical CSS, defer non-critical JS, use caching/CDN. " +
	"Do not tell them to 'use a faster network connection'. Do not claim WCAG sets an exact LCP time limit.\n" +
	"- CLS: Say layout shifts because elements load without reserved space. " +
	"Fixes: reserve width/height or aspect-ratio boxes for images/ads/embeds, avoid injecting banners above existing content. " +
	"Do NOT frame CLS as an accessibility/visual impairment issue.\n" +
	"- Color contrast: Refer to WCAG 2.1 AA Success Criterion 1.4.3 Contrast (Minimum). " +
	"Say text should have at least 4.5:1 contrast for normal text, 3:1 for large text. " +
	"Do NOT invent fake WCAG section numbers like '4.5.3' or '1.4.3.3'.\n" +
	`- Alt text: If missing alt, say 'Add meaningful alt text for informative images, and empty alt (alt="") for decorative images.'` + "\n" +
	"- Keep it practical, not legal.\n"

// schemaSuffix ends the user message of the structured attempt.
const schemaSuffix = "\nRespond ONLY as one JSON object with keys " + jsonKeysHint

// plainSuffix ends the user message of the plain-text attempt.
const plainSuffix = "\nRespond ONLY as one JSON object with keys " + jsonKeysHint + " " +
	"Do not include backticks. Do not include code fences. Do not explain yourself."

// Clip shortens s to at most n characters, marking the cut with " …".
func Clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + clipSuffix
}

// BuildPrompt describes one finding for the model.
func BuildPrompt(f *model.Finding) string {
	var b strings.Builder
	b.WriteString("You are a senior web performance & accessibility engineer.\n")
	b.WriteString("Given one Lighthouse finding, return ONLY JSON with keys " + jsonKeysHint + ".\n")
	b.WriteString("Be specific, reference WCAG 2.1 AA correctly when relevant, ")
	b.WriteString("and do not invent fake metrics or section numbers.\n\n")
	b.WriteString("Finding:\n")
	fmt.Fprintf(&b, "page_url: %s\n", Clip(f.PageURL, clipPage))
	fmt.Fprintf(&b, "category: %s\n", Clip(f.Category, clipCategory))
	fmt.Fprintf(&b, "rule_id: %s\n", Clip(f.RuleID, clipRule))
	fmt.Fprintf(&b, "title: %s\n", Clip(f.Title, clipTitle))
	fmt.Fprintf(&b, "example: %s\n", Clip(f.Example, clipExample))
	fmt.Fprintf(&b, "severity: %s\n", Clip(f.Severity.String(), clipSeverity))
	fmt.Fprintf(&b, "LCP: %s | CLS: %s | TTI: %s\n",
		model.FormatMetric(f.Metrics.LCP, absentMetric),
		model.FormatMetric(f.Metrics.CLS, absentMetric),
		model.FormatMetric(f.Metrics.TTI, absentMetric),
	)
	return b.String()
}
