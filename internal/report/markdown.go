package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/siteaudit/internal/model"
)

// MarkdownWriter outputs reports in Markdown format for sharing in
// issues, pull requests and wikis.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the full report in Markdown format.
func (w *MarkdownWriter) Write(report *model.AuditReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writePages(md, report)
	w.writeFindings(md, report)
	w.writeEnrichment(md, report)
	w.writeSkipped(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.AuditReport) {
	md.H1("Site Audit Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Site", "`" + report.StartURL + "`"},
			{"Run ID", "`" + report.ID + "`"},
			{"Device", orDash(report.Device)},
			{"Scan Date", report.DateScanned.Format("2006-01-02 15:04:05 MST")},
			{"Pages Crawled", strconv.Itoa(len(report.Pages))},
			{"Pages With Findings", strconv.Itoa(len(report.PageReports))},
			{"Status", w.getStatusText(report)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *model.AuditReport) string {
	if report.TimedOut {
		return "⚠️ Timed Out (partial results)"
	}
	if report.ErrorMessage != "" {
		return "❌ Error - " + report.ErrorMessage
	}
	return "✅ Complete"
}

// writeSummary writes the severity summary section.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.AuditReport) {
	totals := report.Totals()

	md.H2("Severity Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Severity", "Count"},
		Rows: [][]string{
			{"🔴 Critical", strconv.Itoa(totals.Critical)},
			{"🟡 Medium", strconv.Itoa(totals.Medium)},
			{"🔵 Low", strconv.Itoa(totals.Low)},
			{"**Total**", "**" + strconv.Itoa(totals.Total()) + "**"},
		},
	})
	md.PlainText("")

	if totals.Total() > 0 {
		w.writePieChart(md, totals)
	}

	w.writeAlert(md, totals)
}

// writePieChart writes a mermaid pie chart for severity distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, totals model.SeverityCounts) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Finding Severity Distribution"),
		piechart.WithShowData(true),
	)

	for _, s := range []model.Severity{model.SeverityCritical, model.SeverityMedium, model.SeverityLow} {
		if n := totals.Get(s); n > 0 {
			chart.LabelAndIntValue(s.Label(), uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert matching the worst severity present.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, totals model.SeverityCounts) {
	switch {
	case totals.Critical > 0:
		md.Cautionf("%d critical finding(s) should be fixed first.", totals.Critical)
	case totals.Medium > 0:
		md.Importantf("%d medium finding(s) affect performance, accessibility or SEO.", totals.Medium)
	case totals.Total() > 0:
		md.Note("Only low severity findings detected.")
	default:
		md.Tip("No failing audits detected.")
	}
	md.PlainText("")
}

// writePages writes one summary row per page.
func (w *MarkdownWriter) writePages(md *markdown.Markdown, report *model.AuditReport) {
	md.H2("Pages")
	md.PlainText("")

	if len(report.PageReports) == 0 {
		md.PlainText("No page produced findings.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(report.PageReports))
	for _, pr := range report.PageReports {
		s := pr.Summary
		rows = append(rows, []string{
			pr.URL,
			strconv.Itoa(s.Counts.Critical),
			strconv.Itoa(s.Counts.Medium),
			strconv.Itoa(s.Counts.Low),
			model.FormatMetric(s.AvgLCP, "-"),
			model.FormatMetric(s.AvgCLS, "-"),
			model.FormatMetric(s.AvgTTI, "-"),
		})
	}

	md.Table(markdown.TableSet{
		Header: summaryHeader,
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFindings writes a findings table for each page.
func (w *MarkdownWriter) writeFindings(md *markdown.Markdown, report *model.AuditReport) {
	if !report.HasFindings() {
		return
	}

	md.H2("Findings")
	md.PlainText("")

	for _, pr := range report.PageReports {
		md.H3(pr.URL)
		md.PlainText("")
		w.writeFindingsTable(md, pr.Findings)
	}
}

// writeFindingsTable writes a table of findings with root cause details.
func (w *MarkdownWriter) writeFindingsTable(md *markdown.Markdown, findings []*model.Finding) {
	rows := make([][]string, len(findings))
	for i, f := range findings {
		rows[i] = []string{
			f.Severity.Label(),
			"`" + f.RuleID + "`",
			truncateString(f.Title, 60),
			truncateString(orDash(f.Recommendation), 80),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Severity", "Rule", "Title", "Recommendation"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, f := range findings {
		if f.RootCause != "" {
			md.Details(f.RuleID, f.RootCause)
		}
	}
	md.PlainText("")
}

// writeEnrichment writes what the enrichment engine did.
func (w *MarkdownWriter) writeEnrichment(md *markdown.Markdown, report *model.AuditReport) {
	e := report.Enrichment

	md.H2("Enrichment")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Step", "Count"},
		Rows: [][]string{
			{"Template fills", strconv.Itoa(e.TemplateFilled)},
			{"Remote candidates", strconv.Itoa(e.Candidates)},
			{"Cache hits", strconv.Itoa(e.CacheHits)},
			{"Remote calls", strconv.Itoa(e.RemoteCalls)},
			{"Remote failures", strconv.Itoa(e.RemoteFailures)},
			{"Broadcasts", strconv.Itoa(e.Broadcasts)},
			{"Skipped", strconv.Itoa(e.Skipped)},
		},
	})
	md.PlainText("")
}

// writeSkipped lists pages without an audit document.
func (w *MarkdownWriter) writeSkipped(md *markdown.Markdown, report *model.AuditReport) {
	if len(report.SkippedPages) == 0 {
		return
	}

	md.H2("Skipped Pages")
	md.PlainText("")
	md.BulletList(report.SkippedPages...)
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [siteaudit](https://github.com/nao1215/siteaudit)*")
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
