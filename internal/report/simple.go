package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/siteaudit/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no findings are shown.
	showEmpty bool

	// verbose lists every finding instead of per-page counts only.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with every finding listed.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.AuditReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	w.writePages(&sb, report)
	w.writeSkipped(&sb, report)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.AuditReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        SITE AUDIT REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Site:           %s\n", report.StartURL)
	fmt.Fprintf(sb, "Device:         %s\n", orDash(report.Device))
	fmt.Fprintf(sb, "Scan Date:      %s\n", report.DateScanned.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Pages Crawled:  %d\n", len(report.Pages))
	fmt.Fprintf(sb, "Status:         %s\n", statusText(report))
	sb.WriteString("\n")
}

// writeSummary writes the severity summary section.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.AuditReport) {
	totals := report.Totals()

	writeSection(sb, "SEVERITY SUMMARY")
	fmt.Fprintf(sb, "  CRITICAL: %d\n", totals.Critical)
	fmt.Fprintf(sb, "  MEDIUM:   %d\n", totals.Medium)
	fmt.Fprintf(sb, "  LOW:      %d\n", totals.Low)
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  TOTAL:    %d findings\n", totals.Total())
	sb.WriteString("\n")

	e := report.Enrichment
	if e.TemplateFilled+e.Candidates > 0 {
		fmt.Fprintf(sb, "  Enrichment: %d template, %d remote calls, %d cache hits, %d failed\n",
			e.TemplateFilled, e.RemoteCalls, e.CacheHits, e.RemoteFailures)
		sb.WriteString("\n")
	}
}

// writePages writes per-page counts and, when verbose, each finding.
func (w *SimpleWriter) writePages(sb *strings.Builder, report *model.AuditReport) {
	if len(report.PageReports) == 0 && !w.showEmpty {
		return
	}

	writeSection(sb, "PAGES")
	if len(report.PageReports) == 0 {
		sb.WriteString("  No findings\n\n")
		return
	}

	for _, pr := range report.PageReports {
		c := pr.Summary.Counts
		fmt.Fprintf(sb, "  %s\n", pr.URL)
		fmt.Fprintf(sb, "    critical=%d medium=%d low=%d  LCP=%s CLS=%s TTI=%s\n",
			c.Critical, c.Medium, c.Low,
			model.FormatMetric(pr.Summary.AvgLCP, "n/a"),
			model.FormatMetric(pr.Summary.AvgCLS, "n/a"),
			model.FormatMetric(pr.Summary.AvgTTI, "n/a"),
		)
		if w.verbose {
			for _, f := range pr.Findings {
				fmt.Fprintf(sb, "    [%s] %s: %s\n", severityIndicator(f.Severity), f.RuleID, f.Title)
				if f.Recommendation != "" {
					fmt.Fprintf(sb, "        Fix: %s\n", f.Recommendation)
				}
			}
		}
	}
	sb.WriteString("\n")
}

// writeSkipped lists pages that produced no audit document.
func (w *SimpleWriter) writeSkipped(sb *strings.Builder, report *model.AuditReport) {
	if len(report.SkippedPages) == 0 {
		return
	}

	writeSection(sb, "SKIPPED PAGES")
	for _, p := range report.SkippedPages {
		fmt.Fprintf(sb, "  [-] %s\n", p)
	}
	sb.WriteString("\n")
}

// severityIndicator returns a visual indicator for the severity level.
func severityIndicator(severity model.Severity) string {
	switch severity {
	case model.SeverityCritical:
		return "!!!"
	case model.SeverityMedium:
		return "!"
	default:
		return "-"
	}
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by siteaudit\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}
