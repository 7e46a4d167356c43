package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/nao1215/siteaudit/internal/model"
)

const (
	// maxSheetName matches the spreadsheet sheet-name limit.
	maxSheetName = 31

	// pagesDir holds one CSV per page inside the output directory.
	pagesDir = "pages"
)

// findingHeader is the column order of every per-page CSV.
var findingHeader = []string{
	"Page URL", "Category", "Rule ID", "Title", "Example",
	"LCP", "CLS", "TTI", "LH Score", "Severity",
	"Root Cause", "Recommendation",
}

// summaryHeader is the column order of summary.csv.
var summaryHeader = []string{"Page", "Critical", "Medium", "Low", "Avg LCP", "Avg CLS", "Avg TTI"}

var nonSheetChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// SheetName derives the per-page file stem from a page URL: the scheme is
// dropped, every other non-word character becomes "_" and the result is
// capped at 31 characters. An empty result becomes "home".
func SheetName(pageURL string) string {
	if _, rest, ok := strings.Cut(pageURL, "://"); ok {
		pageURL = rest
	}
	name := nonSheetChars.ReplaceAllString(pageURL, "_")
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	if name == "" {
		return "home"
	}
	return name
}

// CSVDirWriter writes the tabular outputs of a run into a directory:
// urls.txt, pages/<sheet>.csv and summary.csv.
type CSVDirWriter struct {
	// dir is the output directory.
	dir string
}

// NewCSVDirWriter creates a writer rooted at dir.
func NewCSVDirWriter(dir string) *CSVDirWriter {
	return &CSVDirWriter{dir: dir}
}

// Write writes every output file of report and returns the number of
// files written.
func (w *CSVDirWriter) Write(report *model.AuditReport) (int, error) {
	if err := os.MkdirAll(filepath.Join(w.dir, pagesDir), 0750); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	written := 0
	if err := w.writeURLs(report); err != nil {
		return written, err
	}
	written++

	used := make(map[string]int, len(report.PageReports))
	for _, pr := range report.PageReports {
		name := uniqueSheetName(SheetName(pr.URL), used)
		if err := w.writePage(name, pr); err != nil {
			return written, err
		}
		written++
	}

	if err := w.writeSummary(report); err != nil {
		return written, err
	}
	written++

	return written, nil
}

// writeURLs writes the crawled page URLs, one per line.
func (w *CSVDirWriter) writeURLs(report *model.AuditReport) error {
	urls := make([]string, 0, len(report.Pages))
	for _, p := range report.Pages {
		urls = append(urls, p.URL)
	}
	path := filepath.Join(w.dir, "urls.txt")
	if err := os.WriteFile(path, []byte(strings.Join(urls, "\n")), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// writePage writes one row per finding of a page.
func (w *CSVDirWriter) writePage(name string, pr *model.PageReport) error {
	rows := make([][]string, 0, len(pr.Findings)+1)
	rows = append(rows, findingHeader)
	for _, f := range pr.Findings {
		rows = append(rows, FindingRow(f))
	}
	return writeCSV(filepath.Join(w.dir, pagesDir, name+".csv"), rows)
}

// writeSummary writes one row per page.
func (w *CSVDirWriter) writeSummary(report *model.AuditReport) error {
	rows := make([][]string, 0, len(report.PageReports)+1)
	rows = append(rows, summaryHeader)
	for _, pr := range report.PageReports {
		rows = append(rows, SummaryRow(pr.Summary))
	}
	return writeCSV(filepath.Join(w.dir, "summary.csv"), rows)
}

// FindingRow renders a finding in findingHeader order. Absent values are
// empty cells.
func FindingRow(f *model.Finding) []string {
	return []string{
		f.PageURL,
		f.Category,
		f.RuleID,
		f.Title,
		f.Example,
		model.FormatMetric(f.Metrics.LCP, ""),
		model.FormatMetric(f.Metrics.CLS, ""),
		model.FormatMetric(f.Metrics.TTI, ""),
		model.FormatMetric(f.RawScore, ""),
		f.Severity.String(),
		f.RootCause,
		f.Recommendation,
	}
}

// SummaryRow renders a page summary in summaryHeader order.
func SummaryRow(s model.PageSummary) []string {
	return []string{
		s.Page,
		strconv.Itoa(s.Counts.Critical),
		strconv.Itoa(s.Counts.Medium),
		strconv.Itoa(s.Counts.Low),
		model.FormatMetric(s.AvgLCP, ""),
		model.FormatMetric(s.AvgCLS, ""),
		model.FormatMetric(s.AvgTTI, ""),
	}
}

// uniqueSheetName suffixes repeated names with _2, _3 and so on while
// staying within the sheet-name limit.
func uniqueSheetName(name string, used map[string]int) string {
	used[name]++
	n := used[name]
	if n == 1 {
		return name
	}
	for {
		suffix := "_" + strconv.Itoa(n)
		base := name
		if len(base)+len(suffix) > maxSheetName {
			base = base[:maxSheetName-len(suffix)]
		}
		candidate := base + suffix
		if _, taken := used[candidate]; !taken {
			used[candidate] = 1
			return candidate
		}
		n++
	}
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	cw := csv.NewWriter(f)
	if err := cw.WriteAll(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
