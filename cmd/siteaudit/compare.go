package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/siteaudit/internal/config"
	"github.com/nao1215/siteaudit/internal/crawler"
	"github.com/nao1215/siteaudit/internal/database"
	"github.com/nao1215/siteaudit/internal/model"
)

// Constants for change direction and summary messages.
const (
	directionWorsened  = "worsened"
	directionImproved  = "improved"
	directionUnchanged = "unchanged"
	noFindingsMessage  = "No findings"
)

// Severity weights used to decide the overall direction of a comparison.
const (
	weightCritical = 100
	weightMedium   = 10
	weightLow      = 1
)

// NewCompareCmd creates the compare command.
// This command compares audit results with runs stored in the history database.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [start-url]",
		Short: "Compare audit results with earlier runs",
		Long: `Compare displays differences between the latest audit of a site and an
earlier one stored in the history database.

It shows:
- New findings that appeared since the earlier run
- Resolved findings that are no longer present
- The change in critical, medium and low counts

Findings are matched by page, rule and severity, so a finding whose
severity changed shows up as both resolved and new.

Runs are stored only when 'siteaudit scan --history' is used.

Examples:
  # Compare the latest two runs of a site
  siteaudit compare https://example.com

  # List the stored runs of a site
  siteaudit compare --list https://example.com

  # Compare with a specific run by ID
  siteaudit compare --with-run-id 0b7c... https://example.com

  # Compare with the first run since a date
  siteaudit compare --since 2025-01-01 https://example.com

  # Output the comparison as JSON
  siteaudit compare --json https://example.com

  # List all audited sites
  siteaudit compare --list-sites`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompareCmd,
	}

	// History listing flags
	cmd.Flags().BoolP("list", "l", false,
		"List the stored runs of the given site")
	cmd.Flags().BoolP("list-sites", "L", false,
		"List all sites in the history database")

	// Comparison target flags
	cmd.Flags().StringP("with-run-id", "i", "",
		"Compare with a specific run by ID (use --list to see available IDs)")
	cmd.Flags().StringP("since", "s", "",
		"Compare with the first run on or after this date (format: YYYY-MM-DD)")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output the comparison in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output the comparison in Markdown format")

	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	return cmd
}

// compareOptions are the parsed compare flags.
type compareOptions struct {
	site      string
	listSites bool
	list      bool
	withRunID string
	since     string
	json      bool
	markdown  bool
	dbDir     string
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseCompareFlags(cmd, args)
	if err != nil {
		return err
	}

	// An existing database is required; compare never creates one.
	db, err := database.Open(opts.dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return runCompare(cmd.Context(), db, opts, cmd.OutOrStdout())
}

// parseCompareFlags validates the arguments before the database is opened.
func parseCompareFlags(cmd *cobra.Command, args []string) (compareOptions, error) {
	var opts compareOptions
	flags := cmd.Flags()

	var err error
	if opts.listSites, err = flags.GetBool("list-sites"); err != nil {
		return opts, err
	}
	if opts.list, err = flags.GetBool("list"); err != nil {
		return opts, err
	}
	if opts.withRunID, err = flags.GetString("with-run-id"); err != nil {
		return opts, err
	}
	if opts.since, err = flags.GetString("since"); err != nil {
		return opts, err
	}
	if opts.json, err = flags.GetBool("json"); err != nil {
		return opts, err
	}
	if opts.markdown, err = flags.GetBool("markdown"); err != nil {
		return opts, err
	}
	if opts.dbDir, err = flags.GetString("db-dir"); err != nil {
		return opts, err
	}
	if opts.dbDir == "" {
		opts.dbDir = config.XDGDataDir()
	}

	if opts.json && opts.markdown {
		return opts, config.ErrConflictingReportFormats
	}
	if opts.withRunID != "" && opts.since != "" {
		return opts, errors.New("--with-run-id and --since cannot be used together")
	}

	if opts.listSites {
		return opts, nil
	}
	if len(args) == 0 {
		return opts, errors.New("start URL is required (use --list-sites to see audited sites)")
	}
	opts.site, err = crawler.NormalizeURL(crawler.EnsureScheme(args[0]))
	if err != nil {
		return opts, fmt.Errorf("invalid start URL: %w", err)
	}
	return opts, nil
}

// runCompare dispatches to listing or comparison.
func runCompare(ctx context.Context, db *database.AuditDB, opts compareOptions, out io.Writer) error {
	switch {
	case opts.listSites:
		return listAuditedSites(ctx, db, out)
	case opts.list:
		return listAuditHistory(ctx, db, opts.site, out)
	}

	result, err := runComparison(ctx, db, opts.site, opts.withRunID, opts.since)
	if err != nil {
		return err
	}

	switch {
	case opts.json:
		return outputComparisonJSON(out, result)
	case opts.markdown:
		return outputComparisonMarkdown(out, result)
	default:
		outputComparisonText(out, result)
		return nil
	}
}

// listAuditedSites lists every site that has runs in the database.
func listAuditedSites(ctx context.Context, db *database.AuditDB, out io.Writer) error {
	sites, err := db.ListAuditedSites(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sites: %w", err)
	}

	if len(sites) == 0 {
		fmt.Fprintln(out, "No audited sites found in the database.")
		fmt.Fprintln(out, "\nUse 'siteaudit scan --history <url>' to record a run.")
		return nil
	}

	fmt.Fprintf(out, "Audited sites (%d):\n\n", len(sites))
	for _, site := range sites {
		fmt.Fprintf(out, "  • %s\n", site)
	}
	fmt.Fprintln(out, "\nUse 'siteaudit compare --list <url>' to see the runs of a site.")

	return nil
}

// listAuditHistory lists the runs of one site, newest first.
func listAuditHistory(ctx context.Context, db *database.AuditDB, site string, out io.Writer) error {
	runs, err := db.GetAuditHistoryWithMetadata(ctx, site)
	if err != nil {
		return fmt.Errorf("failed to get audit history: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintf(out, "No audit history found for %s\n", site)
		fmt.Fprintln(out, "\nUse 'siteaudit scan --history' to record a run.")
		return nil
	}

	fmt.Fprintf(out, "Audit history for %s (%d runs):\n\n", site, len(runs))
	fmt.Fprintf(out, "  %-36s  %-19s  %-7s  %-5s  %s\n", "ID", "Date", "Device", "Pages", "Findings")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 90))

	for _, run := range runs {
		summary := formatCounts(run.Counts)
		if run.TimedOut {
			summary += " (timed out)"
		}
		fmt.Fprintf(out, "  %-36s  %-19s  %-7s  %-5d  %s\n",
			run.ID,
			run.Timestamp.Local().Format("2006-01-02 15:04:05"),
			run.Device,
			run.PageCount,
			summary,
		)
	}

	fmt.Fprintln(out, "\nUse 'siteaudit compare <url>' to compare the latest two runs.")
	fmt.Fprintln(out, "Use 'siteaudit compare --with-run-id <id> <url>' to compare with a specific run.")

	return nil
}

// formatCounts formats severity counts as "C:1 M:2 L:3".
func formatCounts(c model.SeverityCounts) string {
	var parts []string
	for _, sev := range model.AllSeverities() {
		if n := c.Get(sev); n > 0 {
			parts = append(parts, sev.Label()[:1]+":"+strconv.Itoa(n))
		}
	}
	if len(parts) == 0 {
		return noFindingsMessage
	}
	return strings.Join(parts, " ")
}

// runComparison picks the two runs to compare and compares them.
// The latest run is always the current one.
func runComparison(ctx context.Context, db *database.AuditDB, site, withRunID, sinceDate string) (*ComparisonResult, error) {
	reports, err := db.GetAuditHistory(ctx, site)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit history: %w", err)
	}

	if len(reports) == 0 {
		return nil, fmt.Errorf("no audit history found for %s", site)
	}

	current := reports[0]
	var previous *model.AuditReport

	switch {
	case withRunID != "":
		previous, err = db.GetAuditReportByID(ctx, withRunID)
		if err != nil {
			return nil, fmt.Errorf("failed to get run %s: %w", withRunID, err)
		}
		if previous == nil {
			return nil, fmt.Errorf("run %s not found", withRunID)
		}
		if previous.StartURL != site {
			return nil, fmt.Errorf("run %s belongs to %s, not %s", withRunID, previous.StartURL, site)
		}
		if previous.ID == current.ID {
			return nil, fmt.Errorf("run %s is the latest run; choose an earlier one", withRunID)
		}
	case sinceDate != "":
		since, err := time.ParseInLocation("2006-01-02", sinceDate, time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}

		// Reports are newest first, so walk backwards to find the oldest match.
		for i := len(reports) - 1; i >= 0; i-- {
			if !reports[i].DateScanned.Before(since) {
				previous = reports[i]
				break
			}
		}
		if previous == nil {
			return nil, fmt.Errorf("no runs found since %s", sinceDate)
		}
		if previous == current {
			return nil, fmt.Errorf("only one run found since %s; at least 2 runs are required for comparison", sinceDate)
		}
	default:
		if len(reports) < 2 {
			return nil, fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(reports))
		}
		previous = reports[1]
	}

	result := compareReports(previous, current)

	previousPages, err := db.GetCrawledPages(ctx, previous.ID)
	if err != nil {
		return nil, err
	}
	currentPages, err := db.GetCrawledPages(ctx, current.ID)
	if err != nil {
		return nil, err
	}
	result.NewPages, result.MissingPages = diffPages(previousPages, currentPages)

	return result, nil
}

// diffPages returns the URLs crawled only in current and only in previous.
func diffPages(previous, current []*model.Page) (added, removed []string) {
	inPrevious := make(map[string]bool, len(previous))
	for _, p := range previous {
		inPrevious[p.URL] = true
	}
	inCurrent := make(map[string]bool, len(current))
	for _, p := range current {
		inCurrent[p.URL] = true
		if !inPrevious[p.URL] {
			added = append(added, p.URL)
		}
	}
	for _, p := range previous {
		if !inCurrent[p.URL] {
			removed = append(removed, p.URL)
		}
	}
	return added, removed
}

// ComparisonResult holds the result of comparing two audit runs.
type ComparisonResult struct {
	// Site is the audited start URL.
	Site string `json:"site"`

	// PreviousRun describes the earlier run.
	PreviousRun RunMetadata `json:"previous_run"`

	// CurrentRun describes the latest run.
	CurrentRun RunMetadata `json:"current_run"`

	// NewFindings are in the current run but not the previous one.
	NewFindings []*model.Finding `json:"new_findings,omitempty"`

	// ResolvedFindings are in the previous run but not the current one.
	ResolvedFindings []*model.Finding `json:"resolved_findings,omitempty"`

	// NewPages were crawled in the current run only.
	NewPages []string `json:"new_pages,omitempty"`

	// MissingPages were crawled in the previous run only.
	MissingPages []string `json:"missing_pages,omitempty"`

	// UnchangedCount is the number of findings present in both runs.
	UnchangedCount int `json:"unchanged_count"`

	// Change is the per-severity delta and overall direction.
	Change SeverityChange `json:"change"`
}

// RunMetadata summarizes one run for comparison display.
type RunMetadata struct {
	ID            string               `json:"id"`
	DateScanned   time.Time            `json:"date_scanned"`
	Pages         int                  `json:"pages"`
	Counts        model.SeverityCounts `json:"counts"`
	TotalFindings int                  `json:"total_findings"`
	TimedOut      bool                 `json:"timed_out"`
}

// SeverityChange describes how the finding counts moved between runs.
type SeverityChange struct {
	// Direction is "improved", "worsened", or "unchanged".
	Direction string `json:"direction"`

	CriticalDelta int `json:"critical_delta"`
	MediumDelta   int `json:"medium_delta"`
	LowDelta      int `json:"low_delta"`
}

// newRunMetadata extracts the comparison metadata of a run.
func newRunMetadata(r *model.AuditReport) RunMetadata {
	counts := r.Totals()
	return RunMetadata{
		ID:            r.ID,
		DateScanned:   r.DateScanned,
		Pages:         len(r.Pages),
		Counts:        counts,
		TotalFindings: counts.Total(),
		TimedOut:      r.TimedOut,
	}
}

// compareReports compares two runs. New and resolved findings keep the
// page order of the run they come from.
func compareReports(previous, current *model.AuditReport) *ComparisonResult {
	result := &ComparisonResult{
		Site:        current.StartURL,
		PreviousRun: newRunMetadata(previous),
		CurrentRun:  newRunMetadata(current),
	}

	previousKeys := findingKeys(previous)
	currentKeys := findingKeys(current)

	seen := make(map[string]bool)
	for _, f := range current.Findings() {
		key := findingKey(f)
		if seen[key] {
			continue
		}
		seen[key] = true
		if previousKeys[key] {
			result.UnchangedCount++
		} else {
			result.NewFindings = append(result.NewFindings, f)
		}
	}

	clear(seen)
	for _, f := range previous.Findings() {
		key := findingKey(f)
		if seen[key] || currentKeys[key] {
			continue
		}
		seen[key] = true
		result.ResolvedFindings = append(result.ResolvedFindings, f)
	}

	result.Change = calculateChange(result.PreviousRun.Counts, result.CurrentRun.Counts)
	return result
}

// findingKeys returns the set of finding keys of a run.
func findingKeys(r *model.AuditReport) map[string]bool {
	keys := make(map[string]bool)
	for _, f := range r.Findings() {
		keys[findingKey(f)] = true
	}
	return keys
}

// findingKey identifies a finding across runs: page, rule and severity.
func findingKey(f *model.Finding) string {
	return f.PageURL + "|" + f.RuleID + "|" + f.Severity.String()
}

// calculateChange computes the deltas and the weighted direction.
func calculateChange(previous, current model.SeverityCounts) SeverityChange {
	change := SeverityChange{
		CriticalDelta: current.Critical - previous.Critical,
		MediumDelta:   current.Medium - previous.Medium,
		LowDelta:      current.Low - previous.Low,
	}

	previousScore := weightedScore(previous)
	currentScore := weightedScore(current)

	switch {
	case currentScore < previousScore:
		change.Direction = directionImproved
	case currentScore > previousScore:
		change.Direction = directionWorsened
	default:
		change.Direction = directionUnchanged
	}

	return change
}

func weightedScore(c model.SeverityCounts) int {
	return c.Critical*weightCritical + c.Medium*weightMedium + c.Low*weightLow
}

// outputComparisonJSON outputs the comparison result in JSON format.
func outputComparisonJSON(out io.Writer, result *ComparisonResult) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// outputComparisonMarkdown outputs the comparison result in Markdown format.
func outputComparisonMarkdown(out io.Writer, result *ComparisonResult) error {
	md := markdown.NewMarkdown(out)
	prev, cur := result.PreviousRun, result.CurrentRun

	md.H1("Audit Comparison: " + result.Site)
	md.PlainText("")

	switch result.Change.Direction {
	case directionWorsened:
		md.Warningf("%s", formatDirection(result.Change.Direction))
	case directionImproved:
		md.Tip(formatDirection(result.Change.Direction))
	default:
		md.Note(formatDirection(result.Change.Direction))
	}
	md.PlainText("")

	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows: [][]string{
			{"Run", "`" + prev.ID + "`", "`" + cur.ID + "`", "-"},
			{"Date", prev.DateScanned.Format("2006-01-02 15:04"), cur.DateScanned.Format("2006-01-02 15:04"), "-"},
			{"Pages", strconv.Itoa(prev.Pages), strconv.Itoa(cur.Pages), formatDelta(cur.Pages - prev.Pages)},
			{"Critical", strconv.Itoa(prev.Counts.Critical), strconv.Itoa(cur.Counts.Critical), formatDelta(result.Change.CriticalDelta)},
			{"Medium", strconv.Itoa(prev.Counts.Medium), strconv.Itoa(cur.Counts.Medium), formatDelta(result.Change.MediumDelta)},
			{"Low", strconv.Itoa(prev.Counts.Low), strconv.Itoa(cur.Counts.Low), formatDelta(result.Change.LowDelta)},
			{
				"**Total**",
				"**" + strconv.Itoa(prev.TotalFindings) + "**",
				"**" + strconv.Itoa(cur.TotalFindings) + "**",
				"**" + formatDelta(cur.TotalFindings-prev.TotalFindings) + "**",
			},
		},
	})
	md.PlainText("")

	if len(result.NewFindings) > 0 {
		md.H2(fmt.Sprintf("New Findings (%d)", len(result.NewFindings)))
		md.PlainText("")
		items := make([]string, len(result.NewFindings))
		for i, f := range result.NewFindings {
			items[i] = fmt.Sprintf("**[%s]** `%s` %s (%s)", f.Severity.Label(), f.RuleID, f.Title, f.PageURL)
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	if len(result.ResolvedFindings) > 0 {
		md.H2(fmt.Sprintf("Resolved Findings (%d)", len(result.ResolvedFindings)))
		md.PlainText("")
		items := make([]string, len(result.ResolvedFindings))
		for i, f := range result.ResolvedFindings {
			items[i] = fmt.Sprintf("~~**[%s]** `%s` %s (%s)~~", f.Severity.Label(), f.RuleID, f.Title, f.PageURL)
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	if len(result.NewPages) > 0 || len(result.MissingPages) > 0 {
		md.H2("Crawled Pages")
		md.PlainText("")
		items := make([]string, 0, len(result.NewPages)+len(result.MissingPages))
		for _, p := range result.NewPages {
			items = append(items, "added: "+p)
		}
		for _, p := range result.MissingPages {
			items = append(items, "missing: "+p)
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	if result.UnchangedCount > 0 {
		md.HorizontalRule()
		md.PlainText("")
		md.PlainTextf("*%d findings unchanged*", result.UnchangedCount)
	}

	return md.Build()
}

// outputComparisonText outputs the comparison result in human-readable text format.
func outputComparisonText(out io.Writer, result *ComparisonResult) {
	prev, cur := result.PreviousRun, result.CurrentRun

	fmt.Fprintf(out, "Audit Comparison: %s\n", result.Site)
	fmt.Fprintln(out, strings.Repeat("=", 60))

	fmt.Fprintf(out, "\nStatus: %s\n", formatDirection(result.Change.Direction))

	fmt.Fprintf(out, "\nPrevious run: %s  %s  (%d pages)\n", prev.DateScanned.Format("2006-01-02 15:04:05"), prev.ID, prev.Pages)
	fmt.Fprintf(out, "Current run:  %s  %s  (%d pages)\n", cur.DateScanned.Format("2006-01-02 15:04:05"), cur.ID, cur.Pages)

	row := func(label string, p, c int, delta string) {
		fmt.Fprintf(out, "  %-10s  %-10d  %-10d  %-10s\n", label, p, c, delta)
	}

	fmt.Fprintln(out, "\nFindings Summary:")
	fmt.Fprintf(out, "  %-10s  %-10s  %-10s  %-10s\n", "Severity", "Previous", "Current", "Change")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 45))
	row("Critical", prev.Counts.Critical, cur.Counts.Critical, formatDelta(result.Change.CriticalDelta))
	row("Medium", prev.Counts.Medium, cur.Counts.Medium, formatDelta(result.Change.MediumDelta))
	row("Low", prev.Counts.Low, cur.Counts.Low, formatDelta(result.Change.LowDelta))
	fmt.Fprintln(out, "  "+strings.Repeat("-", 45))
	row("Total", prev.TotalFindings, cur.TotalFindings, formatDelta(cur.TotalFindings-prev.TotalFindings))

	if len(result.NewFindings) > 0 {
		fmt.Fprintf(out, "\nNew Findings (%d):\n", len(result.NewFindings))
		for _, f := range result.NewFindings {
			fmt.Fprintf(out, "  [+] [%s] %s: %s\n", f.Severity.Label(), f.RuleID, f.Title)
			fmt.Fprintf(out, "      Page: %s\n", f.PageURL)
		}
	}

	if len(result.ResolvedFindings) > 0 {
		fmt.Fprintf(out, "\nResolved Findings (%d):\n", len(result.ResolvedFindings))
		for _, f := range result.ResolvedFindings {
			fmt.Fprintf(out, "  [-] [%s] %s: %s\n", f.Severity.Label(), f.RuleID, f.Title)
			fmt.Fprintf(out, "      Page: %s\n", f.PageURL)
		}
	}

	if len(result.NewPages) > 0 || len(result.MissingPages) > 0 {
		fmt.Fprintln(out, "\nCrawled Pages:")
		for _, p := range result.NewPages {
			fmt.Fprintf(out, "  [+] %s\n", p)
		}
		for _, p := range result.MissingPages {
			fmt.Fprintf(out, "  [-] %s\n", p)
		}
	}

	if result.UnchangedCount > 0 {
		fmt.Fprintf(out, "\nUnchanged: %d findings\n", result.UnchangedCount)
	}
}

// formatDirection formats the change direction for display.
func formatDirection(direction string) string {
	switch direction {
	case directionImproved:
		return "IMPROVED (fewer or less severe findings)"
	case directionWorsened:
		return "WORSENED (more or more severe findings)"
	default:
		return "UNCHANGED"
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}
