// Package report writes audit results.
//
// Writers for different destinations:
//   - CSVDirWriter: urls.txt, one CSV per page and summary.csv in an output directory
//   - SimpleWriter: human-readable text for terminal display
//   - JSONWriter and FullJSONWriter: structured JSON for tool integration
//   - MarkdownWriter: Markdown with a mermaid severity chart
//
// All of them implement Writer and can be combined with MultiWriter.
package report
