// Package database provides SQLite-based audit history for siteaudit.
//
// AuditDB stores:
//   - Audit runs keyed by run id, with the full report as JSON
//   - Severity totals per run for listing history without decoding reports
//   - The pages each run crawled
//
// The database is a single file opened through modernc.org/sqlite, so the
// binary stays CGO-free.
package database
