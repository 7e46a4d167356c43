package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/siteaudit/internal/model"
)

// dbFileName is the history database file inside the data directory.
const dbFileName = "siteaudit.db"

// timestampLayout is the fixed-width UTC layout used for stored run times.
// Fixed width keeps ORDER BY timestamp chronological.
const timestampLayout = "2006-01-02 15:04:05.000000"

// AuditDB stores audit runs and the pages they crawled.
type AuditDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures AuditDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates an AuditDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*AuditDB, error) {
	dbPath := filepath.Join(dbDir, dbFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (run a scan first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	adb := &AuditDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := adb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return adb, nil
}

// Close closes the database connection.
func (adb *AuditDB) Close() error {
	return adb.db.Close()
}

// Path returns the database file path.
func (adb *AuditDB) Path() string {
	return adb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (adb *AuditDB) createTables() error {
	schema := `
	-- Audit runs store complete site reports as JSON
	CREATE TABLE IF NOT EXISTS audit_runs (
		id TEXT PRIMARY KEY,
		site TEXT NOT NULL,
		device TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		critical INTEGER NOT NULL DEFAULT 0,
		medium INTEGER NOT NULL DEFAULT 0,
		low INTEGER NOT NULL DEFAULT 0,
		timed_out INTEGER NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_site ON audit_runs(site);
	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON audit_runs(timestamp);

	-- Crawled pages record what the crawler accepted in each run
	CREATE TABLE IF NOT EXISTS crawled_pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		status_code INTEGER,
		content_type TEXT,
		title TEXT,
		fetched_at TEXT,
		UNIQUE(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_run ON crawled_pages(run_id);
	`

	_, err := adb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveAuditReport stores a run and its crawled pages in one transaction.
// Saving the same run id twice replaces the earlier row.
func (adb *AuditDB) SaveAuditReport(ctx context.Context, report *model.AuditReport) (err error) {
	if report == nil {
		return errors.New("report is nil")
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	tx, err := adb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	totals := report.Totals()
	_, err = tx.ExecContext(ctx, `
	INSERT OR REPLACE INTO audit_runs (id, site, device, timestamp, critical, medium, low, timed_out, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.ID,
		report.StartURL,
		report.Device,
		report.DateScanned.UTC().Format(timestampLayout),
		totals.Critical,
		totals.Medium,
		totals.Low,
		report.TimedOut,
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save audit report: %w", err)
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM crawled_pages WHERE run_id = ?", report.ID); err != nil {
		return fmt.Errorf("failed to clear crawled pages: %w", err)
	}

	for _, page := range report.Pages {
		_, err = tx.ExecContext(ctx, `
		INSERT INTO crawled_pages (run_id, url, status_code, content_type, title, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, url) DO NOTHING
		`,
			report.ID,
			page.URL,
			page.StatusCode,
			page.ContentType,
			page.Title,
			page.FetchedAt.UTC().Format(timestampLayout),
		)
		if err != nil {
			return fmt.Errorf("failed to save crawled page %s: %w", page.URL, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit report: %w", err)
	}
	return nil
}

// GetLatestAuditReport retrieves the most recent run for a site.
// It returns nil without error when the site has no runs.
func (adb *AuditDB) GetLatestAuditReport(ctx context.Context, site string) (*model.AuditReport, error) {
	query := `
	SELECT report_json FROM audit_runs
	WHERE site = ?
	ORDER BY timestamp DESC, rowid DESC
	LIMIT 1
	`

	var reportJSON string
	err := adb.db.QueryRowContext(ctx, query, site).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit report: %w", err)
	}
	return decodeReport(reportJSON)
}

// ListAuditedSites returns every site with at least one stored run.
func (adb *AuditDB) ListAuditedSites(ctx context.Context) ([]string, error) {
	rows, err := adb.db.QueryContext(ctx, "SELECT DISTINCT site FROM audit_runs ORDER BY site")
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var site string
		if err := rows.Scan(&site); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// GetAuditHistory retrieves all runs for a site, newest first.
// Rows whose JSON no longer decodes are skipped.
func (adb *AuditDB) GetAuditHistory(ctx context.Context, site string) ([]*model.AuditReport, error) {
	query := `
	SELECT report_json FROM audit_runs
	WHERE site = ?
	ORDER BY timestamp DESC, rowid DESC
	`

	rows, err := adb.db.QueryContext(ctx, query, site)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit history: %w", err)
	}
	defer rows.Close()

	var reports []*model.AuditReport
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		report, err := decodeReport(reportJSON)
		if err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// AuditRunMetadata summarizes a stored run without loading its report.
type AuditRunMetadata struct {
	// ID is the run id.
	ID string

	// Site is the audited start URL.
	Site string

	// Device is the analyzer form factor.
	Device string

	// Timestamp is when the run started.
	Timestamp time.Time

	// Counts are the run's severity tallies.
	Counts model.SeverityCounts

	// PageCount is the number of crawled pages stored for the run.
	PageCount int

	// TimedOut is true when the run was cancelled.
	TimedOut bool
}

// GetAuditHistoryWithMetadata retrieves run metadata for a site, newest first.
func (adb *AuditDB) GetAuditHistoryWithMetadata(ctx context.Context, site string) ([]AuditRunMetadata, error) {
	query := `
	SELECT r.id, r.site, r.device, r.timestamp, r.critical, r.medium, r.low, r.timed_out,
		(SELECT COUNT(*) FROM crawled_pages p WHERE p.run_id = r.id)
	FROM audit_runs r
	WHERE r.site = ?
	ORDER BY r.timestamp DESC, r.rowid DESC
	`

	rows, err := adb.db.QueryContext(ctx, query, site)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit history: %w", err)
	}
	defer rows.Close()

	var results []AuditRunMetadata
	for rows.Next() {
		var meta AuditRunMetadata
		var timestamp string
		if err := rows.Scan(
			&meta.ID,
			&meta.Site,
			&meta.Device,
			&timestamp,
			&meta.Counts.Critical,
			&meta.Counts.Medium,
			&meta.Counts.Low,
			&meta.TimedOut,
			&meta.PageCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		meta.Timestamp = parseTimestamp(timestamp)
		results = append(results, meta)
	}
	return results, rows.Err()
}

// GetAuditReportByID retrieves a run by its id.
// It returns nil without error when no run has that id.
func (adb *AuditDB) GetAuditReportByID(ctx context.Context, id string) (*model.AuditReport, error) {
	var reportJSON string
	err := adb.db.QueryRowContext(ctx, "SELECT report_json FROM audit_runs WHERE id = ?", id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit report: %w", err)
	}
	return decodeReport(reportJSON)
}

// GetCrawledPages returns the pages stored for a run in insertion order.
func (adb *AuditDB) GetCrawledPages(ctx context.Context, runID string) ([]*model.Page, error) {
	query := `
	SELECT url, status_code, content_type, title, fetched_at
	FROM crawled_pages
	WHERE run_id = ?
	ORDER BY id
	`

	rows, err := adb.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get crawled pages: %w", err)
	}
	defer rows.Close()

	var pages []*model.Page
	for rows.Next() {
		var page model.Page
		var contentType, title, fetchedAt sql.NullString
		if err := rows.Scan(&page.URL, &page.StatusCode, &contentType, &title, &fetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan crawled page: %w", err)
		}
		page.ContentType = contentType.String
		page.Title = title.String
		page.FetchedAt = parseTimestamp(fetchedAt.String)
		pages = append(pages, &page)
	}
	return pages, rows.Err()
}

func decodeReport(reportJSON string) (*model.AuditReport, error) {
	var report model.AuditReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timestampLayout,
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp tries each known format and returns zero time if none match.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
