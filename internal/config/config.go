package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultMaxPages is the maximum number of pages the crawler returns.
	// The start page counts toward the limit.
	DefaultMaxPages = 25

	// DefaultTimeout is the per-request timeout used by the crawler.
	DefaultTimeout = 25 * time.Second

	// DefaultAuditTimeout bounds a single analyzer invocation. A cold
	// headless browser plus four categories regularly needs over a minute.
	DefaultAuditTimeout = 3 * time.Minute

	// DefaultDevice is the analyzer form factor.
	DefaultDevice = DeviceMobile

	// DefaultOutDir is where CSV files, raw analyzer output and the
	// enrichment cache are written.
	DefaultOutDir = "report"

	// DefaultEnrichMode runs templates first and lets the remote provider
	// fill what is left.
	DefaultEnrichMode = EnrichHybrid

	// DefaultBatchSize audits one site at a time.
	DefaultBatchSize = 1

	// DefaultCrawlDelay is the pause between crawl fetches. Zero means the
	// crawler fetches back to back.
	DefaultCrawlDelay = time.Duration(0)

	// DefaultUserAgent mimics a desktop Chrome so that sites do not serve
	// placeholder content to the crawler.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// DefaultMaxBodySize limits how much of a page the crawler reads.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// AppName is the application name used for XDG directory paths.
	AppName = "siteaudit"
)

// Analyzer device profiles.
const (
	DeviceMobile  = "mobile"
	DeviceDesktop = "desktop"
)

// Enrichment modes.
const (
	// EnrichTemplate only applies the built-in templates.
	EnrichTemplate = "template"

	// EnrichLLM only calls the remote provider.
	EnrichLLM = "llm"

	// EnrichHybrid applies templates, then calls the remote provider for
	// findings the templates did not cover.
	EnrichHybrid = "hybrid"
)

// Config holds all configuration options for SiteAudit.
// It is populated from CLI flags, passed down explicitly and never stored
// in package-level state.
type Config struct {
	// Targets are the crawl start URLs, one audited site each.
	Targets []string

	// MaxPages caps the number of crawled pages per site.
	MaxPages int

	// Device selects the analyzer form factor: mobile or desktop.
	Device string

	// OutDir is the output directory for CSV, raw analyzer JSON and the cache.
	OutDir string

	// Timeout is the per-request crawl timeout.
	Timeout time.Duration

	// AuditTimeout bounds each analyzer invocation.
	AuditTimeout time.Duration

	// Verbose enables debug logging and analyzer console output.
	Verbose bool

	// ChromePath is passed to the analyzer when set.
	ChromePath string

	// AlsoHTML asks the analyzer to write an HTML report next to the JSON.
	AlsoHTML bool

	// OnlyFailing drops findings graded low before enrichment.
	OnlyFailing bool

	// EnrichMode is one of template, llm or hybrid.
	EnrichMode string

	// RulesPath is the severity rules file. When empty, FindRulesFile
	// searches the usual locations.
	RulesPath string

	// ConfigFilePath is the per-site configuration file.
	// If empty, .siteaudit is searched in the current and home directories.
	ConfigFilePath string

	// SiteConfigs holds per-site crawl settings loaded from the config file.
	SiteConfigs *File

	// JSONReport prints the full report as JSON. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport prints the report as Markdown. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile receives the JSON, Markdown or text report instead of stdout.
	ReportFile string

	// BatchSize is the number of sites audited concurrently.
	BatchSize int

	// CrawlDelay is the pause between crawl fetches.
	CrawlDelay time.Duration

	// UserAgent is sent with every crawl request.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// RespectRobots makes the crawler honor the site's robots.txt.
	RespectRobots bool

	// SaveHistory stores every run in the history database under DBDir.
	SaveHistory bool

	// DBDir is the directory of the history database.
	// Defaults to the XDG data directory (~/.local/share/siteaudit on Linux).
	DBDir string

	// LLM configures the remote enrichment provider.
	LLM LLMConfig
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxPages:     DefaultMaxPages,
		Device:       DefaultDevice,
		OutDir:       DefaultOutDir,
		Timeout:      DefaultTimeout,
		AuditTimeout: DefaultAuditTimeout,
		EnrichMode:   DefaultEnrichMode,
		BatchSize:    DefaultBatchSize,
		CrawlDelay:   DefaultCrawlDelay,
		UserAgent:    DefaultUserAgent,
		MaxBodySize:  DefaultMaxBodySize,
		LLM:          NewLLMConfig(),
	}
}

// XDGDataDir returns the XDG data directory for SiteAudit.
// On Linux: ~/.local/share/siteaudit
// On macOS: ~/Library/Application Support/siteaudit
// On Windows: %LOCALAPPDATA%\siteaudit
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for SiteAudit.
// On Linux: ~/.config/siteaudit
// On macOS: ~/Library/Application Support/siteaudit
// On Windows: %APPDATA%\siteaudit
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for SiteAudit.
// On Linux: ~/.cache/siteaudit
// On macOS: ~/Library/Caches/siteaudit
// On Windows: %LOCALAPPDATA%\siteaudit\cache
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks if the configuration is valid and returns the first
// problem found as one of the package sentinel errors.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}

	if c.MaxPages <= 0 {
		return ErrInvalidMaxPages
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.AuditTimeout <= 0 {
		return ErrInvalidAuditTimeout
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.Device != DeviceMobile && c.Device != DeviceDesktop {
		return ErrInvalidDevice
	}

	switch c.EnrichMode {
	case EnrichTemplate, EnrichLLM, EnrichHybrid:
	default:
		return ErrInvalidEnrichMode
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	return c.LLM.Validate()
}

// TemplatesEnabled reports whether the template provider runs.
func (c *Config) TemplatesEnabled() bool {
	return c.EnrichMode == EnrichTemplate || c.EnrichMode == EnrichHybrid
}

// RemoteEnabled reports whether the remote provider runs. It requires both
// a mode that includes it and the explicit LLM opt-in.
func (c *Config) RemoteEnabled() bool {
	return c.LLM.Enabled && (c.EnrichMode == EnrichLLM || c.EnrichMode == EnrichHybrid)
}
