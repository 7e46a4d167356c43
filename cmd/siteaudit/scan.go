package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/siteaudit/internal/audit"
	"github.com/nao1215/siteaudit/internal/config"
	"github.com/nao1215/siteaudit/internal/crawler"
	"github.com/nao1215/siteaudit/internal/database"
	"github.com/nao1215/siteaudit/internal/enrich"
	"github.com/nao1215/siteaudit/internal/log"
	"github.com/nao1215/siteaudit/internal/model"
	"github.com/nao1215/siteaudit/internal/pipeline"
	"github.com/nao1215/siteaudit/internal/report"
	"github.com/nao1215/siteaudit/internal/severity"
)

// rawJSONDir is the subdirectory of --out that receives Lighthouse output.
const rawJSONDir = "raw_json"

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [start-url]...",
		Short: "Crawl a site and audit every page",
		Long: `Scan crawls each site from its start URL, runs Lighthouse on every page
found and grades the failing audits with the severity rules file.

For each site it writes to --out:
- urls.txt with the crawled pages
- pages/<page>.csv with one row per finding
- summary.csv with per-page severity counts and average LCP, CLS and TTI
- raw_json/ with the Lighthouse reports

A rules file is required. Create one with 'siteaudit init'.

Examples:
  # Audit a site with the default settings
  siteaudit scan https://example.com

  # Audit at most 10 pages as a desktop browser
  siteaudit scan -p 10 --device desktop https://example.com

  # Enrich findings with a local OpenAI-compatible server
  siteaudit scan --llm --llm-base-url http://localhost:1234/v1 https://example.com

  # Audit two sites at once and print a Markdown report
  siteaudit scan -b 2 --markdown https://a.example https://b.example

  # Keep the run in the history database for 'siteaudit compare'
  siteaudit scan --history https://example.com

Environment:
  LIGHTHOUSE_PATH, NPX_PATH        Lighthouse binary discovery
  LLM_BASE_URL, LLM_MODEL,
  LLM_API_KEY, LLM_CACHE           Defaults for the --llm-* flags`,
		Args: cobra.ArbitraryArgs,
		RunE: runScanCmd,
	}

	// Crawl flags
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages to crawl per site, start page included")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each crawl request")
	cmd.Flags().Duration("delay", config.DefaultCrawlDelay,
		"Pause between crawl requests")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent by the crawler")
	cmd.Flags().Bool("respect-robots", false,
		"Skip links disallowed by the site's robots.txt")
	cmd.Flags().StringP("config", "c", "",
		"Per-site configuration file (default: .siteaudit in current or home directory)")

	// Lighthouse flags
	cmd.Flags().String("device", config.DefaultDevice,
		"Lighthouse form factor: mobile or desktop")
	cmd.Flags().Duration("audit-timeout", config.DefaultAuditTimeout,
		"Timeout for each Lighthouse run")
	cmd.Flags().String("chrome-path", "",
		"Chrome executable passed to Lighthouse")
	cmd.Flags().Bool("also-html", false,
		"Also write the Lighthouse HTML report")

	// Grading and enrichment flags
	cmd.Flags().StringP("rules", "r", "",
		"Severity rules file (default: rules.yaml, config/rules.yaml or the XDG config directory)")
	cmd.Flags().Bool("only-failing", false,
		"Drop findings graded low before enrichment")
	cmd.Flags().String("enrich-mode", config.DefaultEnrichMode,
		"Enrichment mode: template, llm or hybrid")

	// Remote provider flags
	cmd.Flags().Bool("llm", false,
		"Allow calls to the OpenAI-compatible provider")
	cmd.Flags().String("llm-base-url", "",
		"Provider API root (default: $LLM_BASE_URL or "+config.DefaultLLMBaseURL+")")
	cmd.Flags().String("llm-model", "",
		"Model name (default: $LLM_MODEL or "+config.DefaultLLMModel+")")
	cmd.Flags().String("llm-api-key", "",
		"Bearer token (default: $LLM_API_KEY); required for non-local providers")
	cmd.Flags().Duration("llm-rate", config.DefaultLLMRate,
		"Pause between provider calls")
	cmd.Flags().String("llm-min-severity", config.DefaultLLMMinSeverity,
		"Lowest severity sent to the provider: low, medium or critical")
	cmd.Flags().Int("llm-top", config.DefaultLLMTop,
		"Maximum candidates per page (0 = no cap)")
	cmd.Flags().String("llm-mode", config.LLMModeRow,
		"row enriches each finding, rule enriches one finding per rule and copies the answer")
	cmd.Flags().Int("llm-max-calls", 0,
		"Maximum provider calls per page (0 = unlimited)")
	cmd.Flags().String("llm-cache", "",
		"Enrichment cache file (default: $LLM_CACHE or <out>/"+config.DefaultLLMCacheFile+")")

	// Batch flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of sites audited concurrently")

	// Output flags
	cmd.Flags().StringP("out", "o", config.DefaultOutDir,
		"Output directory for CSV files, raw Lighthouse reports and the cache")
	cmd.Flags().BoolP("json", "j", false,
		"Print a JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Print a Markdown report (mutually exclusive with --json)")
	cmd.Flags().String("report-file", "",
		"Write the printed report to this file instead of stdout")
	cmd.Flags().Bool("history", false,
		"Save the run to the history database for 'siteaudit compare'")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")
	cmd.Flags().Bool("log-json", false,
		"Write logs as JSON")

	return cmd
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logJSON, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		return err
	}
	logger := setupLogger(cmd.ErrOrStderr(), cfg, logJSON)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runScan(ctx, cfg, scanEnv{
		stdout: cmd.OutOrStdout(),
		stderr: cmd.ErrOrStderr(),
		logger: logger,
	})
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger creates the redacting logger used by every component.
// Custom header names from the site config are masked as well.
func setupLogger(w io.Writer, cfg *config.Config, asJSON bool) *slog.Logger {
	return log.New(w, log.Options{
		Verbose:    cfg.Verbose,
		JSON:       asJSON,
		RedactKeys: cfg.SiteConfigs.HeaderNames(),
	})
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.CrawlDelay, err = flags.GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.RespectRobots, err = flags.GetBool("respect-robots"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.Device, err = flags.GetString("device"); err != nil {
		return nil, err
	}
	if cfg.AuditTimeout, err = flags.GetDuration("audit-timeout"); err != nil {
		return nil, err
	}
	if cfg.ChromePath, err = flags.GetString("chrome-path"); err != nil {
		return nil, err
	}
	if cfg.AlsoHTML, err = flags.GetBool("also-html"); err != nil {
		return nil, err
	}
	if cfg.RulesPath, err = flags.GetString("rules"); err != nil {
		return nil, err
	}
	if cfg.OnlyFailing, err = flags.GetBool("only-failing"); err != nil {
		return nil, err
	}
	if cfg.EnrichMode, err = flags.GetString("enrich-mode"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.OutDir, err = flags.GetString("out"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report-file"); err != nil {
		return nil, err
	}
	if cfg.SaveHistory, err = flags.GetBool("history"); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.DBDir == "" {
		cfg.DBDir = config.XDGDataDir()
	}
	cfg.Verbose = getVerboseFlag(cmd)

	if err := readLLMFlags(cmd, &cfg.LLM); err != nil {
		return nil, err
	}
	cfg.LLM.ApplyDefaults(os.LookupEnv, cfg.OutDir)

	// If the user explicitly specified a config file, error if not found.
	// Otherwise silently use an empty config.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
	}

	cfg.Targets = make([]string, 0, len(args))
	for _, arg := range args {
		target, err := crawler.NormalizeURL(crawler.EnsureScheme(arg))
		if err != nil {
			return nil, fmt.Errorf("invalid start URL %q: %w", arg, err)
		}
		cfg.Targets = append(cfg.Targets, target)
	}

	return cfg, nil
}

// readLLMFlags copies the --llm-* flags into llm.
func readLLMFlags(cmd *cobra.Command, llm *config.LLMConfig) error {
	flags := cmd.Flags()

	var err error
	if llm.Enabled, err = flags.GetBool("llm"); err != nil {
		return err
	}
	if llm.BaseURL, err = flags.GetString("llm-base-url"); err != nil {
		return err
	}
	if llm.Model, err = flags.GetString("llm-model"); err != nil {
		return err
	}
	if llm.APIKey, err = flags.GetString("llm-api-key"); err != nil {
		return err
	}
	if llm.Rate, err = flags.GetDuration("llm-rate"); err != nil {
		return err
	}
	if llm.MinSeverity, err = flags.GetString("llm-min-severity"); err != nil {
		return err
	}
	if llm.Top, err = flags.GetInt("llm-top"); err != nil {
		return err
	}
	if llm.Mode, err = flags.GetString("llm-mode"); err != nil {
		return err
	}
	if llm.MaxCalls, err = flags.GetInt("llm-max-calls"); err != nil {
		return err
	}
	if llm.CachePath, err = flags.GetString("llm-cache"); err != nil {
		return err
	}
	return nil
}

// scanEnv holds the collaborators of a scan.
type scanEnv struct {
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger

	// invoker runs the page audits. Nil means Lighthouse.
	invoker audit.Invoker
}

// runScan audits every target and writes the outputs of each site.
// It fails before crawling when the rules file or the cache cannot be
// loaded. A site that fails does not stop the others.
func runScan(ctx context.Context, cfg *config.Config, env scanEnv) error {
	logger := env.logger
	if logger == nil {
		logger = slog.Default()
	}

	rules, err := config.LoadRules(config.FindRulesFile(cfg.RulesPath))
	if err != nil {
		return err
	}
	grader := severity.NewGrader(rules)

	invoker := env.invoker
	if invoker == nil {
		invoker = newLighthouseRunner(cfg, env.stderr, logger)
	}

	cache, err := openCache(cfg, logger)
	if err != nil {
		return err
	}
	if _, err := enrich.NewEngineFromConfig(cfg, cache, logger); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	var db *database.AuditDB
	if cfg.SaveHistory {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
	}

	logger.Info("starting scan",
		"targets", cfg.Targets,
		"maxPages", cfg.MaxPages,
		"device", cfg.Device,
		"enrichMode", cfg.EnrichMode,
		"llm", cfg.RemoteEnabled(),
		"batchSize", cfg.BatchSize,
	)

	bp := pipeline.NewBatchProcessor(
		func(target string) *pipeline.SiteRunner {
			return newSiteRunner(cfg, target, invoker, grader, cache, logger)
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	fmt.Fprintf(env.stderr, "Auditing %d site(s) (concurrency: %d)...\n", len(cfg.Targets), cfg.BatchSize)
	startTime := time.Now()

	reports, batchErr := bp.ProcessBatch(ctx, cfg.Targets)

	output, closeOutput, err := openReportOutput(cfg, env.stdout)
	if err != nil {
		return err
	}
	defer closeOutput()

	failed := 0
	for i, r := range reports {
		if r == nil {
			continue
		}
		if r.ErrorMessage != "" && !r.TimedOut {
			failed++
			fmt.Fprintf(env.stderr, "Audit error for %s: %s\n", r.StartURL, r.ErrorMessage)
		}

		dir := siteOutDir(cfg, cfg.Targets[i])
		if err := writeReport(cfg, output, dir, r); err != nil {
			logger.Error("report failed", "site", r.StartURL, "error", err)
		} else {
			fmt.Fprintf(env.stderr, "Wrote CSV files to %s\n", dir)
		}

		if err := saveAuditReport(ctx, db, r, logger); err != nil {
			logger.Error("failed to save audit report", "site", r.StartURL, "error", err)
		}
	}

	fmt.Fprintf(env.stderr, "Audit completed in %s\n", time.Since(startTime).Round(time.Millisecond))

	if batchErr != nil {
		return fmt.Errorf("audit interrupted: %w", batchErr)
	}
	if failed > 0 && failed == len(cfg.Targets) {
		return fmt.Errorf("all %d site(s) failed", failed)
	}
	return nil
}

// newLighthouseRunner creates the shared Lighthouse invoker and warns
// when no Lighthouse binary can be found.
func newLighthouseRunner(cfg *config.Config, stderr io.Writer, logger *slog.Logger) *audit.LighthouseRunner {
	runner := audit.NewLighthouseRunner(
		filepath.Join(cfg.OutDir, rawJSONDir),
		audit.WithDevice(cfg.Device),
		audit.WithChromePath(cfg.ChromePath),
		audit.WithAlsoHTML(cfg.AlsoHTML),
		audit.WithVerbose(cfg.Verbose),
		audit.WithAuditTimeout(cfg.AuditTimeout),
		audit.WithOutput(stderr),
		audit.WithRunnerLogger(logger),
	)

	if _, err := runner.Command(); err != nil {
		logger.Warn("lighthouse is not available; every page will be skipped", "error", err)
		fmt.Fprintf(stderr, "Warning: %v\n", err)
	}
	return runner
}

// openCache loads the enrichment cache. The file is only read when remote
// enrichment can run; otherwise an in-memory cache is used.
func openCache(cfg *config.Config, logger *slog.Logger) (*enrich.Cache, error) {
	if !cfg.RemoteEnabled() {
		return enrich.NewMemoryCache(), nil
	}
	cache, err := enrich.LoadCache(cfg.LLM.CachePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrichment cache: %w", err)
	}
	return cache, nil
}

// getSiteConfig returns the merged per-site settings for a start URL.
// Sites are matched by host name without the port.
func getSiteConfig(cfg *config.Config, target string) config.SiteConfig {
	u, err := url.Parse(target)
	if err != nil {
		return cfg.SiteConfigs.GetSiteConfig("")
	}
	return cfg.SiteConfigs.GetSiteConfig(u.Hostname())
}

// spiderOptions returns the crawler options for one site.
func spiderOptions(cfg *config.Config, siteConfig config.SiteConfig, logger *slog.Logger) []crawler.SpiderOption {
	maxPages := cfg.MaxPages
	if siteConfig.MaxPages > 0 {
		maxPages = siteConfig.MaxPages
	}

	opts := []crawler.SpiderOption{
		crawler.WithMaxPages(maxPages),
		crawler.WithDelay(cfg.CrawlDelay),
		crawler.WithSpiderUserAgent(cfg.UserAgent),
		crawler.WithSpiderMaxBodySize(cfg.MaxBodySize),
		crawler.WithRobots(cfg.RespectRobots),
		crawler.WithSpiderLogger(logger),
	}

	if siteConfig.Cookie != "" {
		opts = append(opts, crawler.WithCookie(siteConfig.Cookie))
	}
	if len(siteConfig.Headers) > 0 {
		opts = append(opts, crawler.WithHeaders(siteConfig.Headers))
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		opts = append(opts, crawler.WithIgnorePatterns(siteConfig.IgnorePatterns))
	}
	if len(siteConfig.FollowPatterns) > 0 {
		opts = append(opts, crawler.WithFollowPatterns(siteConfig.FollowPatterns))
	}
	return opts
}

// newSiteRunner wires the crawler and the per-page pipeline of one site.
// The invoker, grader and cache are shared by every site.
func newSiteRunner(
	cfg *config.Config,
	target string,
	invoker audit.Invoker,
	grader *severity.Grader,
	cache *enrich.Cache,
	logger *slog.Logger,
) *pipeline.SiteRunner {
	siteLogger := logger.With("site", target)

	spider := crawler.NewSpider(
		crawler.NewHTTPClient(cfg.Timeout),
		spiderOptions(cfg, getSiteConfig(cfg, target), siteLogger)...,
	)

	// The configuration was checked by runScan, so this cannot fail.
	engine, err := enrich.NewEngineFromConfig(cfg, cache, siteLogger)
	if err != nil {
		siteLogger.Error("enrichment disabled", "error", err)
		engine = enrich.NewEngine(enrich.WithCache(cache), enrich.WithEngineLogger(siteLogger))
	}

	p := pipeline.DefaultPipeline(
		invoker,
		grader,
		engine,
		[]pipeline.Option{pipeline.WithLogger(siteLogger)},
		pipeline.WithPipelineOnlyFailing(cfg.OnlyFailing),
		pipeline.WithPipelineLogger(siteLogger),
	)

	return pipeline.NewSiteRunner(spider, p,
		pipeline.WithSiteDevice(cfg.Device),
		pipeline.WithSiteLogger(siteLogger),
	)
}

// siteOutDir returns the CSV directory of a site. With several targets
// each site gets its own subdirectory of --out.
func siteOutDir(cfg *config.Config, target string) string {
	if len(cfg.Targets) <= 1 {
		return cfg.OutDir
	}
	return filepath.Join(cfg.OutDir, report.SheetName(target))
}

// openReportOutput returns where the printed report goes and a function
// that releases it.
func openReportOutput(cfg *config.Config, stdout io.Writer) (io.Writer, func(), error) {
	if cfg.ReportFile == "" {
		return stdout, func() {}, nil
	}

	dir := filepath.Dir(cfg.ReportFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// writeReport prints the report in the requested format, then writes
// the CSV directory under dir.
func writeReport(cfg *config.Config, output io.Writer, dir string, r *model.AuditReport) error {
	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		w = report.NewMarkdownWriter(output)
	default:
		w = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
	_, err := report.NewMultiWriter(w, report.NewCSVDirWriter(dir)).Write(r)
	return err
}

// saveAuditReport stores the run in the history database. A run whose
// crawl failed is not stored, since it would read as "all findings fixed".
// If db is nil, this function is a no-op.
func saveAuditReport(ctx context.Context, db *database.AuditDB, r *model.AuditReport, logger *slog.Logger) error {
	if db == nil {
		return nil
	}
	if r.ErrorMessage != "" && !r.TimedOut {
		logger.Info("failed run not saved to history", "site", r.StartURL)
		return nil
	}

	// A timed-out run is still saved after cancellation.
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	if err := db.SaveAuditReport(ctx, r); err != nil {
		return fmt.Errorf("failed to save audit report: %w", err)
	}

	logger.Info("audit report saved to database", "site", r.StartURL, "id", r.ID)
	return nil
}
