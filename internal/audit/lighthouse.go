package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/nao1215/siteaudit/internal/config"
	"github.com/nao1215/siteaudit/internal/model"
)

var (
	// ErrAuditUnavailable is returned when no usable document could be
	// produced for a page. The page is skipped.
	ErrAuditUnavailable = errors.New("audit unavailable")

	// ErrLighthouseNotFound is returned when neither lighthouse nor npx
	// can be located.
	ErrLighthouseNotFound = errors.New("lighthouse CLI not found: install it with `npm i -g lighthouse` or set LIGHTHOUSE_PATH")
)

// Environment variables that override binary discovery.
const (
	EnvLighthousePath = "LIGHTHOUSE_PATH"
	EnvNpxPath        = "NPX_PATH"
)

// reportSuffix is appended by Lighthouse to the --output-path base.
const reportSuffix = ".report.json"

// maxSlugLength caps the file name derived from a page URL.
const maxSlugLength = 120

// onlyCategories are the audit categories requested from Lighthouse.
const onlyCategories = "performance,accessibility,seo,best-practices"

var (
	schemePattern     = regexp.MustCompile(`^https?://`)
	unsafeSlugPattern = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
)

// Invoker produces an AuditDocument for a page URL.
type Invoker interface {
	Audit(ctx context.Context, pageURL string) (*model.AuditDocument, error)
}

// CommandRunner runs an external command to completion.
type CommandRunner func(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error

// execCommand runs the command with os/exec.
func execCommand(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // binary is resolved from PATH or an explicit override
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// LighthouseRunner runs the Lighthouse CLI for one page at a time and
// reads the JSON report it writes into the output directory.
type LighthouseRunner struct {
	outDir     string
	device     string
	chromePath string
	alsoHTML   bool
	verbose    bool
	timeout    time.Duration
	output     io.Writer
	logger     *slog.Logger

	run      CommandRunner
	lookPath func(string) (string, error)
	getenv   func(string) string
}

// RunnerOption configures a LighthouseRunner.
type RunnerOption func(*LighthouseRunner)

// WithDevice selects the mobile or desktop profile.
func WithDevice(device string) RunnerOption {
	return func(r *LighthouseRunner) {
		r.device = device
	}
}

// WithChromePath passes an explicit browser binary to Lighthouse.
func WithChromePath(path string) RunnerOption {
	return func(r *LighthouseRunner) {
		r.chromePath = path
	}
}

// WithAlsoHTML makes Lighthouse write an HTML report next to the JSON one.
func WithAlsoHTML(enabled bool) RunnerOption {
	return func(r *LighthouseRunner) {
		r.alsoHTML = enabled
	}
}

// WithVerbose lets Lighthouse print progress to the runner output.
func WithVerbose(verbose bool) RunnerOption {
	return func(r *LighthouseRunner) {
		r.verbose = verbose
	}
}

// WithAuditTimeout bounds each Lighthouse process.
func WithAuditTimeout(d time.Duration) RunnerOption {
	return func(r *LighthouseRunner) {
		r.timeout = d
	}
}

// WithOutput sets where Lighthouse output goes in verbose mode.
func WithOutput(w io.Writer) RunnerOption {
	return func(r *LighthouseRunner) {
		if w != nil {
			r.output = w
		}
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *LighthouseRunner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithCommandRunner replaces process execution.
func WithCommandRunner(run CommandRunner) RunnerOption {
	return func(r *LighthouseRunner) {
		if run != nil {
			r.run = run
		}
	}
}

// WithLookup replaces PATH and environment lookups used to find the binary.
func WithLookup(lookPath func(string) (string, error), getenv func(string) string) RunnerOption {
	return func(r *LighthouseRunner) {
		if lookPath != nil {
			r.lookPath = lookPath
		}
		if getenv != nil {
			r.getenv = getenv
		}
	}
}

// NewLighthouseRunner creates a runner writing reports to outDir.
func NewLighthouseRunner(outDir string, opts ...RunnerOption) *LighthouseRunner {
	r := &LighthouseRunner{
		outDir:   outDir,
		device:   config.DefaultDevice,
		timeout:  config.DefaultAuditTimeout,
		output:   os.Stderr,
		logger:   slog.Default(),
		run:      execCommand,
		lookPath: exec.LookPath,
		getenv:   os.Getenv,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Audit runs Lighthouse for pageURL and parses the resulting report.
// Process failures, timeouts and unreadable reports are returned wrapped
// in ErrAuditUnavailable. Cancellation of ctx itself is returned as is.
func (r *LighthouseRunner) Audit(ctx context.Context, pageURL string) (*model.AuditDocument, error) {
	command, err := r.Command()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuditUnavailable, err)
	}

	if err := os.MkdirAll(r.outDir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuditUnavailable, err)
	}
	base := filepath.Join(r.outDir, Slug(pageURL))
	reportPath := base + reportSuffix
	if err := os.Remove(reportPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", ErrAuditUnavailable, err)
	}

	args := append(append([]string{}, command[1:]...), r.Args(pageURL, base)...)

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	stdout, stderr := io.Discard, io.Discard
	if r.verbose {
		stdout, stderr = r.output, r.output
	}

	r.logger.Debug("running lighthouse", "url", pageURL, "binary", command[0], "device", r.device)
	if err := r.run(runCtx, stdout, stderr, command[0], args...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: lighthouse timed out after %s", ErrAuditUnavailable, r.timeout)
		}
		// Lighthouse exits non-zero on some runtime warnings while still
		// writing a complete report.
		r.logger.Debug("lighthouse exited with error", "url", pageURL, "error", err)
	}

	doc, err := LoadDocument(reportPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuditUnavailable, err)
	}
	return doc, nil
}

// Command returns the executable and leading arguments used to start
// Lighthouse: LIGHTHOUSE_PATH, then lighthouse on PATH, then npx.
func (r *LighthouseRunner) Command() ([]string, error) {
	if p := r.getenv(EnvLighthousePath); p != "" && fileExists(p) {
		return []string{p}, nil
	}
	if p, err := r.lookPath("lighthouse"); err == nil {
		return []string{p}, nil
	}
	if p := r.getenv(EnvNpxPath); p != "" && fileExists(p) {
		return []string{p, "lighthouse"}, nil
	}
	if p, err := r.lookPath("npx"); err == nil {
		return []string{p, "lighthouse"}, nil
	}
	return nil, ErrLighthouseNotFound
}

// Args returns the Lighthouse flags for auditing pageURL into base.
func (r *LighthouseRunner) Args(pageURL, base string) []string {
	args := []string{
		pageURL,
		"--only-categories=" + onlyCategories,
		"--output=json",
	}
	if r.alsoHTML {
		args = append(args, "--output=html")
	}
	args = append(args,
		"--chrome-flags=--headless=new",
		"--enable-error-reporting=false",
		"--output-path", base,
	)
	if r.device == config.DeviceDesktop {
		args = append(args, "--preset=desktop")
	} else {
		args = append(args, "--form-factor=mobile")
	}
	if r.chromePath != "" {
		args = append(args, "--chrome-path", r.chromePath)
	}
	if !r.verbose {
		args = append(args, "--quiet")
	}
	return args
}

// Slug turns a page URL into a report file name stem.
func Slug(pageURL string) string {
	s := unsafeSlugPattern.ReplaceAllString(schemePattern.ReplaceAllString(pageURL, ""), "_")
	if len(s) > maxSlugLength {
		s = s[:maxSlugLength]
	}
	if strings.TrimSpace(s) == "" {
		return "home"
	}
	return s
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
