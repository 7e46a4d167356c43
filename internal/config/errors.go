package config

import (
	"errors"
	"fmt"
)

// Configuration validation errors returned by Config.Validate.
// Callers can match them with errors.Is.
var (
	// ErrNoTarget is returned when no start URL is given.
	ErrNoTarget = errors.New("no target specified: provide one or more start URLs")

	// ErrInvalidMaxPages is returned when the page cap is not positive.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be positive")

	// ErrInvalidTimeout is returned when the crawl timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidAuditTimeout is returned when the analyzer timeout is not positive.
	ErrInvalidAuditTimeout = errors.New("invalid audit timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidDevice is returned for a device other than mobile or desktop.
	ErrInvalidDevice = errors.New("invalid device: must be mobile or desktop")

	// ErrInvalidEnrichMode is returned for an unknown enrichment mode.
	ErrInvalidEnrichMode = errors.New("invalid enrich mode: must be template, llm or hybrid")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidCrawlDelay is returned when the crawl delay is negative.
	ErrInvalidCrawlDelay = errors.New("invalid crawl delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidLLMMode is returned for an LLM mode other than row or rule.
	ErrInvalidLLMMode = errors.New("invalid llm mode: must be row or rule")

	// ErrInvalidMinSeverity is returned for an unknown enrichment floor.
	ErrInvalidMinSeverity = errors.New("invalid llm min severity: must be low, medium or critical")

	// ErrInvalidLLMRate is returned when the delay between calls is negative.
	ErrInvalidLLMRate = errors.New("invalid llm rate: must be non-negative")

	// ErrInvalidLLMMaxCalls is returned when the per-page call cap is negative.
	ErrInvalidLLMMaxCalls = errors.New("invalid llm max calls: must be non-negative (0 = unlimited)")

	// ErrInvalidLLMTimeout is returned when the provider timeout is not positive.
	ErrInvalidLLMTimeout = errors.New("invalid llm timeout: must be positive")
)

// Severity rules errors.
var (
	// ErrRulesNotFound is returned when the rules file does not exist.
	ErrRulesNotFound = errors.New("severity rules file not found")

	// ErrNoRulesFile is returned when no rules file was given or found.
	ErrNoRulesFile = errors.New("no severity rules file: pass --rules or run 'siteaudit init'")
)

// RulesError reports a severity rules file that cannot be used.
// It always aborts the run before crawling starts.
type RulesError struct {
	// Path is the rules file path.
	Path string

	// Err is the underlying problem.
	Err error
}

// Error implements the error interface.
func (e *RulesError) Error() string {
	return fmt.Sprintf("severity rules %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *RulesError) Unwrap() error {
	return e.Err
}
