// Package log builds the slog loggers used by siteaudit. Every record
// passes through a SecureHandler so site credentials never reach the log:
//   - request headers and cookies configured for audited sites
//   - the completion provider key, by name or by its sk-... shape
//   - credential query parameters in crawled URLs (?token=..., ?api_key=...)
//
// Usage:
//
//	logger := log.New(os.Stderr, log.Options{
//	    Verbose:    verbose,
//	    RedactKeys: []string{"X-Preview-Token"},
//	})
//	logger.Debug("fetching page", "url", "https://example.com/?token=abc")
//	// url=https://example.com/?token=***REDACTED***
package log
