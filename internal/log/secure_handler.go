package log

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// MaskValue replaces every redacted value.
const MaskValue = "***REDACTED***"

// defaultKeys are attribute and query-parameter names that always carry
// credentials: request headers sent to audited sites and the completion
// provider key.
var defaultKeys = []string{
	"authorization", "proxy-authorization", "cookie", "set-cookie",
	"x-api-key", "x-auth-token", "api_key", "apikey", "api-key",
	"llm_api_key", "openai_api_key", "access_token", "refresh_token",
	"session", "session_id", "sessionid", "sid", "jsessionid",
	"password", "passwd", "secret", "token", "credentials",
}

// defaultKeywords mark a key as sensitive when they appear anywhere in it.
// A bare "key" is not listed: it would mask rule ids and cache keys.
var defaultKeywords = []string{
	"password", "passwd", "secret", "token", "auth",
	"credential", "private", "cookie", "apikey", "api_key",
}

// defaultPatterns mark a string value as sensitive whatever its key.
var defaultPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`), // JWT
	regexp.MustCompile(`(?i)^(bearer|basic)\s+\S+`),
	regexp.MustCompile(`^sk-[A-Za-z0-9_-]{16,}$`), // provider keys
	regexp.MustCompile(`^AKIA[0-9A-Z]{16}$`),
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
	regexp.MustCompile(`^[a-zA-Z0-9]{32,}$`),
}

// Redactor decides which log attributes are masked. Besides whole
// values, it masks credential query parameters inside page URLs so a
// crawled "?token=..." link never reaches the log in clear text.
type Redactor struct {
	keys     map[string]bool
	keywords []string
	patterns []*regexp.Regexp
}

// NewRedactor returns a Redactor with the built-in rules plus extraKeys,
// typically the custom header names configured for audited sites.
// Key matching is case-insensitive.
func NewRedactor(extraKeys ...string) *Redactor {
	r := &Redactor{
		keys:     make(map[string]bool, len(defaultKeys)+len(extraKeys)),
		keywords: defaultKeywords,
		patterns: defaultPatterns,
	}
	for _, k := range defaultKeys {
		r.keys[k] = true
	}
	for _, k := range extraKeys {
		if k = strings.TrimSpace(k); k != "" {
			r.keys[strings.ToLower(k)] = true
		}
	}
	return r
}

// SensitiveKey reports whether values stored under key are masked.
func (r *Redactor) SensitiveKey(key string) bool {
	key = strings.ToLower(key)
	if r.keys[key] {
		return true
	}
	for _, kw := range r.keywords {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}

// SensitiveValue reports whether a string looks like a credential.
func (r *Redactor) SensitiveValue(value string) bool {
	for _, p := range r.patterns {
		if p.MatchString(value) {
			return true
		}
	}
	return false
}

// RedactURL masks the values of sensitive query parameters in an
// absolute http(s) URL. Other strings are returned unchanged.
func (r *Redactor) RedactURL(value string) string {
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		return value
	}
	u, err := url.Parse(value)
	if err != nil || u.RawQuery == "" {
		return value
	}

	pairs := strings.Split(u.RawQuery, "&")
	changed := false
	for i, pair := range pairs {
		name, _, hasValue := strings.Cut(pair, "=")
		decoded, err := url.QueryUnescape(name)
		if err != nil {
			decoded = name
		}
		if hasValue && r.SensitiveKey(decoded) {
			pairs[i] = name + "=" + MaskValue
			changed = true
		}
	}
	if !changed {
		return value
	}
	u.RawQuery = strings.Join(pairs, "&")
	return u.String()
}

// Attr returns a with sensitive content masked. Groups are walked
// recursively.
func (r *Redactor) Attr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindGroup:
		attrs := a.Value.Group()
		masked := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			masked[i] = r.Attr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(masked...)}
	case slog.KindLogValuer:
		return r.Attr(slog.Attr{Key: a.Key, Value: a.Value.Resolve()})
	}

	if r.SensitiveKey(a.Key) {
		return slog.String(a.Key, MaskValue)
	}
	if a.Value.Kind() != slog.KindString {
		return a
	}

	s := a.Value.String()
	if r.SensitiveValue(s) {
		return slog.String(a.Key, MaskValue)
	}
	if redacted := r.RedactURL(s); redacted != s {
		return slog.String(a.Key, redacted)
	}
	return a
}

// SecureHandler wraps an slog.Handler and masks sensitive attributes
// before the wrapped handler sees them.
type SecureHandler struct {
	handler  slog.Handler
	redactor *Redactor
}

// NewSecureHandler wraps handler. A nil handler falls back to the default
// logger's handler and a nil redactor to NewRedactor().
func NewSecureHandler(handler slog.Handler, redactor *Redactor) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	if redactor == nil {
		redactor = NewRedactor()
	}
	return &SecureHandler{handler: handler, redactor: redactor}
}

// Enabled delegates to the wrapped handler.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle masks the record's attributes and passes it on.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	masked := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		masked.AddAttrs(h.redactor.Attr(a))
		return true
	})
	return h.handler.Handle(ctx, masked)
}

// WithAttrs masks attrs once and attaches them to the wrapped handler.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.redactor.Attr(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(masked), redactor: h.redactor}
}

// WithGroup returns a handler that nests later attributes under name.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name), redactor: h.redactor}
}

// Options configures New.
type Options struct {
	// Verbose selects Debug level instead of Warn.
	Verbose bool

	// JSON selects the JSON handler instead of the text handler.
	JSON bool

	// RedactKeys are extra attribute and query-parameter names to mask.
	RedactKeys []string
}

// New returns a logger writing to w whose output is always redacted,
// verbose mode included.
func New(w io.Writer, opts Options) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(NewSecureHandler(handler, NewRedactor(opts.RedactKeys...)))
}
