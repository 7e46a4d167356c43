package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/siteaudit/internal/config"
)

// loadSample parses testdata/sample_report.json.
func loadSample(t *testing.T) []byte {
	t.Helper()

	data, err := os.ReadFile(filepath.Join("testdata", "sample_report.json"))
	if err != nil {
		t.Fatalf("failed to read sample: %v", err)
	}
	return data
}

// TestParseDocument tests decoding of a Lighthouse report.
func TestParseDocument(t *testing.T) {
	t.Parallel()

	doc, err := ParseDocument(strings.NewReader(string(loadSample(t))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("uses finalUrl", func(t *testing.T) {
		t.Parallel()
		if doc.FinalURL != "https://a.test/home" {
			t.Errorf("expected final URL, got %q", doc.FinalURL)
		}
	})

	t.Run("keeps document order", func(t *testing.T) {
		t.Parallel()
		want := []string{
			"largest-contentful-paint", "cumulative-layout-shift", "interactive",
			"color-contrast", "image-alt", "meta-description", "unminified-javascript",
			"errors-in-console", "uses-http2", "screenshot-thumbnails",
		}
		if len(doc.Rules) != len(want) {
			t.Fatalf("expected %d rules, got %d", len(want), len(doc.Rules))
		}
		for i, id := range want {
			if doc.Rules[i].ID != id {
				t.Errorf("rule %d: expected %q, got %q", i, id, doc.Rules[i].ID)
			}
		}
	})

	t.Run("reads metrics", func(t *testing.T) {
		t.Parallel()
		m := doc.Metrics()
		if m.LCP == nil || *m.LCP != 4500.5 {
			t.Errorf("unexpected LCP %v", m.LCP)
		}
		if m.CLS == nil || *m.CLS != 0.3 {
			t.Errorf("unexpected CLS %v", m.CLS)
		}
		if m.TTI == nil || *m.TTI != 2100 {
			t.Errorf("unexpected TTI %v", m.TTI)
		}
	})

	t.Run("examples", func(t *testing.T) {
		t.Parallel()
		tests := map[string]string{
			"color-contrast":        `<a class="muted" href="/about">`,
			"unminified-javascript": "https://a.test/app.js",
			"errors-in-console":     "https://a.test/app.js",
			"meta-description":      "",
		}
		for id, want := range tests {
			r, ok := doc.Rule(id)
			if !ok {
				t.Fatalf("missing rule %s", id)
			}
			if r.Example != want {
				t.Errorf("%s: expected example %q, got %q", id, want, r.Example)
			}
		}
	})

	t.Run("null score stays absent", func(t *testing.T) {
		t.Parallel()
		r, _ := doc.Rule("uses-http2")
		if r.Score != nil {
			t.Errorf("expected nil score, got %v", *r.Score)
		}
	})
}

// TestParseDocumentURLFallback tests the final URL fallbacks.
func TestParseDocumentURLFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		json string
		want string
	}{
		{"displayed URL", `{"finalDisplayedUrl":"https://a.test/d","requestedUrl":"https://a.test/r","audits":{}}`, "https://a.test/d"},
		{"requested URL", `{"requestedUrl":"https://a.test/r","audits":{}}`, "https://a.test/r"},
		{"no audits", `{"finalUrl":"https://a.test/"}`, "https://a.test/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc, err := ParseDocument(strings.NewReader(tt.json))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if doc.FinalURL != tt.want {
				t.Errorf("expected %q, got %q", tt.want, doc.FinalURL)
			}
		})
	}
}

// TestParseDocumentErrors tests malformed reports.
func TestParseDocumentErrors(t *testing.T) {
	t.Parallel()

	for _, input := range []string{`not json`, `{"audits": [1, 2]}`, `{"audits": {"x": }}`} {
		if _, err := ParseDocument(strings.NewReader(input)); !errors.Is(err, ErrMalformedDocument) {
			t.Errorf("%q: expected ErrMalformedDocument, got %v", input, err)
		}
	}
}

// TestSourceExample tests rendering of string and object sources.
func TestSourceExample(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "string", raw: `"inline script"`, want: "inline script"},
		{name: "location with line", raw: `{"type":"source-location","url":"https://a.test/app.js","line":12,"column":4}`, want: "https://a.test/app.js:12"},
		{name: "location without line", raw: `{"type":"source-location","url":"https://a.test/app.js"}`, want: "https://a.test/app.js"},
		{name: "object without url", raw: `{ "type": "code", "value": "x" }`, want: `{"type":"code","value":"x"}`},
		{name: "null", raw: `null`, want: ""},
		{name: "empty", raw: ``, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := sourceExample(json.RawMessage(tt.raw)); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

// TestExtractFindings tests flattening a document into findings.
func TestExtractFindings(t *testing.T) {
	t.Parallel()

	doc, err := ParseDocument(strings.NewReader(string(loadSample(t))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	findings := ExtractFindings(doc)

	want := []string{
		"largest-contentful-paint", "cumulative-layout-shift", "color-contrast",
		"meta-description", "unminified-javascript", "errors-in-console", "uses-http2",
	}
	if len(findings) != len(want) {
		ids := make([]string, 0, len(findings))
		for _, f := range findings {
			ids = append(ids, f.RuleID)
		}
		t.Fatalf("expected %v, got %v", want, ids)
	}

	for i, f := range findings {
		if f.RuleID != want[i] {
			t.Errorf("finding %d: expected %q, got %q", i, want[i], f.RuleID)
		}
		if f.PageURL != "https://a.test/home" {
			t.Errorf("finding %d: unexpected page %q", i, f.PageURL)
		}
		if f.Metrics.LCP == nil || *f.Metrics.LCP != 4500.5 {
			t.Errorf("finding %d: expected page LCP on every finding", i)
		}
		if f.RootCause != "" || f.Recommendation != "" {
			t.Errorf("finding %d: expected blank enrichment fields", i)
		}
	}

	if findings[2].Category != "a11y-color-contrast" {
		t.Errorf("expected category from group, got %q", findings[2].Category)
	}
	if findings[6].RawScore != nil {
		t.Error("expected nil raw score for unscored rule")
	}

	if got := ExtractFindings(nil); len(got) != 0 {
		t.Errorf("expected no findings for nil document, got %d", len(got))
	}
}

// TestSlug tests report file names.
func TestSlug(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"https://a.test/", "a.test_"},
		{"http://a.test/x?y=1", "a.test_x_y_1"},
		{"https://", "home"},
		{"https://a.test/" + strings.Repeat("p", 200), ("a.test_" + strings.Repeat("p", 200))[:120]},
	}

	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// fakeLookup resolves only the binaries present in found.
func fakeLookup(found map[string]string) func(string) (string, error) {
	return func(name string) (string, error) {
		if p, ok := found[name]; ok {
			return p, nil
		}
		return "", errors.New("not found")
	}
}

// TestLighthouseRunnerCommand tests binary discovery order.
func TestLighthouseRunnerCommand(t *testing.T) {
	t.Parallel()

	existing := filepath.Join(t.TempDir(), "lighthouse")
	if err := os.WriteFile(existing, []byte("#!/bin/sh\n"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	tests := []struct {
		name    string
		env     map[string]string
		found   map[string]string
		want    []string
		wantErr bool
	}{
		{"explicit path", map[string]string{EnvLighthousePath: existing}, map[string]string{"lighthouse": "/usr/bin/lighthouse"}, []string{existing}, false},
		{"missing explicit path falls through", map[string]string{EnvLighthousePath: "/nope"}, map[string]string{"lighthouse": "/usr/bin/lighthouse"}, []string{"/usr/bin/lighthouse"}, false},
		{"npx fallback", nil, map[string]string{"npx": "/usr/bin/npx"}, []string{"/usr/bin/npx", "lighthouse"}, false},
		{"npx override", map[string]string{EnvNpxPath: existing}, nil, []string{existing, "lighthouse"}, false},
		{"nothing found", nil, nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := NewLighthouseRunner(t.TempDir(), WithLookup(fakeLookup(tt.found), func(k string) string { return tt.env[k] }))
			got, err := r.Command()
			if tt.wantErr {
				if !errors.Is(err, ErrLighthouseNotFound) {
					t.Errorf("expected ErrLighthouseNotFound, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.Join(got, " ") != strings.Join(tt.want, " ") {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

// TestLighthouseRunnerArgs tests the flags passed to Lighthouse.
func TestLighthouseRunnerArgs(t *testing.T) {
	t.Parallel()

	t.Run("mobile quiet", func(t *testing.T) {
		t.Parallel()

		args := strings.Join(NewLighthouseRunner("out").Args("https://a.test/", "out/a.test_"), " ")
		for _, want := range []string{
			"https://a.test/",
			"--only-categories=performance,accessibility,seo,best-practices",
			"--output=json",
			"--chrome-flags=--headless=new",
			"--enable-error-reporting=false",
			"--output-path out/a.test_",
			"--form-factor=mobile",
			"--quiet",
		} {
			if !strings.Contains(args, want) {
				t.Errorf("expected %q in %q", want, args)
			}
		}
		if strings.Contains(args, "--output=html") || strings.Contains(args, "--preset=desktop") {
			t.Errorf("unexpected flags in %q", args)
		}
	})

	t.Run("desktop verbose with html and chrome path", func(t *testing.T) {
		t.Parallel()

		r := NewLighthouseRunner("out",
			WithDevice(config.DeviceDesktop),
			WithVerbose(true),
			WithAlsoHTML(true),
			WithChromePath("/opt/chrome"),
		)
		args := strings.Join(r.Args("https://a.test/", "out/a"), " ")
		for _, want := range []string{"--preset=desktop", "--output=html", "--chrome-path /opt/chrome"} {
			if !strings.Contains(args, want) {
				t.Errorf("expected %q in %q", want, args)
			}
		}
		if strings.Contains(args, "--quiet") || strings.Contains(args, "--form-factor=mobile") {
			t.Errorf("unexpected flags in %q", args)
		}
	})
}

// TestLighthouseRunnerAudit tests running the process and reading its report.
func TestLighthouseRunnerAudit(t *testing.T) {
	t.Parallel()

	lookup := WithLookup(fakeLookup(map[string]string{"lighthouse": "/usr/bin/lighthouse"}), func(string) string { return "" })

	t.Run("reads the report written by the process", func(t *testing.T) {
		t.Parallel()

		sample := loadSample(t)
		outDir := t.TempDir()
		var gotName string
		run := func(_ context.Context, _, _ io.Writer, name string, args ...string) error {
			gotName = name
			for i, a := range args {
				if a == "--output-path" {
					return os.WriteFile(args[i+1]+reportSuffix, sample, 0o600)
				}
			}
			return errors.New("no output path")
		}

		r := NewLighthouseRunner(outDir, lookup, WithCommandRunner(run))
		doc, err := r.Audit(context.Background(), "https://a.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotName != "/usr/bin/lighthouse" {
			t.Errorf("unexpected binary %q", gotName)
		}
		if doc.FinalURL != "https://a.test/home" {
			t.Errorf("unexpected final URL %q", doc.FinalURL)
		}
		if _, err := os.Stat(filepath.Join(outDir, "a.test_"+reportSuffix)); err != nil {
			t.Errorf("expected report in output dir: %v", err)
		}
	})

	t.Run("non-zero exit with a report still succeeds", func(t *testing.T) {
		t.Parallel()

		sample := loadSample(t)
		run := func(_ context.Context, _, _ io.Writer, _ string, args ...string) error {
			for i, a := range args {
				if a == "--output-path" {
					if err := os.WriteFile(args[i+1]+reportSuffix, sample, 0o600); err != nil {
						return err
					}
				}
			}
			return errors.New("exit status 1")
		}

		r := NewLighthouseRunner(t.TempDir(), lookup, WithCommandRunner(run))
		if _, err := r.Audit(context.Background(), "https://a.test/"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("missing report is unavailable", func(t *testing.T) {
		t.Parallel()

		outDir := t.TempDir()
		stale := filepath.Join(outDir, Slug("https://a.test/")+reportSuffix)
		if err := os.WriteFile(stale, loadSample(t), 0o600); err != nil {
			t.Fatalf("failed to write stale report: %v", err)
		}
		run := func(context.Context, io.Writer, io.Writer, string, ...string) error { return nil }

		r := NewLighthouseRunner(outDir, lookup, WithCommandRunner(run))
		if _, err := r.Audit(context.Background(), "https://a.test/"); !errors.Is(err, ErrAuditUnavailable) {
			t.Errorf("expected ErrAuditUnavailable, got %v", err)
		}
	})

	t.Run("timeout is unavailable", func(t *testing.T) {
		t.Parallel()

		run := func(ctx context.Context, _, _ io.Writer, _ string, _ ...string) error {
			<-ctx.Done()
			return ctx.Err()
		}

		r := NewLighthouseRunner(t.TempDir(), lookup, WithCommandRunner(run), WithAuditTimeout(10*time.Millisecond))
		if _, err := r.Audit(context.Background(), "https://a.test/"); !errors.Is(err, ErrAuditUnavailable) {
			t.Errorf("expected ErrAuditUnavailable, got %v", err)
		}
	})

	t.Run("cancellation is returned as is", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		run := func(context.Context, io.Writer, io.Writer, string, ...string) error {
			cancel()
			return context.Canceled
		}

		r := NewLighthouseRunner(t.TempDir(), lookup, WithCommandRunner(run))
		_, err := r.Audit(ctx, "https://a.test/")
		if !errors.Is(err, context.Canceled) || errors.Is(err, ErrAuditUnavailable) {
			t.Errorf("expected bare context.Canceled, got %v", err)
		}
	})

	t.Run("binary not found is unavailable", func(t *testing.T) {
		t.Parallel()

		r := NewLighthouseRunner(t.TempDir(), WithLookup(fakeLookup(nil), func(string) string { return "" }))
		_, err := r.Audit(context.Background(), "https://a.test/")
		if !errors.Is(err, ErrAuditUnavailable) || !errors.Is(err, ErrLighthouseNotFound) {
			t.Errorf("expected ErrAuditUnavailable and ErrLighthouseNotFound, got %v", err)
		}
	})
}
