package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewConfig verifies that NewConfig returns a Config with all expected default values.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default MaxPages is 25", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxPages != 25 {
			t.Errorf("expected MaxPages to be 25, got %d", cfg.MaxPages)
		}
	})

	t.Run("default Timeout is 25 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.Timeout != 25*time.Second {
			t.Errorf("expected Timeout to be 25s, got %v", cfg.Timeout)
		}
	})

	t.Run("default Device is mobile", func(t *testing.T) {
		t.Parallel()
		if cfg.Device != DeviceMobile {
			t.Errorf("expected Device to be mobile, got %q", cfg.Device)
		}
	})

	t.Run("default OutDir is report", func(t *testing.T) {
		t.Parallel()
		if cfg.OutDir != "report" {
			t.Errorf("expected OutDir to be 'report', got %q", cfg.OutDir)
		}
	})

	t.Run("default EnrichMode is hybrid", func(t *testing.T) {
		t.Parallel()
		if cfg.EnrichMode != EnrichHybrid {
			t.Errorf("expected EnrichMode to be hybrid, got %q", cfg.EnrichMode)
		}
	})

	t.Run("default LLM settings", func(t *testing.T) {
		t.Parallel()
		if cfg.LLM.Enabled {
			t.Error("expected LLM to be disabled by default")
		}
		if cfg.LLM.Rate != 400*time.Millisecond {
			t.Errorf("expected Rate 400ms, got %v", cfg.LLM.Rate)
		}
		if cfg.LLM.MinSeverity != "medium" {
			t.Errorf("expected MinSeverity medium, got %q", cfg.LLM.MinSeverity)
		}
		if cfg.LLM.Top != 50 {
			t.Errorf("expected Top 50, got %d", cfg.LLM.Top)
		}
		if cfg.LLM.Mode != LLMModeRow {
			t.Errorf("expected Mode row, got %q", cfg.LLM.Mode)
		}
		if cfg.LLM.MaxCalls != 0 {
			t.Errorf("expected MaxCalls 0, got %d", cfg.LLM.MaxCalls)
		}
	})

	t.Run("history is off by default", func(t *testing.T) {
		t.Parallel()
		if cfg.SaveHistory {
			t.Error("expected SaveHistory to be false")
		}
	})
}

// TestConfigValidate tests the Validate method with various configurations.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		cfg := NewConfig()
		cfg.Targets = []string{"https://example.com/"}
		return cfg
	}

	t.Run("valid config returns nil", func(t *testing.T) {
		t.Parallel()
		if err := validConfig().Validate(); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{"no targets", func(c *Config) { c.Targets = nil }, ErrNoTarget},
		{"zero max pages", func(c *Config) { c.MaxPages = 0 }, ErrInvalidMaxPages},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, ErrInvalidTimeout},
		{"zero audit timeout", func(c *Config) { c.AuditTimeout = 0 }, ErrInvalidAuditTimeout},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, ErrInvalidBatchSize},
		{"unknown device", func(c *Config) { c.Device = "tablet" }, ErrInvalidDevice},
		{"unknown enrich mode", func(c *Config) { c.EnrichMode = "magic" }, ErrInvalidEnrichMode},
		{"json and markdown", func(c *Config) { c.JSONReport, c.MarkdownReport = true, true }, ErrConflictingReportFormats},
		{"negative crawl delay", func(c *Config) { c.CrawlDelay = -time.Second }, ErrInvalidCrawlDelay},
		{"negative body size", func(c *Config) { c.MaxBodySize = -1 }, ErrInvalidMaxBodySize},
		{"unknown llm mode", func(c *Config) { c.LLM.Mode = "page" }, ErrInvalidLLMMode},
		{"unknown min severity", func(c *Config) { c.LLM.MinSeverity = "high" }, ErrInvalidMinSeverity},
		{"negative llm rate", func(c *Config) { c.LLM.Rate = -time.Second }, ErrInvalidLLMRate},
		{"negative max calls", func(c *Config) { c.LLM.MaxCalls = -1 }, ErrInvalidLLMMaxCalls},
		{"zero llm timeout", func(c *Config) { c.LLM.Timeout = 0 }, ErrInvalidLLMTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestConfigEnrichmentSwitches tests which providers run for each mode.
func TestConfigEnrichmentSwitches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode         string
		llm          bool
		wantTemplate bool
		wantRemote   bool
	}{
		{EnrichTemplate, true, true, false},
		{EnrichLLM, true, false, true},
		{EnrichLLM, false, false, false},
		{EnrichHybrid, true, true, true},
		{EnrichHybrid, false, true, false},
	}

	for _, tt := range tests {
		cfg := NewConfig()
		cfg.EnrichMode = tt.mode
		cfg.LLM.Enabled = tt.llm

		if got := cfg.TemplatesEnabled(); got != tt.wantTemplate {
			t.Errorf("mode=%s llm=%v: TemplatesEnabled=%v, want %v", tt.mode, tt.llm, got, tt.wantTemplate)
		}
		if got := cfg.RemoteEnabled(); got != tt.wantRemote {
			t.Errorf("mode=%s llm=%v: RemoteEnabled=%v, want %v", tt.mode, tt.llm, got, tt.wantRemote)
		}
	}
}

// TestFileGetSiteConfig tests merging of per-site settings.
func TestFileGetSiteConfig(t *testing.T) {
	t.Parallel()

	cf := &File{
		Defaults: SiteConfig{
			Cookie:   "default=1",
			Headers:  map[string]string{"X-Default": "yes"},
			MaxPages: 10,
		},
		Sites: map[string]SiteConfig{
			"Example.com": {
				Cookie:         "session=abc",
				Headers:        map[string]string{"Authorization": "Bearer x"},
				IgnorePatterns: []string{"/admin/*"},
			},
		},
	}

	t.Run("header names cover defaults and sites", func(t *testing.T) {
		t.Parallel()
		got := cf.HeaderNames()
		if len(got) != 2 || got[0] != "authorization" || got[1] != "x-default" {
			t.Errorf("unexpected header names: %v", got)
		}
		var nilFile *File
		if nilFile.HeaderNames() != nil {
			t.Error("expected nil for a nil file")
		}
	})

	t.Run("unknown host gets defaults", func(t *testing.T) {
		t.Parallel()
		sc := cf.GetSiteConfig("other.com")
		if sc.Cookie != "default=1" || sc.MaxPages != 10 {
			t.Errorf("unexpected defaults: %+v", sc)
		}
	})

	t.Run("known host is merged case-insensitively", func(t *testing.T) {
		t.Parallel()
		sc := cf.GetSiteConfig("example.com")
		if sc.Cookie != "session=abc" {
			t.Errorf("expected site cookie, got %q", sc.Cookie)
		}
		if sc.MaxPages != 10 {
			t.Errorf("expected default max pages to be kept, got %d", sc.MaxPages)
		}
		if sc.Headers["X-Default"] != "yes" || sc.Headers["Authorization"] != "Bearer x" {
			t.Errorf("expected merged headers, got %v", sc.Headers)
		}
		if len(sc.IgnorePatterns) != 1 {
			t.Errorf("expected ignore patterns, got %v", sc.IgnorePatterns)
		}
	})

	t.Run("merge does not mutate defaults", func(t *testing.T) {
		t.Parallel()
		_ = cf.GetSiteConfig("example.com")
		if _, ok := cf.Defaults.Headers["Authorization"]; ok {
			t.Error("defaults headers were mutated")
		}
	})

	t.Run("nil file returns zero config", func(t *testing.T) {
		t.Parallel()
		var nilFile *File
		sc := nilFile.GetSiteConfig("example.com")
		if sc.Cookie != "" || sc.MaxPages != 0 {
			t.Errorf("expected zero config, got %+v", sc)
		}
	})
}

// TestLoadConfigFile tests the LoadConfigFile function.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.siteaudit")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".siteaudit")
		content := `defaults:
  maxPages: 50
  cookie: "default=abc"
sites:
  example.com:
    maxPages: 100
    cookie: "session=xyz"
    headers:
      Authorization: "Bearer token"
    ignorePatterns:
      - "/admin/*"
    followPatterns:
      - "/blog/*"
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Defaults.MaxPages != 50 {
			t.Errorf("expected default maxPages 50, got %d", cfg.Defaults.MaxPages)
		}
		site, ok := cfg.Sites["example.com"]
		if !ok {
			t.Fatal("expected example.com in sites")
		}
		if site.MaxPages != 100 {
			t.Errorf("expected site maxPages 100, got %d", site.MaxPages)
		}
		if site.Headers["Authorization"] != "Bearer token" {
			t.Error("expected Authorization header")
		}
		if len(site.FollowPatterns) != 1 {
			t.Errorf("expected 1 follow pattern, got %d", len(site.FollowPatterns))
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".siteaudit")
		if err := os.WriteFile(configPath, []byte(`invalid: yaml: content: [}`), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("normalizes site keys to hosts", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".siteaudit")
		content := "sites:\n  https://Shop.Test:8443/:\n    maxPages: 3\n"
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.GetSiteConfig("shop.test").MaxPages != 3 {
			t.Errorf("expected site keyed by host, got %v", cfg.Sites)
		}
	})

	t.Run("rejects invalid site settings", func(t *testing.T) {
		t.Parallel()

		tests := map[string]string{
			"unknown key":    "defaults:\n  maxpages: 3\n",
			"negative pages": "defaults:\n  maxPages: -1\n",
			"bad pattern":    "sites:\n  a.test:\n    ignorePatterns: [\"[\"]\n",
			"bad header":     "sites:\n  a.test:\n    headers:\n      \"X Bad\": v\n",
			"duplicate host": "sites:\n  a.test: {}\n  https://a.test/: {}\n",
			"empty site key": "sites:\n  \"https://\": {}\n",
		}
		for name, content := range tests {
			configPath := filepath.Join(t.TempDir(), ".siteaudit")
			if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}
			if _, err := LoadConfigFile(configPath); err == nil {
				t.Errorf("%s: expected an error", name)
			}
		}
	})

	t.Run("empty file is an empty config", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".siteaudit")
		if err := os.WriteFile(configPath, nil, 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Sites == nil || len(cfg.Sites) != 0 {
			t.Errorf("expected empty sites, got %v", cfg.Sites)
		}
	})

	t.Run("initializes nil Sites map", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".siteaudit")
		if err := os.WriteFile(configPath, []byte("defaults:\n  maxPages: 5\n"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Sites == nil {
			t.Error("expected Sites map to be initialized")
		}
	})
}

// TestFindConfigFile tests the FindConfigFile function.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("defaults: {}"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if result := FindConfigFile(configPath); result != configPath {
			t.Errorf("expected %q, got %q", configPath, result)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()
		if result := FindConfigFile("/nonexistent/path/config.yaml"); result != "" {
			t.Errorf("expected empty string, got %q", result)
		}
	})
}

// TestXDGDirs tests XDG directory functions.
func TestXDGDirs(t *testing.T) {
	t.Parallel()

	for name, dir := range map[string]string{
		"data":   XDGDataDir(),
		"config": XDGConfigDir(),
		"cache":  XDGCacheDir(),
	} {
		if dir == "" {
			t.Errorf("expected non-empty XDG %s dir", name)
		}
		if filepath.Base(dir) != AppName {
			t.Errorf("expected XDG %s dir to end with %q, got %q", name, AppName, dir)
		}
	}
}
