package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nao1215/siteaudit/internal/model"
)

// Remote provider defaults. They apply only to fields left unset by flags
// and the environment.
const (
	// DefaultLLMBaseURL points at a local OpenAI-compatible server.
	DefaultLLMBaseURL = "http://localhost:1234/v1"

	// DefaultLLMModel is the model requested from the provider.
	DefaultLLMModel = "llama-3.2-3b-instruct"

	// DefaultLLMCacheFile is the cache file name inside the output directory.
	DefaultLLMCacheFile = "llm_cache.jsonl"

	// DefaultLLMRate is the pause between consecutive remote calls.
	DefaultLLMRate = 400 * time.Millisecond

	// DefaultLLMMinSeverity is the enrichment floor.
	DefaultLLMMinSeverity = "medium"

	// DefaultLLMTop is the per-page candidate cap.
	DefaultLLMTop = 50

	// DefaultLLMTimeout bounds a single provider request.
	DefaultLLMTimeout = 45 * time.Second

	// DefaultLLMMaxTokens bounds the generated answer.
	DefaultLLMMaxTokens = 200
)

// Environment variables that supply provider defaults.
const (
	EnvLLMBaseURL = "LLM_BASE_URL"
	EnvLLMModel   = "LLM_MODEL"
	EnvLLMAPIKey  = "LLM_API_KEY" //nolint:gosec // variable name, not a credential
	EnvLLMCache   = "LLM_CACHE"
)

// Remote enrichment modes.
const (
	// LLMModeRow enriches every candidate finding separately.
	LLMModeRow = "row"

	// LLMModeRule enriches one representative per rule id and broadcasts
	// the answer to findings sharing page, rule and severity.
	LLMModeRule = "rule"
)

// LLMConfig configures the remote enrichment provider.
// It is built once at startup and handed to the enrichment engine.
type LLMConfig struct {
	// Enabled allows remote calls at all.
	Enabled bool

	// BaseURL is the OpenAI-compatible API root (e.g. http://localhost:1234/v1).
	BaseURL string

	// Model is the model name sent with each request.
	Model string

	// APIKey is sent as a bearer token when set. Remote (non-local)
	// endpoints are skipped without it.
	APIKey string

	// CachePath is the append-only cache file.
	CachePath string

	// Rate is the pause between consecutive network calls.
	Rate time.Duration

	// MinSeverity is the lowest severity eligible for remote enrichment.
	MinSeverity string

	// Top caps candidates per page; zero or negative disables the cap.
	Top int

	// Mode is row or rule.
	Mode string

	// MaxCalls caps calls per page after Top; zero disables the cap.
	MaxCalls int

	// Timeout bounds a single request.
	Timeout time.Duration

	// MaxTokens bounds the generated answer.
	MaxTokens int

	// Temperature is the sampling temperature.
	Temperature float64
}

// NewLLMConfig returns an LLMConfig with numeric defaults set and the
// endpoint fields left empty for ApplyDefaults.
func NewLLMConfig() LLMConfig {
	return LLMConfig{
		Rate:        DefaultLLMRate,
		MinSeverity: DefaultLLMMinSeverity,
		Top:         DefaultLLMTop,
		Mode:        LLMModeRow,
		Timeout:     DefaultLLMTimeout,
		MaxTokens:   DefaultLLMMaxTokens,
	}
}

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// ApplyDefaults fills endpoint fields that are still empty, first from
// the environment via lookup and then from the built-in defaults.
// The cache defaults to outDir/llm_cache.jsonl.
func (c *LLMConfig) ApplyDefaults(lookup LookupFunc, outDir string) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	fill := func(field *string, env, fallback string) {
		if *field != "" {
			return
		}
		if v, ok := lookup(env); ok && v != "" {
			*field = v
			return
		}
		*field = fallback
	}

	fill(&c.BaseURL, EnvLLMBaseURL, DefaultLLMBaseURL)
	fill(&c.Model, EnvLLMModel, DefaultLLMModel)
	fill(&c.APIKey, EnvLLMAPIKey, "")
	fill(&c.CachePath, EnvLLMCache, filepath.Join(outDir, DefaultLLMCacheFile))
}

// IsLocal reports whether BaseURL points at the local machine.
func (c LLMConfig) IsLocal() bool {
	return strings.HasPrefix(c.BaseURL, "http://localhost") ||
		strings.HasPrefix(c.BaseURL, "http://127.0.0.1")
}

// CanCallRemote reports whether a call may be attempted: a local endpoint
// needs no credential, anything else does.
func (c LLMConfig) CanCallRemote() bool {
	return c.APIKey != "" || c.IsLocal()
}

// RuleDedup reports whether candidates are collapsed per rule id.
func (c LLMConfig) RuleDedup() bool {
	return c.Mode == LLMModeRule
}

// Floor returns the parsed minimum severity.
func (c LLMConfig) Floor() (model.Severity, error) {
	return model.ParseSeverity(c.MinSeverity)
}

// Validate checks the provider settings.
func (c LLMConfig) Validate() error {
	if c.Mode != LLMModeRow && c.Mode != LLMModeRule {
		return ErrInvalidLLMMode
	}
	if _, err := c.Floor(); err != nil {
		return ErrInvalidMinSeverity
	}
	if c.Rate < 0 {
		return ErrInvalidLLMRate
	}
	if c.MaxCalls < 0 {
		return ErrInvalidLLMMaxCalls
	}
	if c.Timeout <= 0 {
		return ErrInvalidLLMTimeout
	}
	return nil
}
