package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/nao1215/siteaudit/internal/config"
	"github.com/nao1215/siteaudit/internal/model"
)

// chatCompletionsPath is appended to the provider base URL.
const chatCompletionsPath = "/chat/completions"

// schemaName names the structured answer in the json_schema request.
const schemaName = "lh_finding"

var (
	// ErrEmptyAnswer is returned when a response carries no usable text.
	ErrEmptyAnswer = errors.New("empty answer")

	// ErrUnparsableAnswer is returned when no JSON object can be found in
	// the response content.
	ErrUnparsableAnswer = errors.New("answer is not a JSON object")

	// ErrNoChoices is returned when the response has no choices.
	ErrNoChoices = errors.New("response has no choices")
)

// firstObject matches the first brace-delimited block, shortest first.
var firstObject = regexp.MustCompile(`(?s)\{.*?\}`)

// stopSequences end the plain-text attempt before a code fence.
var stopSequences = []string{"```", "\n```"}

// Result is the text produced for one finding.
type Result struct {
	RootCause      string `json:"root_cause"`
	Recommendation string `json:"recommendation"`
}

// IsEmpty reports whether both fields are blank.
func (r Result) IsEmpty() bool {
	return strings.TrimSpace(r.RootCause) == "" && strings.TrimSpace(r.Recommendation) == ""
}

// Generator produces root-cause and recommendation text for a finding.
type Generator interface {
	Generate(ctx context.Context, f *model.Finding) (Result, error)
}

// RemoteError is returned when every attempt against the provider failed.
type RemoteError struct {
	// RuleID is the rule of the finding being enriched.
	RuleID string

	// Err is the failure of the last attempt.
	Err error
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote enrichment failed for %s: %v", e.RuleID, e.Err)
}

// Unwrap returns the underlying error.
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// RemoteProvider talks to an OpenAI-compatible chat completions endpoint.
type RemoteProvider struct {
	client      *resty.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

// RemoteOption configures a RemoteProvider.
type RemoteOption func(*RemoteProvider)

// WithRemoteLogger sets the logger. resty's own messages go to it too.
func WithRemoteLogger(logger *slog.Logger) RemoteOption {
	return func(p *RemoteProvider) {
		p.logger = logger
	}
}

// NewRemoteProvider creates a provider for the endpoint in cfg.
func NewRemoteProvider(cfg config.LLMConfig, opts ...RemoteOption) *RemoteProvider {
	p := &RemoteProvider{
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	client.SetLogger(newRestyLogger(p.logger))
	p.client = client

	return p
}

// chatMessage is one message of a chat request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the request body of both attempts.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Stop           []string        `json:"stop,omitempty"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

// chatResponse is the subset of the response the provider reads.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// answerSchema constrains the structured attempt.
func answerSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"root_cause":     map[string]string{"type": "string"},
			"recommendation": map[string]string{"type": "string"},
		},
		"required":             []string{"root_cause", "recommendation"},
		"additionalProperties": false,
	}
}

// Generate asks the provider about f. The first attempt requests a
// json_schema response; any failure falls back to a plain-text request
// with stop sequences. When both fail it returns a *RemoteError.
func (p *RemoteProvider) Generate(ctx context.Context, f *model.Finding) (Result, error) {
	prompt := BuildPrompt(f)

	structured := p.request(prompt + schemaSuffix)
	structured.ResponseFormat = &responseFormat{
		Type:       "json_schema",
		JSONSchema: jsonSchema{Name: schemaName, Schema: answerSchema()},
	}
	res, err := p.attempt(ctx, structured)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return Result{}, &RemoteError{RuleID: f.RuleID, Err: ctx.Err()}
	}
	p.logger.Debug("structured attempt failed, retrying as plain text",
		"rule_id", f.RuleID,
		"error", err,
	)

	plain := p.request(prompt + plainSuffix)
	plain.Stop = stopSequences
	res, err = p.attempt(ctx, plain)
	if err != nil {
		return Result{}, &RemoteError{RuleID: f.RuleID, Err: err}
	}
	return res, nil
}

func (p *RemoteProvider) request(user string) chatRequest {
	return chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPolicy},
			{Role: "user", Content: user},
		},
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}
}

// attempt sends one request and parses the answer.
func (p *RemoteProvider) attempt(ctx context.Context, body chatRequest) (Result, error) {
	var out chatResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		ForceContentType("application/json").
		Post(chatCompletionsPath)
	if err != nil {
		return Result{}, fmt.Errorf("failed to call provider: %w", err)
	}
	if resp.IsError() {
		return Result{}, fmt.Errorf("provider returned status %d", resp.StatusCode())
	}
	if len(out.Choices) == 0 {
		return Result{}, ErrNoChoices
	}

	content, err := parseContent(out.Choices[0].Message.Content)
	if err != nil {
		return Result{}, err
	}
	return extractAnswer(content)
}

// parseContent accepts a string or a list of chunks. A chunk is a string
// or an object with a "text" field. Chunks are joined with newlines.
func parseContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", ErrEmptyAnswer
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var chunks []json.RawMessage
	if err := json.Unmarshal(raw, &chunks); err != nil {
		return "", fmt.Errorf("unexpected content shape: %w", err)
	}
	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		var text string
		if err := json.Unmarshal(chunk, &text); err == nil {
			parts = append(parts, text)
			continue
		}
		var obj struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(chunk, &obj); err == nil {
			parts = append(parts, obj.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// extractAnswer parses content as a JSON answer, falling back to the first
// brace-delimited block inside it.
func extractAnswer(content string) (Result, error) {
	content = strings.TrimSpace(content)

	var res Result
	if err := json.Unmarshal([]byte(content), &res); err != nil {
		block := firstObject.FindString(content)
		if block == "" {
			return Result{}, ErrUnparsableAnswer
		}
		res = Result{}
		if err := json.Unmarshal([]byte(block), &res); err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrUnparsableAnswer, err)
		}
	}

	res.RootCause = strings.TrimSpace(res.RootCause)
	res.Recommendation = strings.TrimSpace(res.Recommendation)
	if res.IsEmpty() {
		return Result{}, ErrEmptyAnswer
	}
	return res, nil
}

// restyLogger forwards resty messages to slog.
type restyLogger struct {
	logger *slog.Logger
}

func newRestyLogger(logger *slog.Logger) resty.Logger {
	return &restyLogger{logger: logger}
}

// Errorf logs a message at error level.
func (l *restyLogger) Errorf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...), "component", "resty")
}

// Warnf logs a message at warning level.
func (l *restyLogger) Warnf(format string, v ...any) {
	l.logger.Warn(fmt.Sprintf(format, v...), "component", "resty")
}

// Infof logs a message at info level.
func (l *restyLogger) Infof(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...), "component", "resty")
}

// Debugf logs a message at debug level.
func (l *restyLogger) Debugf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "resty")
}
