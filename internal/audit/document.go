package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nao1215/siteaudit/internal/model"
)

// ErrMalformedDocument is returned when a report cannot be decoded.
var ErrMalformedDocument = errors.New("malformed audit document")

// report is the subset of a Lighthouse result the tool reads.
type report struct {
	FinalURL          string          `json:"finalUrl"`
	FinalDisplayedURL string          `json:"finalDisplayedUrl"`
	RequestedURL      string          `json:"requestedUrl"`
	Audits            json.RawMessage `json:"audits"`
}

// rawAudit is one entry of the audits object.
type rawAudit struct {
	Title        string          `json:"title"`
	Group        string          `json:"group"`
	Score        *float64        `json:"score"`
	NumericValue *float64        `json:"numericValue"`
	Details      json.RawMessage `json:"details"`
}

// resolvedURL returns the URL the findings are attributed to.
func (r report) resolvedURL() string {
	switch {
	case r.FinalURL != "":
		return r.FinalURL
	case r.FinalDisplayedURL != "":
		return r.FinalDisplayedURL
	default:
		return r.RequestedURL
	}
}

// LoadDocument reads and parses a report file.
func LoadDocument(path string) (*model.AuditDocument, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is built from the output directory
	if err != nil {
		return nil, err
	}
	return ParseDocument(bytes.NewReader(data))
}

// ParseDocument decodes a Lighthouse JSON report. Audits are kept in the
// order they appear in the report.
func ParseDocument(r io.Reader) (*model.AuditDocument, error) {
	var rep report
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	rules, err := decodeAudits(rep.Audits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return model.NewAuditDocument(rep.resolvedURL(), rules), nil
}

// decodeAudits walks the audits object token by token so that the
// rule order of the report survives.
func decodeAudits(data json.RawMessage) ([]model.RuleResult, error) {
	rules := make([]model.RuleResult, 0)
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return rules, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("audits is not an object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		id, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected audit key %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("audit %s: %w", id, err)
		}

		var a rawAudit
		if err := json.Unmarshal(raw, &a); err != nil {
			// Entries of an unexpected shape carry no usable finding.
			continue
		}
		rules = append(rules, model.RuleResult{
			ID:           id,
			Title:        a.Title,
			Group:        a.Group,
			Score:        a.Score,
			NumericValue: a.NumericValue,
			Example:      firstExample(a.Details),
		})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return rules, nil
}

// firstExample returns the snippet of the first detail item's node, or
// the item's source when that is a string.
func firstExample(details json.RawMessage) string {
	if len(details) == 0 {
		return ""
	}

	var d struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(details, &d); err != nil {
		return ""
	}

	var items []json.RawMessage
	if err := json.Unmarshal(d.Items, &items); err != nil || len(items) == 0 {
		return ""
	}

	var item struct {
		Node   json.RawMessage `json:"node"`
		Source json.RawMessage `json:"source"`
	}
	if err := json.Unmarshal(items[0], &item); err != nil {
		return ""
	}

	var node struct {
		Snippet string `json:"snippet"`
	}
	if len(item.Node) > 0 && json.Unmarshal(item.Node, &node) == nil && node.Snippet != "" {
		return node.Snippet
	}

	return sourceExample(item.Source)
}

// sourceExample renders a detail item's source. Lighthouse emits either a
// plain string or a source-location object; the object yields its URL
// (with the line when known), or its compact JSON when it has no URL.
func sourceExample(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}

	var loc struct {
		URL  string `json:"url"`
		Line *int   `json:"line"`
	}
	if json.Unmarshal(raw, &loc) == nil && loc.URL != "" {
		if loc.Line != nil {
			return fmt.Sprintf("%s:%d", loc.URL, *loc.Line)
		}
		return loc.URL
	}

	var compact bytes.Buffer
	if json.Compact(&compact, raw) != nil {
		return ""
	}
	return compact.String()
}
