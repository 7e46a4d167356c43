package model

import (
	"encoding/json"
	"testing"
)

// TestSeverityString tests the String method of Severity.
func TestSeverityString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		severity Severity
		expected string
	}{
		{SeverityLow, "low"},
		{SeverityMedium, "medium"},
		{SeverityCritical, "critical"},
		{Severity(999), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()
			if tc.severity.String() != tc.expected {
				t.Errorf("got %q, expected %q", tc.severity.String(), tc.expected)
			}
		})
	}
}

// TestSeverityLabel tests the title-cased labels used in reports.
func TestSeverityLabel(t *testing.T) {
	t.Parallel()

	if got := SeverityCritical.Label(); got != "Critical" {
		t.Errorf("expected Critical, got %q", got)
	}
	if got := SeverityMedium.Label(); got != "Medium" {
		t.Errorf("expected Medium, got %q", got)
	}
	if got := SeverityLow.Label(); got != "Low" {
		t.Errorf("expected Low, got %q", got)
	}
}

// TestSeverityRank tests ordering used by the enrichment floor.
func TestSeverityRank(t *testing.T) {
	t.Parallel()

	if SeverityLow.Rank() != 0 || SeverityMedium.Rank() != 1 || SeverityCritical.Rank() != 2 {
		t.Fatalf("unexpected ranks: low=%d medium=%d critical=%d",
			SeverityLow.Rank(), SeverityMedium.Rank(), SeverityCritical.Rank())
	}

	t.Run("critical is at least medium", func(t *testing.T) {
		t.Parallel()
		if !SeverityCritical.AtLeast(SeverityMedium) {
			t.Error("expected critical >= medium")
		}
	})

	t.Run("low is not at least medium", func(t *testing.T) {
		t.Parallel()
		if SeverityLow.AtLeast(SeverityMedium) {
			t.Error("expected low < medium")
		}
	})

	t.Run("medium is at least medium", func(t *testing.T) {
		t.Parallel()
		if !SeverityMedium.AtLeast(SeverityMedium) {
			t.Error("expected medium >= medium")
		}
	})
}

// TestParseSeverity tests parsing of level names.
func TestParseSeverity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected Severity
		wantErr  bool
	}{
		{"low", SeverityLow, false},
		{"medium", SeverityMedium, false},
		{"critical", SeverityCritical, false},
		{"  Critical ", SeverityCritical, false},
		{"MEDIUM", SeverityMedium, false},
		{"high", SeverityLow, true},
		{"", SeverityLow, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := ParseSeverity(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

// TestSeverityJSON tests that severities are serialized by name.
func TestSeverityJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(struct {
		S Severity `json:"s"`
	}{S: SeverityCritical})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"s":"critical"}` {
		t.Errorf("unexpected JSON: %s", data)
	}

	var decoded struct {
		S Severity `json:"s"`
	}
	if err := json.Unmarshal([]byte(`{"s":"medium"}`), &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.S != SeverityMedium {
		t.Errorf("expected medium, got %v", decoded.S)
	}

	if err := json.Unmarshal([]byte(`{"s":"bogus"}`), &decoded); err == nil {
		t.Error("expected error for unknown severity")
	}
}
