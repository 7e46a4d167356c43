package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nao1215/siteaudit/internal/model"
)

// DefaultRulesFile is the rules file name searched for by FindRulesFile.
const DefaultRulesFile = "rules.yaml"

// thresholdPrefix is the optional prefix of a threshold expression.
const thresholdPrefix = ">="

// ValueKind tells how a policy value was written in the rules file.
type ValueKind int

const (
	// ValueUnset means the key was absent or null.
	ValueUnset ValueKind = iota

	// ValueBool means the key held true or false.
	ValueBool

	// ValueNumber means the key held a number or a ">=N" expression.
	ValueNumber
)

// PolicyValue is the value of a crit or med key.
type PolicyValue struct {
	Kind   ValueKind
	Flag   bool
	Number float64
}

// IsTrue reports whether the value is the boolean true.
func (v PolicyValue) IsTrue() bool {
	return v.Kind == ValueBool && v.Flag
}

// Threshold returns the numeric threshold, if the value is one.
func (v PolicyValue) Threshold() (float64, bool) {
	return v.Number, v.Kind == ValueNumber
}

// UnmarshalYAML decodes booleans, numbers and ">=N" strings.
func (v *PolicyValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: threshold must be a boolean, a number or a \">=N\" string", node.Line)
	}

	switch node.ShortTag() {
	case "!!null":
		*v = PolicyValue{}
		return nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*v = PolicyValue{Kind: ValueBool, Flag: b}
		return nil
	}

	n, err := ParseThreshold(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*v = PolicyValue{Kind: ValueNumber, Number: n}
	return nil
}

// ParseThreshold reads a threshold expression: a bare number or ">=N".
func ParseThreshold(expr string) (float64, error) {
	s := strings.TrimSpace(expr)
	s = strings.TrimSpace(strings.TrimPrefix(s, thresholdPrefix))
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid threshold %q: want a number or \">=N\"", expr)
	}
	return n, nil
}

// Policy is the severity policy of one rule id.
// It is either a boolean shorthand or a mapping with crit and med keys.
type Policy struct {
	// Shorthand is set when the policy was written as a plain boolean.
	Shorthand *bool

	// Crit is the critical threshold or flag.
	Crit PolicyValue

	// Med is the medium threshold or flag.
	Med PolicyValue
}

// UnmarshalYAML decodes either shape of a policy.
func (p *Policy) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.ShortTag() != "!!bool" {
			return fmt.Errorf("line %d: policy must be a boolean or a mapping with crit/med", node.Line)
		}
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*p = Policy{Shorthand: &b}
		return nil
	case yaml.MappingNode:
		var raw struct {
			Crit PolicyValue `yaml:"crit"`
			Med  PolicyValue `yaml:"med"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		*p = Policy{Crit: raw.Crit, Med: raw.Med}
		return nil
	default:
		return fmt.Errorf("line %d: policy must be a boolean or a mapping with crit/med", node.Line)
	}
}

// IsShorthandTrue reports whether the policy is the plain boolean true.
func (p Policy) IsShorthandTrue() bool {
	return p.Shorthand != nil && *p.Shorthand
}

// HasThresholdKeys reports whether crit or med was given.
func (p Policy) HasThresholdKeys() bool {
	return p.Crit.Kind != ValueUnset || p.Med.Kind != ValueUnset
}

// Rules is the parsed severity rules file.
//
//	defaults: low
//	rules:
//	  largest-contentful-paint: { crit: ">=4000", med: ">=2500" }
//	  color-contrast: true
//	  meta-description: { med: true }
type Rules struct {
	// Default is the level used when no policy decides. It defaults to low.
	Default model.Severity

	// Policies maps rule id to policy.
	Policies map[string]Policy
}

// Policy returns the policy for a rule id.
func (r *Rules) Policy(ruleID string) (Policy, bool) {
	if r == nil {
		return Policy{}, false
	}
	p, ok := r.Policies[ruleID]
	return p, ok
}

// rulesFile mirrors the YAML layout.
type rulesFile struct {
	Defaults string            `yaml:"defaults"`
	Rules    map[string]Policy `yaml:"rules"`
}

// ParseRules decodes a rules document. An empty document yields no
// policies and a low default.
func ParseRules(data []byte) (*Rules, error) {
	var rf rulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, err
	}

	rules := &Rules{
		Default:  model.SeverityLow,
		Policies: rf.Rules,
	}
	if rules.Policies == nil {
		rules.Policies = make(map[string]Policy)
	}

	if strings.TrimSpace(rf.Defaults) != "" {
		level, err := model.ParseSeverity(rf.Defaults)
		if err != nil {
			return nil, fmt.Errorf("defaults: %w", err)
		}
		rules.Default = level
	}

	return rules, nil
}

// LoadRules reads and parses the rules file at path.
// Every failure is returned as a *RulesError.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return nil, &RulesError{Path: path, Err: ErrNoRulesFile}
	}

	data, err := os.ReadFile(path) //nolint:gosec // User-provided rules path is intentional
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &RulesError{Path: path, Err: ErrRulesNotFound}
		}
		return nil, &RulesError{Path: path, Err: err}
	}

	rules, err := ParseRules(data)
	if err != nil {
		return nil, &RulesError{Path: path, Err: err}
	}
	return rules, nil
}

// FindRulesFile returns the rules file to use. An explicit path is
// returned as is (LoadRules reports it if missing). Otherwise the search
// order is ./rules.yaml, ./config/rules.yaml and the XDG config directory.
// It returns "" when nothing is found.
func FindRulesFile(rulesPath string) string {
	if rulesPath != "" {
		return rulesPath
	}

	return firstExisting(
		DefaultRulesFile,
		filepath.Join("config", DefaultRulesFile),
		filepath.Join(XDGConfigDir(), DefaultRulesFile),
	)
}
