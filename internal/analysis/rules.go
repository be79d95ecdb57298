package analysis

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// DefaultMaxActions caps the actions of one analysis run.
const DefaultMaxActions = 5

// Category is one keyword category of the rule-based analyzer.
type Category struct {
	// Name identifies the category; incidents in the same category are
	// considered similar.
	Name string `yaml:"name"`
	// Keywords are matched case-insensitively as substrings.
	Keywords []string `yaml:"keywords,omitempty"`
	// RootCause may reference {errors} and {warnings}.
	RootCause string   `yaml:"root_cause"`
	Actions   []string `yaml:"actions"`
}

// Rules configures the rule-based analyzer.
type Rules struct {
	MaxActions int        `yaml:"max_actions,omitempty"`
	Categories []Category `yaml:"categories"`
	// Generic is used when no category matches.
	Generic Category `yaml:"generic"`
}

// Validate checks the rules and fills defaults.
func (r *Rules) Validate() error {
	if r.MaxActions < 0 {
		return fmt.Errorf("max_actions must not be negative")
	}
	if r.MaxActions == 0 {
		r.MaxActions = DefaultMaxActions
	}
	seen := make(map[string]bool)
	for i := range r.Categories {
		c := &r.Categories[i]
		if c.Name == "" {
			return fmt.Errorf("category at index %d: name is required", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("category %q: duplicate name", c.Name)
		}
		seen[c.Name] = true
		if len(c.Keywords) == 0 {
			return fmt.Errorf("category %q: at least one keyword is required", c.Name)
		}
		for j, k := range c.Keywords {
			c.Keywords[j] = strings.ToLower(strings.TrimSpace(k))
		}
		if c.RootCause == "" {
			return fmt.Errorf("category %q: root_cause is required", c.Name)
		}
	}
	if r.Generic.Name == "" {
		r.Generic.Name = "generic"
	}
	if r.Generic.RootCause == "" {
		return fmt.Errorf("generic: root_cause is required")
	}
	return nil
}

// Match returns the first category with a keyword contained in text, or
// the generic category.
func (r *Rules) Match(text string) *Category {
	text = strings.ToLower(text)
	for i := range r.Categories {
		for _, k := range r.Categories[i].Keywords {
			if strings.Contains(text, k) {
				return &r.Categories[i]
			}
		}
	}
	return &r.Generic
}

// expandRootCause substitutes event counts into a category's root cause.
func (c *Category) expandRootCause(errs, warnings int) string {
	return strings.NewReplacer(
		"{errors}", strconv.Itoa(errs),
		"{warnings}", strconv.Itoa(warnings),
	).Replace(c.RootCause)
}

// DefaultRules returns the built-in rules.
func DefaultRules() *Rules {
	r, err := LoadRulesFromBytes(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("analysis: invalid built-in rules: %v", err))
	}
	return r
}

// LoadRulesFromFile loads rules from a YAML file.
func LoadRulesFromFile(path string) (*Rules, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()

	return LoadRules(f)
}

// LoadRules loads rules from a reader.
func LoadRules(r io.Reader) (*Rules, error) {
	var rules Rules
	if err := yaml.NewDecoder(r).Decode(&rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	return &rules, nil
}

// LoadRulesFromBytes loads rules from YAML bytes.
func LoadRulesFromBytes(data []byte) (*Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	return &rules, nil
}
