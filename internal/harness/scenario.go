package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rulescript/internal/compiler"
)

// Scenario defines one run of a rule package and what must hold after it.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rules lists rule package directories. Their records, rules and
	// facts are merged in order.
	Rules []string `yaml:"rules"`

	// Facts are seeded after the rule packages' own facts.
	Facts []compiler.SeedEntry `yaml:"facts,omitempty"`

	// RunID names the run. Defaults to testutil.DefaultRunID.
	RunID string `yaml:"run_id,omitempty"`

	// MaxDepth and MaxSteps override the engine bounds when non-zero.
	MaxDepth int `yaml:"max_depth,omitempty"`
	MaxSteps int `yaml:"max_steps,omitempty"`

	// ExpectError, when set, requires the run to fail with an error
	// containing this text.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the finished run.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates the facts or firings of a finished run.
type Assertion struct {
	Type string `yaml:"type"`

	// FactType and Fields select facts (fact_count, fact_exists,
	// created_by, provenance). Fields is a subset match.
	FactType string         `yaml:"fact_type,omitempty"`
	Fields   map[string]any `yaml:"fields,omitempty"`

	// Count is exact for fact_count and fired.
	Count *int `yaml:"count,omitempty"`

	// Rule names the inserting rule (created_by) or the fired rule (fired).
	Rule string `yaml:"rule,omitempty"`

	// CreatorType optionally constrains the creator's type (created_by).
	CreatorType string `yaml:"creator_type,omitempty"`

	// Chain lists origin rules from the fact up to its root (provenance).
	// A fact with no creator contributes "".
	Chain []string `yaml:"chain,omitempty"`

	// Path and Content describe an output file (output).
	Path    string  `yaml:"path,omitempty"`
	Content *string `yaml:"content,omitempty"`
}

// Assertion type constants.
const (
	AssertFactCount  = "fact_count"
	AssertFactExists = "fact_exists"
	AssertCreatedBy  = "created_by"
	AssertFired      = "fired"
	AssertProvenance = "provenance"
	AssertOutput     = "output"
)

// LoadScenario reads and parses a scenario YAML file. Relative rule
// paths are resolved against the scenario file's directory.
//
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario decodes a scenario, resolving relative rule paths
// against baseDir.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve rule paths BEFORE validation
	for i, p := range scenario.Rules {
		if !filepath.IsAbs(p) && baseDir != "" {
			scenario.Rules[i] = filepath.Join(baseDir, p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Rules) == 0 {
		return fmt.Errorf("rules list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 && s.ExpectError == "" {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.MaxDepth < 0 || s.MaxSteps < 0 {
		return fmt.Errorf("max_depth and max_steps must be non-negative")
	}

	for _, dir := range s.Rules {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return fmt.Errorf("rules directory not found: %s", dir)
		}
	}

	for i, f := range s.Facts {
		if f.Type == "" {
			return fmt.Errorf("facts[%d]: type is required", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Count != nil && *a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}

	switch a.Type {
	case AssertFactCount:
		if a.FactType == "" {
			return fmt.Errorf("assertions[%d]: fact_type is required for fact_count", index)
		}
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for fact_count", index)
		}
	case AssertFactExists:
		if a.FactType == "" {
			return fmt.Errorf("assertions[%d]: fact_type is required for fact_exists", index)
		}
	case AssertCreatedBy:
		if a.FactType == "" || a.Rule == "" {
			return fmt.Errorf("assertions[%d]: fact_type and rule are required for created_by", index)
		}
	case AssertFired:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for fired", index)
		}
	case AssertProvenance:
		if a.FactType == "" || len(a.Chain) == 0 {
			return fmt.Errorf("assertions[%d]: fact_type and chain are required for provenance", index)
		}
	case AssertOutput:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for output", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
