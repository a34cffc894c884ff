package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/shortcut-sage/internal/config"
	"github.com/roach88/shortcut-sage/internal/event"
)

// Scenario is a scripted event sequence with expected suggestions.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// WindowSeconds is the EventStore window. 0 means the default.
	WindowSeconds float64 `yaml:"window_seconds,omitempty"`

	// TopN limits suggestions per step. nil means the default.
	TopN *int `yaml:"top_n,omitempty"`

	// Rules use the rules.yaml entry schema.
	Rules []config.RuleDoc `yaml:"rules"`

	// Shortcuts use the shortcuts.yaml entry schema.
	Shortcuts []config.ShortcutDoc `yaml:"shortcuts,omitempty"`

	// Steps are processed in order.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated over the whole trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one event fed to the pipeline.
type Step struct {
	// AtMS is the offset from the scenario epoch in milliseconds.
	AtMS int64 `yaml:"at_ms"`

	// Type is the event type. Empty means "test".
	Type string `yaml:"type,omitempty"`

	// Action is the event's action id.
	Action string `yaml:"action"`

	// Metadata is passed through to the event.
	Metadata map[string]string `yaml:"metadata,omitempty"`

	// Expect is the exact ordered list of suggested actions. nil skips the
	// check.
	Expect []string `yaml:"expect,omitempty"`
}

// Assertion validates the trace as a whole.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Action is used by suggested, never_suggested and suggestion_count.
	Action string `yaml:"action,omitempty"`

	// Rule is used by rule_count.
	Rule string `yaml:"rule,omitempty"`

	// Count is used by suggestion_count and rule_count.
	Count int `yaml:"count,omitempty"`

	// Actions is used by suggestion_order.
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertSuggested       = "suggested"
	AssertNeverSuggested  = "never_suggested"
	AssertSuggestionCount = "suggestion_count"
	AssertSuggestionOrder = "suggestion_order"
	AssertRuleCount       = "rule_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "expects:" vs "expect:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
// Rule and shortcut entries are validated by the config schema at Run.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.WindowSeconds < 0 {
		return fmt.Errorf("window_seconds must be positive")
	}

	if s.TopN != nil && *s.TopN < 0 {
		return fmt.Errorf("top_n must be non-negative")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	var last int64
	for i, step := range s.Steps {
		if step.Action == "" {
			return fmt.Errorf("steps[%d]: action is required", i)
		}
		if step.AtMS < last {
			return fmt.Errorf("steps[%d]: at_ms must not decrease", i)
		}
		last = step.AtMS
		if step.Type != "" && !event.Type(step.Type).IsKnown() {
			return fmt.Errorf("steps[%d]: unknown event type %q", i, step.Type)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
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

	switch a.Type {
	case AssertSuggested, AssertNeverSuggested:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for %s", index, a.Type)
		}
	case AssertSuggestionCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for suggestion_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for suggestion_count", index)
		}
	case AssertSuggestionOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for suggestion_order", index)
		}
	case AssertRuleCount:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for rule_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for rule_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
