// Package config loads and validates the rule and shortcut documents.
//
// Loading runs in three steps: strict YAML decoding (unknown fields are
// rejected), validation and defaulting against an embedded CUE schema,
// then cross-item checks that the schema cannot express (unique rule
// names, unique shortcut actions).
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/shortcut-sage/internal/event"
	"github.com/roach88/shortcut-sage/internal/rules"
)

const (
	// Version is the only accepted document version.
	Version = "1.0"

	RulesFile     = "rules.yaml"
	ShortcutsFile = "shortcuts.yaml"
)

//go:embed schema.cue
var schemaSource string

// Pattern accepts either a single action id or a list of action ids.
type Pattern []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Pattern) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*p = Pattern{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*p = Pattern(list)
		return nil
	default:
		return fmt.Errorf("line %d: pattern must be a string or a list of strings", node.Line)
	}
}

// RulesDocument is the decoded form of rules.yaml. An omitted version
// defaults to Version.
type RulesDocument struct {
	Version string    `yaml:"version" json:"version,omitempty"`
	Rules   []RuleDoc `yaml:"rules" json:"rules"`
}

// RuleDoc is one rule entry. Optional numeric fields are pointers so the
// schema can tell "absent" from zero.
type RuleDoc struct {
	Name     string          `yaml:"name" json:"name"`
	Context  ContextDoc      `yaml:"context" json:"context"`
	Suggest  []SuggestionDoc `yaml:"suggest" json:"suggest"`
	Cooldown *int            `yaml:"cooldown,omitempty" json:"cooldown,omitempty"`
}

// ContextDoc describes when a rule matches.
type ContextDoc struct {
	Type    string  `yaml:"type" json:"type"`
	Pattern Pattern `yaml:"pattern" json:"pattern"`
	Window  *int    `yaml:"window,omitempty" json:"window,omitempty"`
}

// SuggestionDoc is one suggestion template.
type SuggestionDoc struct {
	Action   string `yaml:"action" json:"action"`
	Priority *int   `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// ShortcutsDocument is the decoded form of shortcuts.yaml.
type ShortcutsDocument struct {
	Version   string        `yaml:"version" json:"version,omitempty"`
	Shortcuts []ShortcutDoc `yaml:"shortcuts" json:"shortcuts"`
}

// ShortcutDoc is one shortcut entry.
type ShortcutDoc struct {
	Action      string `yaml:"action" json:"action"`
	Key         string `yaml:"key" json:"key"`
	Description string `yaml:"description" json:"description"`
	Category    string `yaml:"category,omitempty" json:"category,omitempty"`
}

// Config is a validated pair of documents.
type Config struct {
	Rules     *rules.RuleSet
	Shortcuts []rules.Shortcut
}

// Load reads rules.yaml and shortcuts.yaml from dir.
func Load(dir string) (*Config, error) {
	set, err := LoadRules(filepath.Join(dir, RulesFile))
	if err != nil {
		return nil, err
	}
	shortcuts, err := LoadShortcuts(filepath.Join(dir, ShortcutsFile))
	if err != nil {
		return nil, err
	}
	return &Config{Rules: set, Shortcuts: shortcuts}, nil
}

// LoadRules reads and validates a rules file.
func LoadRules(path string) (*rules.RuleSet, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRules(data, path)
}

// LoadShortcuts reads and validates a shortcuts file.
func LoadShortcuts(path string) ([]rules.Shortcut, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return ParseShortcuts(data, path)
}

// ParseRules validates a rules document. name is used in error messages.
func ParseRules(data []byte, name string) (*rules.RuleSet, error) {
	var doc RulesDocument
	if err := decodeStrict(data, name, &doc); err != nil {
		return nil, err
	}
	return BuildRules(doc, name)
}

// BuildRules validates an already-decoded rules document and converts it
// into a RuleSet. Scenario files embed rule documents and use this
// directly.
func BuildRules(doc RulesDocument, name string) (*rules.RuleSet, error) {
	doc.Rules = slices.Clone(doc.Rules)
	for i := range doc.Rules {
		r := &doc.Rules[i]
		r.Context.Pattern = slices.Clone(r.Context.Pattern)
		r.Suggest = slices.Clone(r.Suggest)
		for j, a := range r.Context.Pattern {
			r.Context.Pattern[j] = event.NormalizeAction(a)
		}
		for j := range r.Suggest {
			r.Suggest[j].Action = event.NormalizeAction(r.Suggest[j].Action)
		}
	}

	var checked RulesDocument
	if err := validateSchema(doc, "#Rules", name, &checked); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(checked.Rules))
	out := make([]rules.Rule, 0, len(checked.Rules))
	for i, r := range checked.Rules {
		if seen[r.Name] {
			return nil, &ConfigError{
				Code:    ErrCodeDuplicate,
				File:    name,
				Field:   fmt.Sprintf("rules[%d].name", i),
				Message: fmt.Sprintf("duplicate rule name %q", r.Name),
			}
		}
		seen[r.Name] = true
		out = append(out, r.toRule())
	}

	return rules.NewRuleSet(checked.Version, out), nil
}

// ParseShortcuts validates a shortcuts document.
func ParseShortcuts(data []byte, name string) ([]rules.Shortcut, error) {
	var doc ShortcutsDocument
	if err := decodeStrict(data, name, &doc); err != nil {
		return nil, err
	}
	return BuildShortcuts(doc, name)
}

// BuildShortcuts validates an already-decoded shortcuts document.
func BuildShortcuts(doc ShortcutsDocument, name string) ([]rules.Shortcut, error) {
	doc.Shortcuts = slices.Clone(doc.Shortcuts)
	for i := range doc.Shortcuts {
		doc.Shortcuts[i].Action = event.NormalizeAction(doc.Shortcuts[i].Action)
	}

	var checked ShortcutsDocument
	if err := validateSchema(doc, "#Shortcuts", name, &checked); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(checked.Shortcuts))
	out := make([]rules.Shortcut, 0, len(checked.Shortcuts))
	for i, s := range checked.Shortcuts {
		if seen[s.Action] {
			return nil, &ConfigError{
				Code:    ErrCodeDuplicate,
				File:    name,
				Field:   fmt.Sprintf("shortcuts[%d].action", i),
				Message: fmt.Sprintf("duplicate shortcut action %q", s.Action),
			}
		}
		seen[s.Action] = true
		out = append(out, rules.Shortcut{
			Action:      s.Action,
			Key:         s.Key,
			Description: s.Description,
			Category:    s.Category,
		})
	}
	return out, nil
}

func (r RuleDoc) toRule() rules.Rule {
	out := rules.Rule{
		Name: r.Name,
		Context: rules.Context{
			Type:    rules.ContextType(r.Context.Type),
			Pattern: rules.Pattern(r.Context.Pattern),
		},
		Suggest: make([]rules.Suggestion, len(r.Suggest)),
	}
	// Schema defaulting guarantees these are set.
	if r.Context.Window != nil {
		out.Context.Window = *r.Context.Window
	}
	if r.Cooldown != nil {
		out.Cooldown = time.Duration(*r.Cooldown) * time.Second
	}
	for i, s := range r.Suggest {
		out.Suggest[i] = rules.Suggestion{Action: s.Action}
		if s.Priority != nil {
			out.Suggest[i].Priority = *s.Priority
		}
	}
	return out
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{
			Code:    ErrCodeNotFound,
			File:    path,
			Message: "cannot read config file",
			Err:     err,
		}
	}
	return data, nil
}

// decodeStrict decodes a single YAML document, rejecting unknown fields.
func decodeStrict(data []byte, name string, out any) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return &ConfigError{Code: ErrCodeEmpty, File: name, Message: "document is empty"}
		}
		return &ConfigError{Code: ErrCodeParse, File: name, Message: err.Error(), Err: err}
	}
	return nil
}

// validateSchema unifies doc with the named schema definition and decodes
// the defaulted result into out.
func validateSchema(doc any, definition, name string, out any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return &ConfigError{Code: ErrCodeParse, File: name, Message: err.Error(), Err: err}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling embedded schema: %w", err)
	}

	data := ctx.CompileBytes(raw, cue.Filename(name))
	v := schema.LookupPath(cue.ParsePath(definition)).Unify(data)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return schemaError(err, name)
	}
	if err := v.Decode(out); err != nil {
		return schemaError(err, name)
	}
	return nil
}

// schemaError reports the first CUE error with its field path.
func schemaError(err error, name string) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ConfigError{Code: ErrCodeSchema, File: name, Message: err.Error(), Err: err}
	}
	first := errs[0]
	format, args := first.Msg()
	return &ConfigError{
		Code:    ErrCodeSchema,
		File:    name,
		Field:   cuePath(first.Path()),
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

func cuePath(path []string) string {
	var buf bytes.Buffer
	for _, p := range path {
		if p == "" {
			continue
		}
		if p[0] >= '0' && p[0] <= '9' {
			fmt.Fprintf(&buf, "[%s]", p)
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte('.')
		}
		buf.WriteString(p)
	}
	return buf.String()
}
