package rules

// RuleSet is an immutable, ordered snapshot of rules.
//
// NewRuleSet deep-copies its input so later mutation by the caller cannot
// leak into a snapshot readers may already hold.
type RuleSet struct {
	rules   []Rule
	version string
}

// NewRuleSet creates a snapshot of rules in declaration order.
// version is informational (e.g. the config document version or a hash).
func NewRuleSet(version string, rules []Rule) *RuleSet {
	cp := make([]Rule, len(rules))
	for i, r := range rules {
		cp[i] = r.clone()
	}
	return &RuleSet{rules: cp, version: version}
}

// EmptyRuleSet returns a snapshot with no rules.
func EmptyRuleSet() *RuleSet {
	return &RuleSet{}
}

// Rules returns the rules in declaration order.
// The returned slice must be treated as read-only.
func (s *RuleSet) Rules() []Rule {
	if s == nil {
		return nil
	}
	return s.rules
}

// Len returns the number of rules.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Version returns the informational version string.
func (s *RuleSet) Version() string {
	if s == nil {
		return ""
	}
	return s.version
}

// Lookup returns the rule with the given name.
func (s *RuleSet) Lookup(name string) (Rule, bool) {
	for _, r := range s.Rules() {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}

func (r Rule) clone() Rule {
	out := r
	out.Context.Pattern = append(Pattern(nil), r.Context.Pattern...)
	out.Suggest = append([]Suggestion(nil), r.Suggest...)
	return out
}
