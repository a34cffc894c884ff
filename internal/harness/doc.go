// Package harness runs scripted event scenarios through a fresh pipeline
// and checks the suggestions produced at every step.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: after_show_desktop
//	description: "Showing the desktop suggests the overview"
//	window_seconds: 3
//	top_n: 3
//	rules:            # same schema as rules.yaml entries
//	  - name: after_show_desktop
//	    context: { type: event_sequence, pattern: show_desktop }
//	    suggest: [{ action: overview, priority: 80 }]
//	    cooldown: 5
//	shortcuts:        # optional, same schema as shortcuts.yaml entries
//	  - { action: overview, key: Meta+W, description: Show all windows }
//	steps:
//	  - at_ms: 0
//	    action: show_desktop
//	    expect: [overview]
//	  - at_ms: 2000
//	    action: show_desktop
//	    expect: []
//	assertions:
//	  - type: suggestion_count
//	    action: overview
//	    count: 1
//
// Each step's at_ms offset from a fixed epoch is used both as the event
// timestamp and as "now", so runs are deterministic. expect compares the
// suggested actions in order; omit it to skip the check, use [] to require
// no suggestions.
//
// # Assertion Types
//
//   - suggested: the action is suggested at least once
//   - never_suggested: the action is never suggested
//   - suggestion_count: the action is suggested exactly count times
//   - suggestion_order: the actions are first suggested in the given order
//   - rule_count: the rule matches on exactly count steps
//
// Traces can be compared against golden files with RunWithGolden.
package harness
