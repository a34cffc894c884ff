// Package rules provides the in-memory representation of suggestion rules
// and shortcuts shared by the matcher, the policy engine and the loader.
//
// This package contains type definitions only. Other internal packages
// import rules; rules imports nothing internal.
//
// Key design constraints:
//   - A RuleSet is an immutable snapshot; hot reload replaces it whole
//   - Rule order is declaration order and is never re-sorted
//   - Action ids are already normalized by the loader
//   - All JSON tags use snake_case
package rules
