package matcher

import (
	"github.com/roach88/shortcut-sage/internal/features"
	"github.com/roach88/shortcut-sage/internal/rules"
)

// matchContext dispatches on the closed set of context types.
//
// recent_window and desktop_state currently alias event_sequence: they do
// not consult event metadata yet. Window/app-aware matching belongs here
// once its semantics are defined.
func matchContext(ctx rules.Context, f features.Features) bool {
	switch ctx.Type {
	case rules.ContextEventSequence:
		return matchEventSequence(ctx, f)
	case rules.ContextRecentWindow:
		return matchRecentWindow(ctx, f)
	case rules.ContextDesktopState:
		return matchDesktopState(ctx, f)
	default:
		return false
	}
}

// matchEventSequence checks whether the pattern appears as a contiguous,
// ordered run within the last Window recent actions.
//
// Matching is token-wise: "tile" never matches inside "tile_left". A
// single-action pattern is satisfied by any of the last Window actions.
func matchEventSequence(ctx rules.Context, f features.Features) bool {
	return containsRun(f.Tail(ctx.EffectiveWindow()), ctx.Pattern)
}

func matchRecentWindow(ctx rules.Context, f features.Features) bool {
	return matchEventSequence(ctx, f)
}

func matchDesktopState(ctx rules.Context, f features.Features) bool {
	return matchEventSequence(ctx, f)
}

// containsRun reports whether pattern occurs contiguously in actions.
// An empty pattern never matches.
func containsRun(actions []string, pattern rules.Pattern) bool {
	if len(pattern) == 0 || len(pattern) > len(actions) {
		return false
	}
	for start := 0; start+len(pattern) <= len(actions); start++ {
		if runAt(actions, start, pattern) {
			return true
		}
	}
	return false
}

func runAt(actions []string, start int, pattern rules.Pattern) bool {
	for i, p := range pattern {
		if actions[start+i] != p {
			return false
		}
	}
	return true
}
