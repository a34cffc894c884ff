package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRules() []Rule {
	return []Rule{
		{
			Name:     "after_show_desktop",
			Context:  Context{Type: ContextEventSequence, Pattern: Pattern{"show_desktop"}, Window: 3},
			Suggest:  []Suggestion{{Action: "overview", Priority: 80}},
			Cooldown: 300 * time.Second,
		},
		{
			Name:    "after_tile_left",
			Context: Context{Type: ContextRecentWindow, Pattern: Pattern{"tile_left"}},
			Suggest: []Suggestion{{Action: "tile_right", Priority: 85}},
		},
	}
}

func TestNewRuleSet_PreservesOrder(t *testing.T) {
	set := NewRuleSet("1.0", sampleRules())

	require.Equal(t, 2, set.Len())
	assert.Equal(t, "after_show_desktop", set.Rules()[0].Name)
	assert.Equal(t, "after_tile_left", set.Rules()[1].Name)
	assert.Equal(t, "1.0", set.Version())
}

func TestNewRuleSet_IsolatedFromCaller(t *testing.T) {
	src := sampleRules()
	set := NewRuleSet("1.0", src)

	src[0].Name = "mutated"
	src[0].Context.Pattern[0] = "mutated"
	src[0].Suggest[0].Priority = 1

	r := set.Rules()[0]
	assert.Equal(t, "after_show_desktop", r.Name)
	assert.Equal(t, Pattern{"show_desktop"}, r.Context.Pattern)
	assert.Equal(t, 80, r.Suggest[0].Priority)
}

func TestRuleSet_Lookup(t *testing.T) {
	set := NewRuleSet("1.0", sampleRules())

	r, ok := set.Lookup("after_tile_left")
	require.True(t, ok)
	assert.Equal(t, "tile_right", r.Suggest[0].Action)

	_, ok = set.Lookup("missing")
	assert.False(t, ok)
}

func TestRuleSet_NilSafe(t *testing.T) {
	var set *RuleSet
	assert.Equal(t, 0, set.Len())
	assert.Nil(t, set.Rules())
	assert.Equal(t, "", set.Version())
	assert.Equal(t, 0, EmptyRuleSet().Len())
}

func TestContext_EffectiveWindow(t *testing.T) {
	assert.Equal(t, DefaultWindow, Context{}.EffectiveWindow())
	assert.Equal(t, 5, Context{Window: 5}.EffectiveWindow())
}

func TestContextType_IsSupported(t *testing.T) {
	for _, ct := range ContextTypes {
		assert.True(t, ct.IsSupported())
	}
	assert.False(t, ContextType("window_title").IsSupported())
}
