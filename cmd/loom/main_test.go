package main

import (
	"strings"
	"testing"

	"fateloom/internal/legacy"
	"fateloom/internal/mutator"
	"fateloom/internal/session"
	"fateloom/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChooseOption(t *testing.T) {
	opts := []state.Option{{Text: "Wait"}, {Text: "Run", Type: "risk"}}

	got, err := chooseOption(opts, []string{"2"}, "")
	require.NoError(t, err)
	assert.Equal(t, opts[1], got)

	got, err = chooseOption(opts, nil, "Sing loudly")
	require.NoError(t, err)
	assert.Equal(t, state.Option{Text: "Sing loudly"}, got)

	for _, arg := range []string{"0", "3", "x"} {
		_, err := chooseOption(opts, []string{arg}, "")
		assert.Error(t, err, arg)
	}
	_, err = chooseOption(opts, nil, "")
	assert.Error(t, err)
}

func TestMaskCredential(t *testing.T) {
	assert.Equal(t, "****", maskCredential("short"))
	assert.Equal(t, "sk-ant-****", maskCredential("sk-ant-abcdef123456"))
}

func TestDefaultPrompts(t *testing.T) {
	p := defaultPrompts{}
	v := session.View{
		WorldName: "Ashfall",
		World:     map[string]any{"name": "Ashfall", "desc": "Grey skies."},
		Calendar:  state.NewCalendar(),
		Player:    state.Player{Name: "Mira", Stats: map[string]int{"luck": 3}},
		Factions:  []state.Faction{{Name: "Wardens", Stance: "neutral", Reputation: 50}},
		Entities:  []state.Entity{{ID: "oren", Name: "Oren", Role: "smith", Status: state.StatusActive}},
		RecentLog: []state.LogEntry{{Role: state.RoleGM, Text: "The gate opens."}},
	}

	worlds := p.Worlds()
	assert.Contains(t, worlds.User, `"worlds"`)
	assert.NotEmpty(t, worlds.System)

	opening := p.Opening(v)
	assert.Contains(t, opening.User, "World: Ashfall")
	assert.Contains(t, opening.User, "Grey skies.")
	assert.Contains(t, opening.User, "luck 3")
	assert.Contains(t, opening.User, "oren: Oren")

	assert.NotContains(t, opening.User, "Weigh the offered options")

	v.Player.Background = "noble"
	v.Player.Traits = []string{"cautious"}
	v.TraitWeights = session.TraitWeights(v.Player.Traits)
	v.RulesPrompt = "World rules in force:\n- Golden Age: every check is easier."
	opening = p.Opening(v)
	assert.Contains(t, opening.User, "Background: noble")
	assert.Contains(t, opening.User, "Personality: cautious")
	assert.Contains(t, opening.User, "risk 0.5, focus 1.0, normal 1.0")
	assert.Contains(t, opening.User, "- Golden Age:")

	v.DoomEventDue = true
	v.DoomLevel = 2
	check := &session.CheckResult{Stat: "strength", Difficulty: "hard", Roll: 4, Threshold: 9}
	next := p.NextScene(v, "Climb (failure)", check)
	assert.Contains(t, next.User, "The player chose: Climb (failure)")
	assert.Contains(t, next.User, "rolled 4 against 9 and failed")
	assert.Contains(t, next.User, "Doom has reached level 2")
	assert.Contains(t, next.User, `"npcStatusChanges"`)

	compress := p.Compress(v, v.RecentLog)
	assert.Contains(t, compress.User, "[GM] The gate opens.")
	assert.Contains(t, compress.User, `{"summary": "..."}`)
}

func TestTable(t *testing.T) {
	tb := newTable("", "ID", "Name")
	tb.add("a", "Alpha")
	tb.add("bb", "B")
	lines := strings.Split(strings.TrimRight(tb.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "Alpha")
	assert.Contains(t, lines[2], "bb")
}

func TestShopTable(t *testing.T) {
	owned := func(id string) bool { return id == "master_key" }
	out := shopTable(legacy.Shop(), owned).String()
	assert.Contains(t, out, "exile")
	assert.Contains(t, out, "owned")
	assert.NotContains(t, out, "wanderer", "free backgrounds are not for sale")
}

func TestPrintRules(t *testing.T) {
	var b strings.Builder
	printRules(&b, session.View{Rules: append(mutator.Resolve([]string{"golden_age"}), legacy.Rules([]string{"wanderer", "master_key"})...)})
	out := b.String()
	assert.Contains(t, out, "Golden Age")
	assert.Contains(t, out, "Master Key")
	assert.NotContains(t, out, "Wanderer")

	b.Reset()
	printRules(&b, session.View{})
	assert.Empty(t, b.String())
}

func TestPrintSettlement(t *testing.T) {
	var b strings.Builder
	printSettlement(&b, session.Settlement{Shards: 58, Reasons: []string{"+50 victory"}, Balance: 70, Achievements: []string{"fate_defied"}})
	out := b.String()
	assert.Contains(t, out, "58 soul shards")
	assert.Contains(t, out, "+50 victory")
	assert.Contains(t, out, "fate_defied")
	assert.Contains(t, out, "Balance: 70")
}
