package state

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func populatedStore(t *testing.T) *Store {
	t.Helper()
	s := New(WithClock(func() time.Time { return fixedNow }))
	s.SetWorld(map[string]any{"name": "Ashfall", "desc": "A city under ash", "factions": []any{"Guild"}})
	s.SetFactions([]Faction{{Name: "Guild", Description: "merchants", Reputation: 65}})
	s.SetPlayer(Player{ID: "player", Name: "Rin", Stats: map[string]int{"luck": 3}, Traits: []string{"stubborn"}})
	require.True(t, s.AddEntity(Entity{ID: "npc_1", Name: "Mira", Role: "smith", Faction: 0, Secret: "heir"}))
	require.True(t, s.AddEntity(Entity{ID: "npc_2", Name: "Oren"}))
	require.True(t, s.SetEntityStatus("npc_2", StatusImprisoned, "caught"))
	require.True(t, s.AddRelationship("npc_1", "npc_2", "rival", false))
	s.SetStory("The bells ring.")
	s.SetOptions([]Option{{Text: "Run", TimeAdvance: 2}, {Text: "Fight", Type: "risk", CheckStat: "strength"}})
	s.AddFatePoints(7)
	s.AdvanceTime(13)
	s.IncreaseMeter(55, "ash storm")
	s.SetCompressedHistory("Earlier things happened.", -1)
	s.SetLastMonthlyDay(3)
	s.SetRules(RunRules{Mutators: []string{"blood_moon"}, Boons: []string{"master_key"}})
	s.SetSettings(Settings{Credential: "sk-secret", Provider: "openai", Model: "gpt-4o-mini", StreamingEnabled: true})
	return s
}

var ignoreOffsets = cmpopts.IgnoreFields(Entity{}, "X", "Y")

func TestSerializeRestoreRoundTrip(t *testing.T) {
	src := populatedStore(t)
	data, err := src.Serialize()
	require.NoError(t, err)

	dst := New()
	dst.SetSettings(Settings{Credential: "kept"})
	require.True(t, dst.Restore(data))

	opts := cmp.Options{ignoreOffsets, cmpopts.EquateEmpty()}
	if diff := cmp.Diff(src.Capture(), dst.Capture(), opts); diff != "" {
		t.Errorf("frame mismatch (-src +dst):\n%s", diff)
	}
	assert.Equal(t, src.FatePoints(), dst.FatePoints())
	assert.Equal(t, src.Rules(), dst.Rules())
	assert.Equal(t, "openai", dst.Settings().Provider)
	assert.True(t, dst.Settings().StreamingEnabled)
	assert.Equal(t, "kept", dst.Settings().Credential, "credential is never overwritten by a save")
}

func TestSerializeOmitsCredentialAndOffsets(t *testing.T) {
	s := populatedStore(t)
	data, err := s.Serialize()
	require.NoError(t, err)

	assert.NotContains(t, string(data), "sk-secret")

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "2.0", raw["version"])
	assert.Equal(t, float64(fixedNow.UnixMilli()), raw["timestamp"])
	npc := raw["npcs"].([]any)[0].(map[string]any)
	assert.NotContains(t, npc, "x")
	assert.NotContains(t, npc, "X")
}

func TestSerializeCapsLog(t *testing.T) {
	s := New(WithHistoryCap(30))
	for i := 0; i < 45; i++ {
		s.AppendLog(RoleGM, fmt.Sprintf("line %d", i))
	}
	data, err := s.Serialize()
	require.NoError(t, err)

	r := New()
	require.True(t, r.Restore(data))
	log := r.Log()
	require.Len(t, log, 30)
	assert.Equal(t, "line 15", log[0].Text)
	assert.Equal(t, "line 44", log[29].Text)
	assert.Len(t, s.Log(), 45, "in-memory log is unbounded")
}

func TestRestoreGarbageLeavesStateUntouched(t *testing.T) {
	inputs := map[string]string{
		"empty":     "",
		"truncated": `{"storyContext":"half`,
		"garbage":   "not json at all",
		"array":     `[1,2,3]`,
		"null":      `null`,
		"bad type":  `{"fatePoints":"many"}`,
		"calendar":  `{"calendar":{"year":0,"season":9,"day":40,"timeOfDay":2}}`,
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			s := populatedStore(t)
			before := s.Capture()
			fate := s.FatePoints()

			assert.False(t, s.Restore([]byte(in)))
			if diff := cmp.Diff(before, s.Capture()); diff != "" {
				t.Errorf("state changed (-before +after):\n%s", diff)
			}
			assert.Equal(t, fate, s.FatePoints())
		})
	}
}

func TestRestoreDefaultsMissingFields(t *testing.T) {
	s := populatedStore(t)
	require.True(t, s.Restore([]byte(`{"storyContext":"Only a story."}`)))

	assert.Equal(t, "Only a story.", s.Story())
	assert.Equal(t, NewCalendar(), s.Calendar())
	assert.Equal(t, DefaultPlayer().Name, s.Player().Name)
	assert.Equal(t, 0, s.FatePoints())
	assert.Equal(t, 0, s.Meter().Value)
	assert.Equal(t, -1, s.LastMonthlyDay())
	assert.Empty(t, s.Entities())
	assert.Empty(t, s.Log())
	assert.Equal(t, "openai", s.Settings().Provider, "settings kept when absent")
}

func TestRestoreEnforcesInvariants(t *testing.T) {
	payload := `{
		"npcs": [
			{"id": "a", "name": "A", "status": "dead"},
			{"id": "a", "name": "A again"},
			{"id": "", "name": "nameless"},
			{"id": "b", "name": "B", "status": "confused"}
		],
		"relationships": [
			{"from": "a", "to": "b", "type": "ally"},
			{"from": "b", "to": "a", "type": "enemy"}
		],
		"doomClock": {"value": 250, "thresholds": [90, 10]},
		"fatePoints": -4
	}`
	s := New()
	require.True(t, s.Restore([]byte(payload)))

	es := s.Entities()
	require.Len(t, es, 2)
	assert.Equal(t, StatusDead, es[0].Status)
	assert.Equal(t, StatusActive, es[1].Status)
	assert.Len(t, s.Relationships(), 1)
	assert.Equal(t, 100, s.Meter().Value)
	assert.Equal(t, DefaultThresholds, s.Meter().Thresholds)
	assert.Equal(t, 0, s.FatePoints())

	assert.False(t, s.AddEntity(Entity{ID: "a", Name: "A"}), "restored dead id stays dead")
}

func TestPeek(t *testing.T) {
	data, err := populatedStore(t).Serialize()
	require.NoError(t, err)

	info, ok := Peek(data)
	require.True(t, ok)
	assert.Equal(t, "Ashfall", info.WorldName)
	assert.Equal(t, 7, info.FatePoints)
	assert.Equal(t, 2, info.EntityCount)
	assert.Equal(t, SaveVersion, info.Version)
	assert.True(t, info.Timestamp.Equal(fixedNow))

	info, ok = Peek([]byte(`{}`))
	require.True(t, ok)
	assert.Equal(t, "Unknown world", info.WorldName)

	_, ok = Peek([]byte("garbage"))
	assert.False(t, ok)
}
