package session

import (
	"fateloom/internal/mutator"
	"fateloom/internal/state"
)

// View is the read-only run summary handed to prompt builders and callers.
type View struct {
	WorldName         string
	World             map[string]any
	Story             string
	Calendar          state.Calendar
	Factions          []state.Faction
	Player            state.Player
	Entities          []state.Entity // active and injured only
	Dead              []state.Entity
	Options           []state.Option
	FatePoints        int
	DoomValue         int
	DoomLevel         int
	DoomEventDue      bool
	CompressedHistory string
	RecentLog         []state.LogEntry
	Snapshots         int
	// Rules are the world mutators, boons and background in force.
	Rules        mutator.Set
	RulesPrompt  string
	TraitWeights OptionWeights
}

func (s *Session) view() View {
	m := s.store.Meter()
	rules := s.rules()
	return View{
		WorldName:         s.store.WorldName(),
		World:             s.store.World(),
		Story:             s.store.Story(),
		Calendar:          s.store.Calendar(),
		Factions:          s.store.Factions(),
		Player:            s.store.Player(),
		Entities:          s.store.ActiveEntities(),
		Dead:              s.store.DeadEntities(),
		Options:           s.store.Options(),
		FatePoints:        s.store.FatePoints(),
		DoomValue:         m.Value,
		DoomLevel:         m.Level(),
		DoomEventDue:      m.ShouldFireLevelEvent(),
		CompressedHistory: s.store.CompressedHistory(),
		RecentLog:         s.store.RecentLog(0),
		Snapshots:         s.ledger.Len(),
		Rules:             rules,
		RulesPrompt:       rules.Prompt(),
		TraitWeights:      TraitWeights(s.store.Player().Traits),
	}
}

// Prompt is one system instruction plus user prompt pair.
type Prompt struct {
	System string
	User   string
}

// PromptBuilder renders the text of every generation the session issues.
// The session only relies on the JSON keys named in each method's comment.
type PromptBuilder interface {
	// Worlds asks for {"worlds": [{name, desc, factions: [{name, desc, stance}]}]}.
	Worlds() Prompt
	// Opening asks for a narrative result for the first scene.
	Opening(v View) Prompt
	// NextScene asks for a narrative result after the player's action.
	// check is nil unless the action required one.
	NextScene(v View, action string, check *CheckResult) Prompt
	// Compress asks for {"summary": "..."} condensing log.
	Compress(v View, log []state.LogEntry) Prompt
}
