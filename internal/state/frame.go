package state

// Frame is a deep copy of every revertible part of a Store.
// Fate points are deliberately absent: reverting never refunds them.
type Frame struct {
	World             map[string]any `json:"currentWorld,omitempty"`
	Factions          []Faction      `json:"factionData,omitempty"`
	Player            Player         `json:"playerCharacter"`
	Entities          []Entity       `json:"npcs,omitempty"`
	Relationships     []Relationship `json:"relationships,omitempty"`
	Log               []LogEntry     `json:"historyLog,omitempty"`
	Calendar          Calendar       `json:"calendar"`
	Meter             Meter          `json:"doomClock"`
	Story             string         `json:"storyContext"`
	Options           []Option       `json:"currentOptions,omitempty"`
	CompressedHistory string         `json:"compressedHistory,omitempty"`
	LastMonthlyDay    int            `json:"lastSavePointDay"`
}

// Capture returns a deep copy of the revertible state.
func (s *Store) Capture() Frame {
	f := Frame{
		World:             s.world,
		Factions:          s.factions,
		Player:            s.player,
		Entities:          s.entities,
		Relationships:     s.relationships,
		Log:               s.log,
		Calendar:          s.calendar,
		Meter:             s.meter,
		Story:             s.story,
		Options:           s.options,
		CompressedHistory: s.compressedHistory,
		LastMonthlyDay:    s.lastMonthlyDay,
	}
	return f.Clone()
}

// Apply replaces the revertible state with a deep copy of f.
func (s *Store) Apply(f Frame) {
	c := f.Clone()
	s.world = c.World
	s.factions = c.Factions
	s.player = c.Player
	s.entities = c.Entities
	s.relationships = c.Relationships
	s.log = c.Log
	s.calendar = c.Calendar
	s.meter = c.Meter
	s.story = c.Story
	s.options = c.Options
	s.compressedHistory = c.CompressedHistory
	s.lastMonthlyDay = c.LastMonthlyDay
}

// Clone returns a copy of f sharing no mutable memory with it.
func (f Frame) Clone() Frame {
	out := f
	out.World = cloneMap(f.World)
	out.Factions = cloneSlice(f.Factions)
	out.Player = clonePlayer(f.Player)
	out.Entities = cloneSlice(f.Entities)
	out.Relationships = cloneSlice(f.Relationships)
	out.Log = cloneSlice(f.Log)
	out.Meter = f.Meter.clone()
	out.Options = cloneSlice(f.Options)
	return out
}

func cloneSlice[T any](xs []T) []T {
	if xs == nil {
		return nil
	}
	return append(make([]T, 0, len(xs)), xs...)
}

func clonePlayer(p Player) Player {
	out := p
	if p.Stats != nil {
		out.Stats = make(map[string]int, len(p.Stats))
		for k, v := range p.Stats {
			out.Stats[k] = v
		}
	}
	out.Traits = cloneSlice(p.Traits)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies JSON-shaped values. Scalars are returned as is.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	case []string:
		return cloneSlice(t)
	default:
		return v
	}
}
