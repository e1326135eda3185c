package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"fateloom/internal/logging"
)

// SaveVersion is written into every serialized payload.
const SaveVersion = "2.0"

// savePayload is the persisted form of a Store. Pointer fields distinguish
// "absent" from "zero" so Restore can default missing sections.
type savePayload struct {
	Version           string         `json:"version"`
	Timestamp         int64          `json:"timestamp"`
	World             map[string]any `json:"currentWorld"`
	Factions          []Faction      `json:"factionData"`
	Story             string         `json:"storyContext"`
	Log               []LogEntry     `json:"historyLog"`
	Options           []Option       `json:"currentOptions"`
	Player            *Player        `json:"playerCharacter"`
	Entities          []Entity       `json:"npcs"`
	Relationships     []Relationship `json:"relationships"`
	FatePoints        int            `json:"fatePoints"`
	Calendar          *Calendar      `json:"calendar"`
	Meter             *Meter         `json:"doomClock"`
	CompressedHistory string         `json:"compressedHistory"`
	LastMonthlyDay    *int           `json:"lastSavePointDay"`
	Settings          *Settings      `json:"settings"`
	Rules             *RunRules      `json:"runRules,omitempty"`
}

// Serialize encodes the whole run. The log is capped to the most recent
// entries and the credential is never written.
func (s *Store) Serialize() ([]byte, error) {
	player := s.player
	cal := s.calendar
	meter := s.meter
	last := s.lastMonthlyDay
	settings := s.settings
	rules := cloneRules(s.rules)

	p := savePayload{
		Version:           SaveVersion,
		Timestamp:         s.now().UnixMilli(),
		World:             s.world,
		Factions:          s.factions,
		Story:             s.story,
		Log:               tail(s.log, s.historyCap),
		Options:           s.options,
		Player:            &player,
		Entities:          s.entities,
		Relationships:     s.relationships,
		FatePoints:        s.fatePoints,
		Calendar:          &cal,
		Meter:             &meter,
		CompressedHistory: s.compressedHistory,
		LastMonthlyDay:    &last,
		Settings:          &settings,
		Rules:             &rules,
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("serialize state: %w", err)
	}
	return data, nil
}

// Restore replaces the run with a serialized payload. Missing sections take
// their defaults. On any parse or validation failure it returns false and
// leaves the store untouched.
func (s *Store) Restore(data []byte) bool {
	p, err := parsePayload(data)
	if err != nil {
		logging.StateDebug("restore rejected: %v", err)
		return false
	}

	cal := NewCalendar()
	if p.Calendar != nil {
		if !p.Calendar.valid() {
			logging.StateDebug("restore rejected: calendar out of range %+v", *p.Calendar)
			return false
		}
		cal = *p.Calendar
	}

	meter := NewMeter(s.thresholds)
	if p.Meter != nil {
		meter = p.Meter.clone()
		if !ValidThresholds(meter.Thresholds) {
			meter.Thresholds = append([]int(nil), s.thresholds...)
		}
		meter.Value = clampMeter(meter.Value)
	}

	player := DefaultPlayer()
	if p.Player != nil {
		player = *p.Player
	}

	lastMonthly := -1
	if p.LastMonthlyDay != nil {
		lastMonthly = *p.LastMonthlyDay
	}

	// Entities and relationships go through the same invariants as live adds.
	entities := make([]Entity, 0, len(p.Entities))
	seen := make(map[string]bool, len(p.Entities))
	for _, e := range p.Entities {
		if e.ID == "" || seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		if !e.Status.Valid() {
			e.Status = StatusActive
		}
		e.X = s.randomOffset()
		e.Y = s.randomOffset()
		entities = append(entities, e)
	}
	relationships := make([]Relationship, 0, len(p.Relationships))
	for _, r := range p.Relationships {
		dup := false
		for _, have := range relationships {
			if have.joins(r.From, r.To) {
				dup = true
				break
			}
		}
		if !dup {
			relationships = append(relationships, r)
		}
	}

	fate := p.FatePoints
	if fate < 0 {
		fate = 0
	}

	s.world = p.World
	s.factions = p.Factions
	s.story = p.Story
	s.log = p.Log
	s.options = p.Options
	s.player = player
	s.entities = nilIfEmpty(entities)
	s.relationships = nilIfEmpty(relationships)
	s.fatePoints = fate
	s.calendar = cal
	s.meter = meter
	s.compressedHistory = p.CompressedHistory
	s.lastMonthlyDay = lastMonthly
	s.rules = RunRules{}
	if p.Rules != nil {
		s.rules = cloneRules(*p.Rules)
	}
	if p.Settings != nil {
		credential := s.settings.Credential
		s.settings = *p.Settings
		s.settings.Credential = credential
	}
	logging.State("restored run (version %q, %d entities, %d log entries)", p.Version, len(entities), len(p.Log))
	return true
}

func nilIfEmpty[T any](xs []T) []T {
	if len(xs) == 0 {
		return nil
	}
	return xs
}

func parsePayload(data []byte) (*savePayload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("payload is not a JSON object")
	}
	var p savePayload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveInfo summarizes a saved run without restoring it.
type SaveInfo struct {
	Version     string
	WorldName   string
	Timestamp   time.Time
	FatePoints  int
	EntityCount int
	Calendar    Calendar
}

// Peek reads the summary of a serialized payload.
func Peek(data []byte) (SaveInfo, bool) {
	p, err := parsePayload(data)
	if err != nil {
		return SaveInfo{}, false
	}
	info := SaveInfo{
		Version:     p.Version,
		WorldName:   "Unknown world",
		Timestamp:   time.UnixMilli(p.Timestamp),
		FatePoints:  p.FatePoints,
		EntityCount: len(p.Entities),
		Calendar:    NewCalendar(),
	}
	if name, ok := p.World["name"].(string); ok && name != "" {
		info.WorldName = name
	}
	if p.Calendar != nil {
		info.Calendar = *p.Calendar
	}
	return info, true
}
