// Package state holds the game state of one run and enforces its invariants.
//
// Upstream content proposed by a generation provider is untrusted: every
// mutation that would break an invariant is rejected with a false return and
// a debug log line instead of an error, so one bad item never aborts a batch.
//
// A Store is owned by a single session and is not safe for concurrent use.
package state

import (
	"fmt"
	"math/rand/v2"
	"time"

	"fateloom/internal/logging"
)

// DefaultRecentLog is the window returned by RecentLog when n <= 0.
const DefaultRecentLog = 25

// DefaultHistoryCap is the number of log entries kept by Serialize.
const DefaultHistoryCap = 30

// offsetSpan is the width of the randomized display offset range.
const offsetSpan = 300

// TickHook runs once per calendar tick during AdvanceTime.
type TickHook func(s *Store, c Calendar)

// Store is the mutable state of one run.
type Store struct {
	world             map[string]any
	factions          []Faction
	player            Player
	entities          []Entity
	relationships     []Relationship
	log               []LogEntry
	fatePoints        int
	calendar          Calendar
	meter             Meter
	settings          Settings
	story             string
	options           []Option
	compressedHistory string
	lastMonthlyDay    int
	rules             RunRules

	thresholds []int
	historyCap int
	tickHook   TickHook
	rng        *rand.Rand
	now        func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithThresholds sets the meter thresholds used on every reset.
func WithThresholds(ts []int) StoreOption {
	return func(s *Store) {
		if ValidThresholds(ts) {
			s.thresholds = append([]int(nil), ts...)
		}
	}
}

// WithHistoryCap sets how many log entries Serialize keeps.
func WithHistoryCap(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.historyCap = n
		}
	}
}

// WithRand sets the source used for display offsets.
func WithRand(r *rand.Rand) StoreOption {
	return func(s *Store) { s.rng = r }
}

// WithClock sets the clock used for save timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// New creates a Store holding a fresh run.
func New(opts ...StoreOption) *Store {
	s := &Store{
		thresholds: DefaultThresholds,
		historyCap: DefaultHistoryCap,
		now:        time.Now,
		settings:   DefaultSettings(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset()
	return s
}

// Reset discards the run. Settings, options and the tick hook survive.
func (s *Store) Reset() {
	s.world = nil
	s.factions = nil
	s.player = DefaultPlayer()
	s.entities = nil
	s.relationships = nil
	s.log = nil
	s.fatePoints = 0
	s.calendar = NewCalendar()
	s.meter = NewMeter(s.thresholds)
	s.story = ""
	s.options = nil
	s.compressedHistory = ""
	s.lastMonthlyDay = -1
	s.rules = RunRules{}
}

func (s *Store) randomOffset() float64 {
	if s.rng != nil {
		return s.rng.Float64()*offsetSpan - offsetSpan/2
	}
	return rand.Float64()*offsetSpan - offsetSpan/2
}

// =============================================================================
// ENTITIES
// =============================================================================

// AddEntity appends e to the roster. It returns false without mutating when
// the id is empty or already present, including ids of dead entities.
func (s *Store) AddEntity(e Entity) bool {
	if e.ID == "" {
		logging.StateDebug("rejected entity with empty id (%q)", e.Name)
		return false
	}
	if s.indexOf(e.ID) >= 0 {
		logging.StateDebug("rejected duplicate entity id %q", e.ID)
		return false
	}
	if e.Status == "" || !e.Status.Valid() {
		e.Status = StatusActive
	}
	e.X = s.randomOffset()
	e.Y = s.randomOffset()
	s.entities = append(s.entities, e)
	logging.State("entity added: %s (%s)", e.ID, e.Name)
	return true
}

func (s *Store) indexOf(id string) int {
	for i := range s.entities {
		if s.entities[i].ID == id {
			return i
		}
	}
	return -1
}

// SetEntityStatus changes an entity's status and logs the transition.
// Unknown ids, invalid statuses and unchanged statuses return false.
func (s *Store) SetEntityStatus(id string, status Status, reason string) bool {
	i := s.indexOf(id)
	if i < 0 {
		logging.StateDebug("status change for unknown entity %q", id)
		return false
	}
	if !status.Valid() {
		logging.StateDebug("rejected invalid status %q for %s", status, id)
		return false
	}
	e := &s.entities[i]
	if e.Status == status {
		return false
	}
	old := e.Status
	e.Status = status

	text := fmt.Sprintf("%s: %s → %s", e.Name, old, status)
	if reason != "" {
		text += fmt.Sprintf(" (%s)", reason)
	}
	s.AppendLog(RoleStatus, text)
	logging.State("entity %s status %s -> %s", id, old, status)
	return true
}

// Entity returns a copy of the entity with the given id.
func (s *Store) Entity(id string) (Entity, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return Entity{}, false
	}
	return s.entities[i], true
}

// Entities returns a copy of the roster in insertion order.
func (s *Store) Entities() []Entity {
	return append([]Entity(nil), s.entities...)
}

// ActiveEntities returns entities that are active or injured.
func (s *Store) ActiveEntities() []Entity {
	var out []Entity
	for _, e := range s.entities {
		if e.Status == StatusActive || e.Status == StatusInjured {
			out = append(out, e)
		}
	}
	return out
}

// DeadEntities returns entities whose status is dead.
func (s *Store) DeadEntities() []Entity {
	var out []Entity
	for _, e := range s.entities {
		if e.Status == StatusDead {
			out = append(out, e)
		}
	}
	return out
}

// =============================================================================
// RELATIONSHIPS
// =============================================================================

// AddRelationship records a relationship between two entities.
// It returns false when the unordered pair already has one.
func (s *Store) AddRelationship(from, to, kind string, revealed bool) bool {
	if from == "" || to == "" {
		logging.StateDebug("rejected relationship with empty endpoint")
		return false
	}
	if s.relationIndex(from, to) >= 0 {
		logging.StateDebug("rejected duplicate relationship %s-%s", from, to)
		return false
	}
	s.relationships = append(s.relationships, Relationship{From: from, To: to, Type: kind, Revealed: revealed})
	return true
}

// RevealRelationship marks the pair's relationship as revealed.
// It returns false when the pair has none or it is already revealed.
func (s *Store) RevealRelationship(from, to string) bool {
	i := s.relationIndex(from, to)
	if i < 0 || s.relationships[i].Revealed {
		return false
	}
	s.relationships[i].Revealed = true
	return true
}

func (s *Store) relationIndex(a, b string) int {
	for i, r := range s.relationships {
		if r.joins(a, b) {
			return i
		}
	}
	return -1
}

// Relationships returns a copy of all relationships.
func (s *Store) Relationships() []Relationship {
	return append([]Relationship(nil), s.relationships...)
}

// =============================================================================
// TIME
// =============================================================================

// SetTickHook installs fn to run once per tick of AdvanceTime.
func (s *Store) SetTickHook(fn TickHook) {
	s.tickHook = fn
}

// AdvanceTime rolls the calendar units times.
func (s *Store) AdvanceTime(units int) {
	for i := 0; i < units; i++ {
		s.calendar.Tick()
		if s.tickHook != nil {
			s.tickHook(s, s.calendar)
		}
	}
}

// Calendar returns the current date.
func (s *Store) Calendar() Calendar {
	return s.calendar
}

// LastMonthlyDay returns the day of the last monthly snapshot, -1 if none.
func (s *Store) LastMonthlyDay() int {
	return s.lastMonthlyDay
}

// SetLastMonthlyDay records the day of a monthly snapshot.
func (s *Store) SetLastMonthlyDay(day int) {
	s.lastMonthlyDay = day
}

// =============================================================================
// METER
// =============================================================================

// Meter returns a copy of the doom meter.
func (s *Store) Meter() Meter {
	return s.meter.clone()
}

// IncreaseMeter raises the doom meter. It returns true on a level increase.
func (s *Store) IncreaseMeter(amount int, reason string) bool {
	if amount == 0 {
		return false
	}
	before := s.meter.Value
	up := s.meter.Increase(amount)
	s.logMeter(before, reason)
	return up
}

// DecreaseMeter lowers the doom meter.
func (s *Store) DecreaseMeter(amount int, reason string) {
	if amount == 0 {
		return
	}
	before := s.meter.Value
	s.meter.Decrease(amount)
	s.logMeter(before, reason)
}

func (s *Store) logMeter(before int, reason string) {
	after := s.meter.Value
	if after == before {
		return
	}
	text := fmt.Sprintf("Doom %+d → %d/%d", after-before, after, MeterMax)
	if reason != "" {
		text += fmt.Sprintf(" (%s)", reason)
	}
	s.AppendLog(RoleDoom, text)
}

// ShouldFireLevelEvent reports whether the meter level is unacknowledged.
func (s *Store) ShouldFireLevelEvent() bool {
	return s.meter.ShouldFireLevelEvent()
}

// AcknowledgeLevelEvent marks the current meter level as handled.
func (s *Store) AcknowledgeLevelEvent() {
	s.meter.AcknowledgeLevelEvent()
}

// =============================================================================
// FATE POINTS
// =============================================================================

// AddFatePoints adds n (which may be negative, floored at zero) and returns the new total.
func (s *Store) AddFatePoints(n int) int {
	s.fatePoints += n
	if s.fatePoints < 0 {
		s.fatePoints = 0
	}
	return s.fatePoints
}

// SpendFatePoints deducts n if the pool covers it.
func (s *Store) SpendFatePoints(n int) bool {
	if n < 0 || s.fatePoints < n {
		return false
	}
	s.fatePoints -= n
	return true
}

// FatePoints returns the current pool.
func (s *Store) FatePoints() int {
	return s.fatePoints
}

// =============================================================================
// LOG
// =============================================================================

// AppendLog adds an entry to the history.
func (s *Store) AppendLog(role, text string) {
	s.log = append(s.log, LogEntry{Role: role, Text: text})
}

// Log returns a copy of the full history.
func (s *Store) Log() []LogEntry {
	return append([]LogEntry(nil), s.log...)
}

// RecentLog returns the last n entries; n <= 0 means DefaultRecentLog.
func (s *Store) RecentLog(n int) []LogEntry {
	if n <= 0 {
		n = DefaultRecentLog
	}
	return append([]LogEntry(nil), tail(s.log, n)...)
}

// SetCompressedHistory stores a summary of older history and keeps only the
// last keep entries of the log. A negative keep leaves the log untouched.
func (s *Store) SetCompressedHistory(summary string, keep int) {
	s.compressedHistory = summary
	if keep >= 0 {
		s.log = append([]LogEntry(nil), tail(s.log, keep)...)
	}
}

// CompressedHistory returns the stored summary.
func (s *Store) CompressedHistory() string {
	return s.compressedHistory
}

func tail[T any](xs []T, n int) []T {
	if n >= len(xs) {
		return xs
	}
	return xs[len(xs)-n:]
}

// =============================================================================
// STORY AND WORLD
// =============================================================================

// SetStory replaces the current scene text.
func (s *Store) SetStory(text string) { s.story = text }

// Story returns the current scene text.
func (s *Store) Story() string { return s.story }

// SetOptions replaces the current choices.
func (s *Store) SetOptions(opts []Option) {
	s.options = append([]Option(nil), opts...)
}

// Options returns the current choices.
func (s *Store) Options() []Option {
	return append([]Option(nil), s.options...)
}

// SetWorld replaces the world description.
func (s *Store) SetWorld(world map[string]any) {
	s.world = cloneMap(world)
}

// World returns a deep copy of the world description.
func (s *Store) World() map[string]any {
	return cloneMap(s.world)
}

// WorldName returns the world's "name" field, or "" if absent.
func (s *Store) WorldName() string {
	name, _ := s.world["name"].(string)
	return name
}

// SetFactions replaces the faction list.
func (s *Store) SetFactions(fs []Faction) {
	s.factions = append([]Faction(nil), fs...)
}

// Factions returns a copy of the faction list.
func (s *Store) Factions() []Faction {
	return append([]Faction(nil), s.factions...)
}

// AdjustReputation shifts a faction's reputation, clamped to [0,100].
func (s *Store) AdjustReputation(index, delta int) bool {
	if index < 0 || index >= len(s.factions) {
		logging.StateDebug("reputation change for unknown faction %d", index)
		return false
	}
	rep := s.factions[index].Reputation + delta
	if rep < 0 {
		rep = 0
	}
	if rep > 100 {
		rep = 100
	}
	s.factions[index].Reputation = rep
	return true
}

// SetPlayer replaces the player character.
func (s *Store) SetPlayer(p Player) {
	s.player = clonePlayer(p)
}

// Player returns a copy of the player character.
func (s *Store) Player() Player {
	return clonePlayer(s.player)
}

// SetRules records the rules the run was started under.
func (s *Store) SetRules(r RunRules) {
	s.rules = cloneRules(r)
}

// Rules returns the rules the run was started under.
func (s *Store) Rules() RunRules {
	return cloneRules(s.rules)
}

func cloneRules(r RunRules) RunRules {
	return RunRules{Mutators: cloneSlice(r.Mutators), Boons: cloneSlice(r.Boons)}
}

// =============================================================================
// SETTINGS
// =============================================================================

// Settings returns the generation preferences.
func (s *Store) Settings() Settings { return s.settings }

// SetSettings replaces the generation preferences.
func (s *Store) SetSettings(st Settings) { s.settings = st }
