// Package legacy keeps the record that outlives individual runs: totals,
// soul shards earned at the end of each run, unlocks bought with them,
// achievements and everyone the player has met.
//
// The record lives in its own gateway slot next to the autosave and the
// snapshot ledger. Starting a new run never touches it.
package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"fateloom/internal/logging"
	"fateloom/internal/store"
)

// RecordVersion is written into every saved record.
const RecordVersion = "2.0"

// bestRunsKept bounds the leaderboard.
const bestRunsKept = 10

var (
	// ErrUnknownItem is returned when buying an id the shop does not sell.
	ErrUnknownItem = errors.New("unknown legacy item")
	// ErrAlreadyOwned is returned when buying an unlock twice.
	ErrAlreadyOwned = errors.New("already unlocked")
	// ErrInsufficientShards matches any *InsufficientShardsError.
	ErrInsufficientShards = errors.New("insufficient soul shards")
)

// InsufficientShardsError reports a refused purchase or spend.
type InsufficientShardsError struct {
	Need int
	Have int
}

func (e *InsufficientShardsError) Error() string {
	return fmt.Sprintf("insufficient soul shards: need %d, have %d", e.Need, e.Have)
}

// Is lets errors.Is match ErrInsufficientShards.
func (e *InsufficientShardsError) Is(target error) bool {
	return target == ErrInsufficientShards
}

// Statistics are the lifetime totals.
type Statistics struct {
	TotalRuns         int `json:"totalGames"`
	TotalDeaths       int `json:"totalDeaths"`
	TotalVictories    int `json:"totalVictories"`
	LongestSurvival   int `json:"longestSurvival"` // days
	SoulShards        int `json:"soulShards"`
	TotalShardsEarned int `json:"totalShardsEarned"`
}

// Unlocks are the ids bought in the shop, per category.
type Unlocks struct {
	Backgrounds   []string `json:"backgrounds"`
	StartingItems []string `json:"startingItems"`
	Abilities     []string `json:"abilities"`
}

// RunResult is one finished run on the leaderboard.
type RunResult struct {
	World    string    `json:"world"`
	Player   string    `json:"player"`
	Victory  bool      `json:"victory"`
	Days     int       `json:"survivalDays"`
	Score    int       `json:"score"`
	Mutators []string  `json:"mutators,omitempty"`
	EndedAt  time.Time `json:"endedAt"`
}

// Discovery is a character first met in some run.
type Discovery struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Role         string    `json:"role,omitempty"`
	World        string    `json:"world,omitempty"`
	DiscoveredAt time.Time `json:"discoveredAt"`
}

// History is what the player has seen across runs.
type History struct {
	BestRuns       []RunResult `json:"bestRuns"`
	DiscoveredNPCs []Discovery `json:"discoveredNPCs"`
}

// Record is the whole cross-run save.
type Record struct {
	Version      string     `json:"version"`
	Statistics   Statistics `json:"statistics"`
	Unlocks      Unlocks    `json:"unlocks"`
	Achievements []string   `json:"achievements"`
	History      History    `json:"history"`
}

// DefaultRecord is the record of a player who has never finished a run.
func DefaultRecord() Record {
	return Record{
		Version: RecordVersion,
		Unlocks: Unlocks{Backgrounds: []string{"wanderer"}},
	}
}

func (r Record) clone() Record {
	out := r
	out.Unlocks.Backgrounds = slices.Clone(r.Unlocks.Backgrounds)
	out.Unlocks.StartingItems = slices.Clone(r.Unlocks.StartingItems)
	out.Unlocks.Abilities = slices.Clone(r.Unlocks.Abilities)
	out.Achievements = slices.Clone(r.Achievements)
	out.History.BestRuns = slices.Clone(r.History.BestRuns)
	for i, run := range out.History.BestRuns {
		out.History.BestRuns[i].Mutators = slices.Clone(run.Mutators)
	}
	out.History.DiscoveredNPCs = slices.Clone(r.History.DiscoveredNPCs)
	return out
}

// Book is the loaded record plus the slot it persists to. Every mutation is
// written back immediately. A Book is safe for concurrent use.
type Book struct {
	mu  sync.Mutex
	gw  *store.Gateway
	rec Record
	now func() time.Time
}

// BookOption configures a Book.
type BookOption func(*Book)

// WithClock sets the clock used for timestamps.
func WithClock(now func() time.Time) BookOption {
	return func(b *Book) { b.now = now }
}

// Open loads the record from gw. A missing slot starts fresh; an unreadable
// one is logged and replaced by a fresh record on the next write. A nil
// gateway gives a book that only lives in memory.
func Open(ctx context.Context, gw *store.Gateway, opts ...BookOption) (*Book, error) {
	b := &Book{gw: gw, rec: DefaultRecord(), now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	if gw == nil {
		return b, nil
	}
	data, ok, err := gw.Load(ctx, gw.LegacyKey())
	if err != nil {
		return nil, fmt.Errorf("load legacy: %w", err)
	}
	if !ok {
		return b, nil
	}
	rec := DefaultRecord()
	if err := json.Unmarshal(data, &rec); err != nil {
		logging.LegacyWarn("legacy record unreadable, starting fresh: %v", err)
		return b, nil
	}
	if !slices.Contains(rec.Unlocks.Backgrounds, "wanderer") {
		rec.Unlocks.Backgrounds = append([]string{"wanderer"}, rec.Unlocks.Backgrounds...)
	}
	b.rec = rec
	logging.LegacyDebug("legacy loaded: %d runs, %d shards", rec.Statistics.TotalRuns, rec.Statistics.SoulShards)
	return b, nil
}

// Record returns a copy of the current record.
func (b *Book) Record() Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rec.clone()
}

// Shards returns the spendable soul shards.
func (b *Book) Shards() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rec.Statistics.SoulShards
}

// AddShards credits n shards and returns the new balance. Non-positive n is ignored.
func (b *Book) AddShards(ctx context.Context, n int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 {
		return b.rec.Statistics.SoulShards, nil
	}
	b.rec.Statistics.SoulShards += n
	b.rec.Statistics.TotalShardsEarned += n
	return b.rec.Statistics.SoulShards, b.save(ctx)
}

// SpendShards debits n shards, or refuses with *InsufficientShardsError.
func (b *Book) SpendShards(ctx context.Context, n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.spend(n); err != nil {
		return err
	}
	return b.save(ctx)
}

func (b *Book) spend(n int) error {
	have := b.rec.Statistics.SoulShards
	if n > have {
		return &InsufficientShardsError{Need: n, Have: have}
	}
	b.rec.Statistics.SoulShards -= n
	return nil
}

// RecordRunEnd adds a finished run to the totals and the leaderboard and
// returns the achievements it earned for the first time.
func (b *Book) RecordRunEnd(ctx context.Context, run RunResult) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if run.EndedAt.IsZero() {
		run.EndedAt = b.now()
	}
	st := &b.rec.Statistics
	st.TotalRuns++
	if run.Victory {
		st.TotalVictories++
	} else {
		st.TotalDeaths++
	}
	if run.Days > st.LongestSurvival {
		st.LongestSurvival = run.Days
	}

	runs := append(b.rec.History.BestRuns, run)
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Score > runs[j].Score })
	if len(runs) > bestRunsKept {
		runs = runs[:bestRunsKept]
	}
	b.rec.History.BestRuns = runs

	var earned []string
	for _, a := range achievements {
		if !slices.Contains(b.rec.Achievements, a.id) && a.earned(b.rec, run) {
			b.rec.Achievements = append(b.rec.Achievements, a.id)
			earned = append(earned, a.id)
		}
	}
	logging.Legacy("run ended in %q: victory=%v days=%d score=%d", run.World, run.Victory, run.Days, run.Score)
	return earned, b.save(ctx)
}

// Discover remembers a character met in world. It returns false when the id
// is empty or already known.
func (b *Book) Discover(ctx context.Context, id, name, role, world string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id == "" {
		return false, nil
	}
	for _, d := range b.rec.History.DiscoveredNPCs {
		if d.ID == id {
			return false, nil
		}
	}
	b.rec.History.DiscoveredNPCs = append(b.rec.History.DiscoveredNPCs, Discovery{
		ID: id, Name: name, Role: role, World: world, DiscoveredAt: b.now(),
	})
	return true, b.save(ctx)
}

// IsUnlocked reports whether id was bought or is free.
func (b *Book) IsUnlocked(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unlocked(id)
}

func (b *Book) unlocked(id string) bool {
	if it, ok := LookupItem(id); ok && it.Free() {
		return true
	}
	u := b.rec.Unlocks
	return slices.Contains(u.Backgrounds, id) ||
		slices.Contains(u.StartingItems, id) ||
		slices.Contains(u.Abilities, id)
}

// Purchase buys item id with soul shards and unlocks it.
func (b *Book) Purchase(ctx context.Context, id string) (Item, error) {
	item, ok := LookupItem(id)
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unlocked(id) {
		return item, fmt.Errorf("%w: %s", ErrAlreadyOwned, id)
	}
	if err := b.spend(item.Cost); err != nil {
		return item, err
	}
	switch item.Category {
	case CategoryBackground:
		b.rec.Unlocks.Backgrounds = append(b.rec.Unlocks.Backgrounds, id)
	case CategoryStartingItem:
		b.rec.Unlocks.StartingItems = append(b.rec.Unlocks.StartingItems, id)
	case CategoryAbility:
		b.rec.Unlocks.Abilities = append(b.rec.Unlocks.Abilities, id)
	}
	logging.Legacy("unlocked %s for %d shards", id, item.Cost)
	return item, b.save(ctx)
}

// Boons lists the unlocked starting items and abilities, which apply to
// every new run.
func (b *Book) Boons() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append(slices.Clone(b.rec.Unlocks.StartingItems), b.rec.Unlocks.Abilities...)
}

// Reset wipes the record. It cannot be undone.
func (b *Book) Reset(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rec = DefaultRecord()
	logging.LegacyWarn("legacy record reset")
	return b.save(ctx)
}

func (b *Book) save(ctx context.Context) error {
	if b.gw == nil {
		return nil
	}
	data, err := json.Marshal(b.rec)
	if err != nil {
		return fmt.Errorf("encode legacy: %w", err)
	}
	if err := b.gw.Save(ctx, b.gw.LegacyKey(), data); err != nil {
		return fmt.Errorf("persist legacy: %w", err)
	}
	return nil
}

type achievement struct {
	id     string
	earned func(rec Record, run RunResult) bool
}

// achievements are checked after the run's totals are counted.
var achievements = []achievement{
	{"first_steps", func(rec Record, _ RunResult) bool { return rec.Statistics.TotalRuns >= 1 }},
	{"fate_defied", func(_ Record, run RunResult) bool { return run.Victory }},
	{"long_road", func(_ Record, run RunResult) bool { return run.Days >= 120 }},
	{"many_lives", func(rec Record, _ RunResult) bool { return rec.Statistics.TotalRuns >= 10 }},
}
