package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"fateloom/internal/legacy"
	"fateloom/internal/logging"
	"fateloom/internal/mutator"
	"fateloom/internal/state"
)

var (
	// ErrUnknownBackground is returned by StartRun for a background no one sells.
	ErrUnknownBackground = errors.New("unknown background")
	// ErrBackgroundLocked is returned by StartRun for a background not yet bought.
	ErrBackgroundLocked = errors.New("background not unlocked")
)

// MaxTraits bounds how many personality traits a character keeps.
const MaxTraits = 2

// Traits a character may pick and the option mix each one leans towards.
var traitWeights = map[string]func(*OptionWeights){
	"cautious":  func(w *OptionWeights) { w.Risk *= 0.5 },
	"reckless":  func(w *OptionWeights) { w.Risk *= 1.5 },
	"curious":   func(w *OptionWeights) { w.Focus *= 1.5 },
	"practical": func(w *OptionWeights) { w.Normal *= 1.5 },
}

// Traits lists the personality traits a character may pick.
func Traits() []string {
	out := make([]string, 0, len(traitWeights))
	for t := range traitWeights {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// OptionWeights is the suggested mix of option types the narrator offers.
type OptionWeights struct {
	Risk   float64
	Focus  float64
	Normal float64
}

// Neutral reports whether the weights suggest nothing.
func (w OptionWeights) Neutral() bool {
	return w == OptionWeights{Risk: 1, Focus: 1, Normal: 1}
}

// TraitWeights folds the traits into option weights. Unknown traits count for nothing.
func TraitWeights(traits []string) OptionWeights {
	w := OptionWeights{Risk: 1, Focus: 1, Normal: 1}
	for _, t := range traits {
		if fn, ok := traitWeights[t]; ok {
			fn(&w)
		}
	}
	return w
}

// normalizeTraits keeps known traits, once each, up to MaxTraits.
func normalizeTraits(traits []string) []string {
	var out []string
	for _, t := range traits {
		t = strings.ToLower(strings.TrimSpace(t))
		if _, ok := traitWeights[t]; !ok {
			logging.SessionDebug("ignoring unknown trait %q", t)
			continue
		}
		if slices.Contains(out, t) {
			continue
		}
		if len(out) == MaxTraits {
			break
		}
		out = append(out, t)
	}
	return out
}

// rules is everything bending the mechanics of the current run: the world
// mutators, the legacy boons and the player's background.
func (s *Session) rules() mutator.Set {
	r := s.store.Rules()
	set := mutator.Resolve(r.Mutators)
	set = append(set, legacy.Rules(r.Boons)...)
	set = append(set, legacy.Rules([]string{s.store.Player().Background})...)
	return set
}

// drawRules picks the world mutators for a new run. Pinned ids win over a draw.
func (s *Session) drawRules(pinned []string) mutator.Set {
	if len(pinned) > 0 {
		return mutator.Resolve(pinned)
	}
	return mutator.DrawBetween(s.rng, s.cfg.MinMutators, s.cfg.MaxMutators)
}

// background resolves and checks the player's background.
func (s *Session) background(id string) (legacy.Item, error) {
	if id == "" {
		id = state.DefaultPlayer().Background
	}
	item, ok := legacy.LookupItem(id)
	if !ok || item.Category != legacy.CategoryBackground {
		return legacy.Item{}, fmt.Errorf("%w: %s", ErrUnknownBackground, id)
	}
	if !item.Free() && (s.legacy == nil || !s.legacy.IsUnlocked(id)) {
		return legacy.Item{}, fmt.Errorf("%w: %s", ErrBackgroundLocked, id)
	}
	return item, nil
}

// applyRunStart applies the one-off effects of the run's rules and the
// player's background to a freshly installed world.
func (s *Session) applyRunStart(bg legacy.Item) {
	set := s.rules()

	shift := set.StartingReputation()
	for i := range s.store.Factions() {
		delta := shift
		if i == bg.Faction {
			delta += bg.FactionBonus
		}
		if delta != 0 {
			s.store.AdjustReputation(i, delta)
		}
	}

	player := s.store.Player()
	for stat, n := range set.StartingStats() {
		player.Stats[stat] += n
	}
	if bg.RandomStat > 0 {
		stats := make([]string, 0, len(player.Stats))
		for k := range player.Stats {
			stats = append(stats, k)
		}
		slices.Sort(stats)
		if len(stats) > 0 {
			pick := stats[s.intN(len(stats))]
			player.Stats[pick] += bg.RandomStat
			logging.SessionDebug("%s background: %s +%d", bg.ID, pick, bg.RandomStat)
		}
	}
	s.store.SetPlayer(player)

	if fate := set.StartingFate(); fate > 0 {
		s.store.AddFatePoints(fate)
	}
}

// Settlement is what ending a run paid out.
type Settlement struct {
	Shards       int
	Reasons      []string
	Balance      int
	Achievements []string
}

// EndRun closes the current run: it pays soul shards into the legacy record,
// adds the run to the leaderboard and removes the autosave and snapshots.
// Without a legacy record the run is still closed and the settlement is
// computed but not kept.
func (s *Session) EndRun(ctx context.Context, victory bool) (Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return Settlement{}, ErrNoRun
	}

	player := s.store.Player()
	maxRep := 0
	for _, f := range s.store.Factions() {
		maxRep = max(maxRep, f.Reputation)
	}
	set := s.rules()
	sum := legacy.RunSummary{
		World:         s.store.WorldName(),
		Player:        player.Name,
		Victory:       victory,
		Days:          s.store.Calendar().TotalDays(),
		Allies:        s.allies(player.ID),
		FatePoints:    s.store.FatePoints(),
		MaxReputation: maxRep,
		Rules:         set,
	}
	shards, reasons := legacy.Calculate(sum)
	out := Settlement{Shards: shards, Reasons: reasons}

	if s.legacy != nil {
		earned, err := s.legacy.RecordRunEnd(ctx, legacy.RunResult{
			World:    sum.World,
			Player:   sum.Player,
			Victory:  victory,
			Days:     sum.Days,
			Score:    shards,
			Mutators: s.store.Rules().Mutators,
		})
		if err != nil {
			return out, err
		}
		out.Achievements = earned
		if out.Balance, err = s.legacy.AddShards(ctx, shards); err != nil {
			return out, err
		}
	}

	if s.gateway != nil {
		for _, key := range []string{s.gateway.AutosaveKey(), s.gateway.LedgerKey()} {
			if err := s.gateway.Delete(ctx, key); err != nil {
				logging.SessionWarn("removing %s after run end: %v", key, err)
			}
		}
	}
	s.ledger.Clear()
	s.started = false
	outcome := "defeat"
	if victory {
		outcome = "victory"
	}
	s.audit.Event(logging.AuditRunEnd, sum.World, fmt.Sprintf("%s, %d shards", outcome, shards))
	logging.Session("run ended in %q (%s): %d shards", sum.World, outcome, shards)
	return out, nil
}

// allies counts living characters tied to the player by an ally relationship.
func (s *Session) allies(playerID string) int {
	n := 0
	for _, r := range s.store.Relationships() {
		if !strings.EqualFold(r.Type, "ally") {
			continue
		}
		other := ""
		switch playerID {
		case r.From:
			other = r.To
		case r.To:
			other = r.From
		default:
			continue
		}
		if e, ok := s.store.Entity(other); ok && e.Status != state.StatusDead {
			n++
		}
	}
	return n
}

// discover remembers a newly met character in the legacy record.
func (s *Session) discover(ctx context.Context, e state.Entity) {
	if s.legacy == nil {
		return
	}
	if _, err := s.legacy.Discover(ctx, e.ID, e.Name, e.Role, s.store.WorldName()); err != nil {
		logging.SessionWarn("legacy discovery of %s not saved: %v", e.ID, err)
	}
}
