// Package mutator holds the rule modifiers a run can be played under.
//
// A new run draws one to three world mutators, weighted by rarity. Each one
// shifts check thresholds, fate gains, reroll cost or starting standing, and
// contributes a line of prompt text telling the narrator about the rule.
// Permanent unlocks from the cross-run record use the same Effects type, so
// one Set answers every rules question during a run.
package mutator

import (
	"math/rand/v2"
	"slices"
	"strings"
)

// Rarity controls how often a mutator is drawn.
type Rarity string

const (
	Common    Rarity = "common"
	Uncommon  Rarity = "uncommon"
	Rare      Rarity = "rare"
	Epic      Rarity = "epic"
	Legendary Rarity = "legendary"
)

var rarityWeight = map[Rarity]int{
	Common:    40,
	Uncommon:  30,
	Rare:      20,
	Epic:      8,
	Legendary: 2,
}

var rarityShards = map[Rarity]int{
	Common:    2,
	Uncommon:  4,
	Rare:      8,
	Epic:      15,
	Legendary: 30,
}

// Effects are the mechanical changes a rule applies. Zero values change nothing.
type Effects struct {
	// Added to every check's base difficulty.
	AllDifficulty int `json:"allDifficulty,omitempty"`
	// Added to the base difficulty of checks on the named stat.
	Difficulty map[string]int `json:"difficulty,omitempty"`
	// Subtracted from the threshold of checks on the named stat.
	Bonus map[string]int `json:"bonus,omitempty"`
	// Stats and bonuses stop mattering; every check rolls against the base.
	IgnoreStats bool `json:"ignoreStats,omitempty"`
	// Replaces every threshold when positive.
	FlatThreshold int `json:"flatThreshold,omitempty"`
	// Option types the narrator may not offer.
	Blocked []string `json:"blocked,omitempty"`
	// Multiplies fate points granted by fate events.
	FateMultiplier int `json:"fateMultiplier,omitempty"`
	// Halves the reroll cost, rounding up.
	HalveReroll bool `json:"halveReroll,omitempty"`
	// Subtracted from the reroll cost.
	RerollDiscount int `json:"rerollDiscount,omitempty"`
	// Applied once when the run starts.
	StartingReputation int            `json:"startingReputation,omitempty"`
	StartingFate       int            `json:"startingFate,omitempty"`
	StartingStats      map[string]int `json:"startingStats,omitempty"`
}

// Mutator is one named rule.
type Mutator struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"desc"`
	Rarity      Rarity  `json:"rarity,omitempty"`
	Effects     Effects `json:"effects"`
	// Prompt tells the narrator how the rule shapes the story.
	Prompt string `json:"prompt,omitempty"`
}

// ShardBonus is the cross-run reward for ending a run under m.
func (m Mutator) ShardBonus() int {
	return rarityShards[m.Rarity]
}

var catalog = []Mutator{
	{
		ID:          "blood_moon",
		Name:        "Blood Moon",
		Rarity:      Rare,
		Description: "A red moon hangs over the world; authority curdles into fear.",
		Effects:     Effects{Difficulty: map[string]int{"charisma": 2}},
		Prompt:      "Blood Moon: charisma checks are 2 harder, but empathy can tame hostile creatures.",
	},
	{
		ID:          "mana_drought",
		Name:        "Mana Drought",
		Rarity:      Common,
		Description: "The wellsprings of magic have run dry and machines rise.",
		Effects:     Effects{Blocked: []string{"magic"}},
		Prompt:      "Mana Drought: no option may rely on magic; inventions and tools work twice as well.",
	},
	{
		ID:          "paranoia_chain",
		Name:        "Chain of Suspicion",
		Rarity:      Uncommon,
		Description: "Everyone suspects everyone; trust is the scarcest coin.",
		Effects:     Effects{StartingReputation: -20},
		Prompt:      "Chain of Suspicion: characters start wary of the player, but alliances once won pay double.",
	},
	{
		ID:          "truth_curse",
		Name:        "Curse of Truth",
		Rarity:      Rare,
		Description: "Lies are exposed the moment they are spoken.",
		Effects:     Effects{Blocked: []string{"deceive"}, Bonus: map[string]int{"wisdom": 3}},
		Prompt:      "Curse of Truth: deception and disguise always fail; reasoning is sharpened.",
	},
	{
		ID:          "time_fracture",
		Name:        "Time Fracture",
		Rarity:      Epic,
		Description: "Time runs unevenly; some things happen too fast, others too slow.",
		Effects:     Effects{FateMultiplier: 2},
		Prompt:      "Time Fracture: actions may take far more or less time than expected, and fate stirs twice as often.",
	},
	{
		ID:          "endless_feast",
		Name:        "Endless Feast",
		Rarity:      Uncommon,
		Description: "The world has fallen into revelry and reason is rare.",
		Effects:     Effects{Difficulty: map[string]int{"wisdom": 2}, Bonus: map[string]int{"charisma": 2}},
		Prompt:      "Endless Feast: careful reasoning is harder, warmth and charm come easily.",
	},
	{
		ID:          "iron_law",
		Name:        "Age of Iron Law",
		Rarity:      Common,
		Description: "Harsh law rules everything; order above all.",
		Effects:     Effects{Bonus: map[string]int{"strength": 3}},
		Prompt:      "Age of Iron Law: force backed by law prevails, but failed risks are punished twice as hard.",
	},
	{
		ID:          "dream_plague",
		Name:        "Dream Plague",
		Rarity:      Epic,
		Description: "The line between waking and dreaming has blurred.",
		Prompt:      "Dream Plague: characters may change their attitude without warning; empathy sees through lies.",
	},
	{
		ID:          "survival_mode",
		Name:        "Last Days",
		Rarity:      Rare,
		Description: "Resources are desperately scarce; every choice is life or death.",
		Effects:     Effects{AllDifficulty: 1},
		Prompt:      "Last Days: every check is harder, the dead stay dead, and success is richly rewarded.",
	},
	{
		ID:          "golden_age",
		Name:        "Golden Age",
		Rarity:      Uncommon,
		Description: "Prosperity and peace, with something moving beneath.",
		Effects:     Effects{AllDifficulty: -1},
		Prompt:      "Golden Age: every check is easier, but friendly faces may hide dangerous secrets.",
	},
	{
		ID:          "chaos_storm",
		Name:        "Chaos Storm",
		Rarity:      Epic,
		Description: "Pure chance rules the world.",
		Effects:     Effects{HalveReroll: true},
		Prompt:      "Chaos Storm: outcomes swing to extremes, crushing defeat or total triumph; bending fate is cheap.",
	},
	{
		ID:          "ancestral_echo",
		Name:        "Ancestral Echo",
		Rarity:      Rare,
		Description: "The memories of the dead shape the living.",
		Prompt:      "Ancestral Echo: some characters mysteriously recognize the player from another life.",
	},
	{
		ID:          "wild_growth",
		Name:        "Wild Awakening",
		Rarity:      Uncommon,
		Description: "Nature surges back and civilization recedes.",
		Effects:     Effects{Difficulty: map[string]int{"charisma": 1}, Bonus: map[string]int{"luck": 3}},
		Prompt:      "Wild Awakening: nature and beasts favor the player; commanding people is harder.",
	},
	{
		ID:          "echo_chamber",
		Name:        "Echo Chamber",
		Rarity:      Rare,
		Description: "Every deed is amplified and spread.",
		Prompt:      "Echo Chamber: every gain or loss of standing is doubled, and secrets surface easily.",
	},
	{
		ID:          "coin_flip",
		Name:        "Coin of Fate",
		Rarity:      Common,
		Description: "Everything comes down to even odds.",
		Effects:     Effects{FlatThreshold: 7, IgnoreStats: true},
		Prompt:      "Coin of Fate: every check is an even gamble; skill does not matter.",
	},
	{
		ID:          "butterfly_effect",
		Name:        "Butterfly Effect",
		Rarity:      Epic,
		Description: "Small choices cause enormous consequences.",
		Prompt:      "Butterfly Effect: trivial choices may set off chain reactions; the plot is wildly unpredictable.",
	},
	{
		ID:          "mirror_world",
		Name:        "Mirror World",
		Rarity:      Legendary,
		Description: "Good and evil have traded places.",
		Prompt:      "Mirror World: the virtuous and the wicked have swapped sides; good intentions may end in disaster.",
	},
}

// Catalog returns every known world mutator.
func Catalog() []Mutator {
	return slices.Clone(catalog)
}

// Lookup finds a world mutator by id.
func Lookup(id string) (Mutator, bool) {
	for _, m := range catalog {
		if m.ID == id {
			return m, true
		}
	}
	return Mutator{}, false
}

// Resolve maps ids to mutators, skipping unknown ones.
func Resolve(ids []string) Set {
	var out Set
	for _, id := range ids {
		if m, ok := Lookup(id); ok {
			out = append(out, m)
		}
	}
	return out
}

// Draw picks n distinct mutators, each pick weighted by rarity.
// A nil r uses the global source.
func Draw(r *rand.Rand, n int) Set {
	pool := slices.Clone(catalog)
	var out Set
	for len(out) < n && len(pool) > 0 {
		total := 0
		for _, m := range pool {
			total += weight(m)
		}
		pick := intN(r, total)
		for i, m := range pool {
			pick -= weight(m)
			if pick < 0 {
				out = append(out, m)
				pool = slices.Delete(pool, i, i+1)
				break
			}
		}
	}
	return out
}

// DrawBetween picks a count in [lo, hi] and draws that many.
func DrawBetween(r *rand.Rand, lo, hi int) Set {
	if hi < lo {
		hi = lo
	}
	if hi <= 0 {
		return nil
	}
	n := lo + intN(r, hi-lo+1)
	return Draw(r, n)
}

func weight(m Mutator) int {
	if w, ok := rarityWeight[m.Rarity]; ok {
		return w
	}
	return 10
}

func intN(r *rand.Rand, n int) int {
	if r != nil {
		return r.IntN(n)
	}
	return rand.IntN(n)
}

// Set is every rule in force for one run.
type Set []Mutator

// IDs lists the ids in order.
func (s Set) IDs() []string {
	ids := make([]string, len(s))
	for i, m := range s {
		ids[i] = m.ID
	}
	return ids
}

// Threshold adjusts a check's threshold before clamping to the die.
// base is the difficulty's base and value the player's stat.
func (s Set) Threshold(base int, stat string, value int) int {
	flat := 0
	ignore := false
	shift, bonus := 0, 0
	for _, m := range s {
		e := m.Effects
		if e.FlatThreshold > 0 {
			flat = e.FlatThreshold
		}
		ignore = ignore || e.IgnoreStats
		shift += e.AllDifficulty + e.Difficulty[stat]
		bonus += e.Bonus[stat]
	}
	if flat > 0 {
		return flat
	}
	if ignore {
		return base + shift
	}
	return base + shift - value/2 - bonus
}

// Blocks reports whether options of optionType are forbidden.
func (s Set) Blocks(optionType string) bool {
	if optionType == "" {
		return false
	}
	for _, m := range s {
		if slices.Contains(m.Effects.Blocked, optionType) {
			return true
		}
	}
	return false
}

// FatePoints scales a fate grant by every multiplier in force.
func (s Set) FatePoints(points int) int {
	for _, m := range s {
		if m.Effects.FateMultiplier > 1 {
			points *= m.Effects.FateMultiplier
		}
	}
	return points
}

// RerollCost applies halving and discounts to base. It never goes below zero.
func (s Set) RerollCost(base int) int {
	cost := base
	for _, m := range s {
		if m.Effects.HalveReroll {
			cost = (cost + 1) / 2
		}
	}
	for _, m := range s {
		cost -= m.Effects.RerollDiscount
	}
	return max(cost, 0)
}

// StartingReputation sums the reputation shifts applied at run start.
func (s Set) StartingReputation() int {
	n := 0
	for _, m := range s {
		n += m.Effects.StartingReputation
	}
	return n
}

// StartingFate sums the fate points granted at run start.
func (s Set) StartingFate() int {
	n := 0
	for _, m := range s {
		n += m.Effects.StartingFate
	}
	return n
}

// StartingStats sums the stat boosts applied at run start.
func (s Set) StartingStats() map[string]int {
	out := map[string]int{}
	for _, m := range s {
		for k, v := range m.Effects.StartingStats {
			out[k] += v
		}
	}
	return out
}

// ShardBonus sums the rarity rewards of the set.
func (s Set) ShardBonus() int {
	n := 0
	for _, m := range s {
		n += m.ShardBonus()
	}
	return n
}

// Prompt renders the narrator instructions for the set, empty when no rule
// carries any.
func (s Set) Prompt() string {
	var lines []string
	for _, m := range s {
		if m.Prompt != "" {
			lines = append(lines, "- "+m.Prompt)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "World rules in force:\n" + strings.Join(lines, "\n") + "\nHonor these rules in the story and in the options you offer."
}
