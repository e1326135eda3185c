package legacy

import (
	"slices"

	"fateloom/internal/mutator"
)

// Category groups shop items.
type Category string

const (
	CategoryBackground   Category = "background"
	CategoryStartingItem Category = "starting_item"
	CategoryAbility      Category = "ability"
)

// NoFaction marks a background without a faction tie.
const NoFaction = -1

// Item is a background or boon. Free backgrounds cost nothing and are
// always available; the rest are bought with soul shards.
type Item struct {
	ID          string
	Name        string
	Description string
	Category    Category
	Cost        int
	// Faction index whose starting reputation the background raises.
	Faction      int
	FactionBonus int
	// Points added to one stat picked at random when the run starts.
	RandomStat int
	Effects    mutator.Effects
	Prompt     string
}

// Free reports whether every player owns the item.
func (it Item) Free() bool { return it.Cost == 0 }

// Rule turns the item into a rule that joins the run's mutator set.
func (it Item) Rule() mutator.Mutator {
	return mutator.Mutator{
		ID:          it.ID,
		Name:        it.Name,
		Description: it.Description,
		Effects:     it.Effects,
		Prompt:      it.Prompt,
	}
}

var items = []Item{
	{
		ID:          "wanderer",
		Name:        "Wanderer",
		Description: "No home, no ties, no expectations.",
		Category:    CategoryBackground,
		Faction:     NoFaction,
	},
	{
		ID:           "noble",
		Name:         "Noble",
		Description:  "Born into the first faction's court.",
		Category:     CategoryBackground,
		Faction:      0,
		FactionBonus: 15,
	},
	{
		ID:           "merchant",
		Name:         "Merchant",
		Description:  "Known in the second faction's markets.",
		Category:     CategoryBackground,
		Faction:      1,
		FactionBonus: 15,
	},
	{
		ID:           "temple",
		Name:         "Temple Acolyte",
		Description:  "Raised by the third faction's clergy.",
		Category:     CategoryBackground,
		Faction:      2,
		FactionBonus: 15,
	},
	{
		ID:          "mystery",
		Name:        "Mystery",
		Description: "Nobody knows where you came from, least of all you.",
		Category:    CategoryBackground,
		Faction:     NoFaction,
		RandomStat:  3,
	},
	{
		ID:           "exile",
		Name:         "Exile",
		Description:  "Cast out once, and still remembered.",
		Category:     CategoryBackground,
		Cost:         50,
		Faction:      0,
		FactionBonus: 20,
		Effects:      mutator.Effects{StartingStats: map[string]int{"charisma": 2}},
		Prompt:       "Exile: the player was banished long ago; old acquaintances recognize them.",
	},
	{
		ID:          "cyborg",
		Name:        "Cyborg",
		Description: "Part flesh, part clockwork.",
		Category:    CategoryBackground,
		Cost:        80,
		Faction:     NoFaction,
		Effects:     mutator.Effects{StartingStats: map[string]int{"wisdom": 3}},
		Prompt:      "Cyborg: the player's body is partly machine; people stare.",
	},
	{
		ID:          "cultist",
		Name:        "Former Cultist",
		Description: "Walked away from a god that still watches.",
		Category:    CategoryBackground,
		Cost:        100,
		Faction:     NoFaction,
		Effects:     mutator.Effects{StartingStats: map[string]int{"luck": 2}},
		Prompt:      "Former Cultist: the player once served a forbidden god that has not forgotten them.",
	},
	{
		ID:          "timelord",
		Name:        "Time Wanderer",
		Description: "Has lived this day before.",
		Category:    CategoryBackground,
		Cost:        150,
		Faction:     NoFaction,
		Effects:     mutator.Effects{StartingFate: 5},
		Prompt:      "Time Wanderer: the player has faint memories of futures that have not happened yet.",
	},
	{
		ID:          "father_relic",
		Name:        "Father's Relic",
		Description: "Every check is a little easier.",
		Category:    CategoryStartingItem,
		Cost:        30,
		Effects:     mutator.Effects{AllDifficulty: -1},
	},
	{
		ID:          "master_key",
		Name:        "Master Key",
		Description: "Luck checks gain +2.",
		Category:    CategoryStartingItem,
		Cost:        40,
		Effects:     mutator.Effects{Bonus: map[string]int{"luck": 2}},
	},
	{
		ID:          "truth_monocle",
		Name:        "Monocle of Truth",
		Description: "Wisdom checks gain +2.",
		Category:    CategoryStartingItem,
		Cost:        60,
		Effects:     mutator.Effects{Bonus: map[string]int{"wisdom": 2}},
	},
	{
		ID:          "silver_tongue",
		Name:        "Silver Tongue",
		Description: "Charisma checks gain +3 and every faction starts warmer.",
		Category:    CategoryStartingItem,
		Cost:        50,
		Effects:     mutator.Effects{Bonus: map[string]int{"charisma": 3}, StartingReputation: 10},
	},
	{
		ID:          "reincarnation_memory",
		Name:        "Reincarnation Memory",
		Description: "Glimpses of earlier lives.",
		Category:    CategoryAbility,
		Cost:        100,
		Prompt:      "Reincarnation Memory: the player sometimes recalls people and places from earlier lives.",
	},
	{
		ID:          "fate_affinity",
		Name:        "Fate Affinity",
		Description: "Start with 3 extra fate points; rerolls cost 1 less.",
		Category:    CategoryAbility,
		Cost:        80,
		Effects:     mutator.Effects{StartingFate: 3, RerollDiscount: 1},
	},
	{
		ID:          "prophecy_sight",
		Name:        "Prophecy Sight",
		Description: "Omens before great events.",
		Category:    CategoryAbility,
		Cost:        120,
		Prompt:      "Prophecy Sight: before a major event, hint at it through an omen or a dream.",
	},
}

// Items lists every background and boon, free ones first.
func Items() []Item {
	return slices.Clone(items)
}

// Shop lists the items that cost shards.
func Shop() []Item {
	var out []Item
	for _, it := range items {
		if !it.Free() {
			out = append(out, it)
		}
	}
	return out
}

// LookupItem finds an item by id.
func LookupItem(id string) (Item, bool) {
	for _, it := range items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Rules turns owned item ids into rules, skipping unknown ones.
func Rules(ids []string) mutator.Set {
	var out mutator.Set
	for _, id := range ids {
		if it, ok := LookupItem(id); ok {
			out = append(out, it.Rule())
		}
	}
	return out
}
