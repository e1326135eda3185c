package legacy

import (
	"fmt"

	"fateloom/internal/mutator"
)

// Shard rewards.
const (
	shardsPerDay        = 1
	shardsPerAlly       = 5
	shardsHighStanding  = 10
	shardsVictory       = 50
	highStandingAtLeast = 80
)

// RunSummary is what a finished run is paid out on.
type RunSummary struct {
	World         string
	Player        string
	Victory       bool
	Days          int
	Allies        int
	FatePoints    int
	MaxReputation int
	Rules         mutator.Set
}

// Calculate returns the soul shards a run earns and a line per reward.
func Calculate(sum RunSummary) (int, []string) {
	total := 0
	var lines []string
	add := func(n int, format string, args ...any) {
		if n <= 0 {
			return
		}
		total += n
		lines = append(lines, fmt.Sprintf("+%d %s", n, fmt.Sprintf(format, args...)))
	}

	add(sum.Days*shardsPerDay, "survived %d days", sum.Days)
	add(sum.Allies*shardsPerAlly, "%d allies", sum.Allies)
	add(sum.FatePoints/2, "%d unspent fate points", sum.FatePoints)
	if sum.MaxReputation >= highStandingAtLeast {
		add(shardsHighStanding, "high standing (%d)", sum.MaxReputation)
	}
	for _, m := range sum.Rules {
		add(m.ShardBonus(), "%s", m.Name)
	}
	if sum.Victory {
		add(shardsVictory, "victory")
	}
	return total, lines
}
