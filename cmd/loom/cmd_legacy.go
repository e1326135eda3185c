package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"fateloom/internal/legacy"
	"fateloom/internal/logging"
	"fateloom/internal/session"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// =============================================================================
// LEGACY COMMANDS
// =============================================================================

func endCmd() *cobra.Command {
	var victory bool
	cmd := &cobra.Command{
		Use:   "end",
		Short: "End the current run and collect soul shards",
		Long: `Closes the run in the save namespace. Soul shards are paid into the
namespace's legacy record for days survived, allies, unspent fate points,
high standing, the world rules endured and, with --victory, the ending.
The autosave and snapshots are removed; the legacy record stays.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			got, err := a.sess.EndRun(ctx, victory)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printSettlement(out, got)
			logger.Info("run ended", zap.Bool("victory", victory), zap.Int("shards", got.Shards))
			return nil
		},
	}
	cmd.Flags().BoolVar(&victory, "victory", false, "The run reached its ending")
	return cmd
}

// openBook opens the namespace's legacy record without a session.
func openBook() (*legacy.Book, func() error, error) {
	ctx, cancel := commandContext()
	defer cancel()

	backend, gw, err := openGateway(cfg)
	if err != nil {
		return nil, nil, err
	}
	book, err := legacy.Open(ctx, gw)
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}
	return book, backend.Close, nil
}

func legacyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "legacy",
		Short: "Show the record kept across runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			book, closeFn, err := openBook()
			if err != nil {
				return err
			}
			defer closeFn()
			printRecord(cmd.OutOrStdout(), book.Record())
			return nil
		},
	}
	cmd.AddCommand(legacyShopCmd())
	cmd.AddCommand(legacyBuyCmd())
	return cmd
}

func legacyShopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shop",
		Short: "List what soul shards can buy",
		RunE: func(cmd *cobra.Command, args []string) error {
			book, closeFn, err := openBook()
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("Soul shards: %d", book.Shards())))
			fmt.Fprint(out, shopTable(legacy.Shop(), book.IsUnlocked))
			return nil
		},
	}
}

func legacyBuyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "buy <id>",
		Short: "Buy a background or boon with soul shards",
		Long: `Unlocks a shop item. Backgrounds become selectable with "loom new
--background"; starting items and abilities apply to every later run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			book, closeFn, err := openBook()
			if err != nil {
				return err
			}
			defer closeFn()

			item, err := book.Purchase(ctx, args[0])
			if err != nil {
				return err
			}
			logging.AuditWithSession(cfg.Storage.Namespace).Event(logging.AuditLegacyPurchase, item.ID, strconv.Itoa(item.Cost))
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s for %d shards, %d left\n",
				titleStyle.Render("Unlocked"), item.Name, item.Cost, book.Shards())
			return nil
		},
	}
}

func shopTable(items []legacy.Item, owned func(string) bool) *table {
	t := newTable("Shop", "ID", "Name", "Kind", "Cost", "Effect")
	for _, it := range items {
		cost := strconv.Itoa(it.Cost)
		if owned(it.ID) {
			cost = "owned"
		}
		t.add(it.ID, it.Name, string(it.Category), cost, it.Description)
	}
	return t
}

func printRecord(out io.Writer, rec legacy.Record) {
	st := rec.Statistics
	fmt.Fprintln(out, titleStyle.Render("Legacy"))
	fmt.Fprintf(out, "  Runs %d (victories %d, deaths %d), longest %d days\n",
		st.TotalRuns, st.TotalVictories, st.TotalDeaths, st.LongestSurvival)
	fmt.Fprintf(out, "  Soul shards %d (earned %d)\n", st.SoulShards, st.TotalShardsEarned)
	unlocked := append(append(append([]string(nil), rec.Unlocks.Backgrounds...), rec.Unlocks.StartingItems...), rec.Unlocks.Abilities...)
	fmt.Fprintf(out, "  Unlocked: %s\n", strings.Join(unlocked, ", "))
	if len(rec.Achievements) > 0 {
		fmt.Fprintf(out, "  Achievements: %s\n", strings.Join(rec.Achievements, ", "))
	}
	if len(rec.History.BestRuns) > 0 {
		t := newTable("Best runs", "World", "Player", "Days", "Score", "Outcome")
		for _, r := range rec.History.BestRuns {
			outcome := "fell"
			if r.Victory {
				outcome = "victory"
			}
			t.add(r.World, r.Player, strconv.Itoa(r.Days), strconv.Itoa(r.Score), outcome)
		}
		fmt.Fprint(out, t)
	}
	if n := len(rec.History.DiscoveredNPCs); n > 0 {
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%d characters met across all runs", n)))
	}
}

func printSettlement(out io.Writer, s session.Settlement) {
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("The run is over: %d soul shards", s.Shards)))
	for _, line := range s.Reasons {
		fmt.Fprintln(out, "  "+line)
	}
	if len(s.Achievements) > 0 {
		fmt.Fprintln(out, warnStyle.Render("New achievements: "+strings.Join(s.Achievements, ", ")))
	}
	fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("Balance: %d", s.Balance)))
}

// printRules lists the world rules and bought boons in force.
func printRules(out io.Writer, v session.View) {
	var lines []string
	for _, r := range v.Rules {
		if it, ok := legacy.LookupItem(r.ID); ok && it.Free() {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s %s", titleStyle.Render(r.Name), mutedStyle.Render(r.Description)))
	}
	if len(lines) > 0 {
		fmt.Fprintln(out, headerStyle.Render("World rules"))
		fmt.Fprintln(out, strings.Join(lines, "\n"))
	}
}
