package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"fateloom/internal/session"
	"fateloom/internal/state"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// =============================================================================
// RUN COMMANDS
// =============================================================================

func newCmd() *cobra.Command {
	var (
		worldIndex int
		name       string
		role       string
		background string
		traits     []string
		stats      map[string]int
	)
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a new run in the save namespace",
		Long: `Generates candidate worlds, starts a run in the chosen one and prints the
opening scene. Any run already in the namespace is replaced.

The run draws its world rules (mutators) per the config and carries every
boon bought with soul shards. Backgrounds beyond the free ones must be bought
first with "loom legacy buy".

Example:
  loom new --name Mira --world 2 --stat strength=2 --stat luck=4 --background noble --trait curious`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			seeds, err := a.sess.GenerateWorlds(ctx)
			if err != nil {
				return fmt.Errorf("generate worlds: %w", err)
			}
			if len(seeds) == 0 {
				return fmt.Errorf("the provider offered no worlds; try again")
			}
			for i, w := range seeds {
				fmt.Fprintf(out, "%s %s\n", titleStyle.Render(fmt.Sprintf("%d. %s", i+1, w.Name)), mutedStyle.Render(w.Theme))
				fmt.Fprintln(out, storyStyle.Render(w.Desc))
			}
			if worldIndex < 1 || worldIndex > len(seeds) {
				worldIndex = 1
			}
			seed := seeds[worldIndex-1]

			player := state.DefaultPlayer()
			if name != "" {
				player.Name = name
			}
			if role != "" {
				player.Role = role
			}
			if background != "" {
				player.Background = background
			}
			player.Traits = traits
			for k, v := range stats {
				player.Stats[k] = v
			}

			logger.Info("starting run", zap.String("world", seed.Name), zap.String("player", player.Name))
			applied, err := a.sess.StartRun(ctx, seed, player)
			if err != nil {
				return fmt.Errorf("opening scene: %w", err)
			}
			fmt.Fprintln(out)
			v := a.sess.View()
			printRules(out, v)
			printScene(out, v, applied)
			return nil
		},
	}
	cmd.Flags().IntVar(&worldIndex, "world", 1, "Which generated world to play (1-based)")
	cmd.Flags().StringVar(&name, "name", "", "Player name")
	cmd.Flags().StringVar(&role, "role", "", "Player role")
	cmd.Flags().StringVar(&background, "background", "", "Player background (wanderer, noble, merchant, temple, mystery or a bought one)")
	cmd.Flags().StringSliceVar(&traits, "trait", nil, "Personality trait, at most two (cautious, reckless, curious, practical)")
	cmd.Flags().StringToIntVar(&stats, "stat", nil, "Player stat, repeatable (strength, wisdom, charisma, luck)")
	return cmd
}

func stepCmd() *cobra.Command {
	var (
		reroll bool
		text   string
	)
	cmd := &cobra.Command{
		Use:   "step [option-number]",
		Short: "Play one turn by choosing an offered option",
		Long: `Plays the numbered option from the current scene, or free text with --do.
Risky options roll a d12 check first; with --reroll a failed check is rolled
again once for fate points (3 unless the run's rules change it).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			opt, err := chooseOption(a.sess.View().Options, args, text)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			turn := session.Turn{Option: opt}
			if opt.IsRisk() || opt.CheckStat != "" {
				check := rollCheck(out, a.sess, opt, reroll)
				turn.Check = &check
			}

			streamed := false
			if a.sess.Orchestrator().Streaming() {
				turn.OnChunk = func(fragment string, final bool) {
					if final {
						fmt.Fprintln(out)
						return
					}
					streamed = true
					fmt.Fprint(out, mutedStyle.Render(fragment))
				}
			}

			res, err := a.sess.Step(ctx, turn)
			if err != nil {
				return fmt.Errorf("turn failed, your action is kept and can be retried: %w", err)
			}
			if streamed {
				fmt.Fprintln(out)
			}
			printScene(out, a.sess.View(), res.Applied)
			if res.Compressed {
				fmt.Fprintln(out, mutedStyle.Render("(older history was summarized)"))
			}
			logger.Debug("turn complete", zap.Duration("elapsed", res.Duration))
			return nil
		},
	}
	cmd.Flags().BoolVar(&reroll, "reroll", false, "Spend fate points to reroll a failed check")
	cmd.Flags().StringVar(&text, "do", "", "Free-text action instead of an offered option")
	return cmd
}

// chooseOption resolves the 1-based option argument or a free-text action.
func chooseOption(options []state.Option, args []string, text string) (state.Option, error) {
	if text != "" {
		return state.Option{Text: text}, nil
	}
	if len(args) == 0 {
		return state.Option{}, fmt.Errorf("choose an option number or pass --do")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(options) {
		return state.Option{}, fmt.Errorf("option must be between 1 and %d", len(options))
	}
	return options[n-1], nil
}

func rollCheck(out io.Writer, s *session.Session, opt state.Option, reroll bool) session.CheckResult {
	difficulty := opt.Difficulty
	if opt.IsRisk() && difficulty == "" {
		difficulty = "hard"
	}
	check := s.Check(opt.CheckStat, difficulty)
	printCheck(out, check)
	if !check.Success && reroll {
		again, err := s.Reroll(check)
		if err != nil {
			fmt.Fprintln(out, warnStyle.Render("Reroll refused: "+err.Error()))
			return check
		}
		printCheck(out, again)
		return again
	}
	return check
}

func printCheck(out io.Writer, c session.CheckResult) {
	verdict := errorStyle.Render("failure")
	if c.Success {
		verdict = titleStyle.Render("success")
	}
	label := "Check"
	if c.Rerolled {
		label = "Reroll"
	}
	fmt.Fprintf(out, "%s %s (%s): rolled %d, needed %d - %s\n", label, c.Stat, c.Difficulty, c.Roll, c.Threshold, verdict)
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current scene and run status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			v := a.sess.View()
			printScene(out, v, session.Applied{})
			printRules(out, v)

			if len(v.Factions) > 0 {
				t := newTable("Factions", "#", "Name", "Stance", "Reputation")
				for i, f := range v.Factions {
					t.add(strconv.Itoa(i), f.Name, f.Stance, strconv.Itoa(f.Reputation))
				}
				fmt.Fprint(out, t)
			}
			if ents := a.sess.Entities(); len(ents) > 0 {
				t := newTable("Characters", "ID", "Name", "Role", "Status")
				for _, e := range ents {
					t.add(e.ID, e.Name, e.Role, string(e.Status))
				}
				fmt.Fprint(out, t)
			}
			if rels := a.sess.Relationships(); len(rels) > 0 {
				t := newTable("Relationships", "From", "To", "Type")
				for _, r := range rels {
					if r.Revealed {
						t.add(r.From, r.To, r.Type)
					} else {
						t.add(r.From, r.To, "???")
					}
				}
				fmt.Fprint(out, t)
			}
			return nil
		},
	}
}

func logCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the run's history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if summary := a.sess.View().CompressedHistory; summary != "" {
				fmt.Fprintln(out, titleStyle.Render("Story so far"))
				fmt.Fprintln(out, storyStyle.Render(summary))
			}
			for _, e := range a.sess.Log(n) {
				fmt.Fprintf(out, "%s %s\n", mutedStyle.Render("["+e.Role+"]"), e.Text)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "lines", "n", 0, "Only the last n entries (0 = all)")
	return cmd
}

func compressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compress",
		Short: "Summarize the history now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.sess.CompressHistory(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), storyStyle.Render(a.sess.View().CompressedHistory))
			return nil
		},
	}
}

// printScene renders the story, status line, notable changes and options.
func printScene(out io.Writer, v session.View, applied session.Applied) {
	status := fmt.Sprintf("%s, %s | Fate %d | Doom %d/100 | %s",
		v.Calendar.Label(), v.Calendar.TimeLabel(), v.FatePoints, v.DoomValue, v.WorldName)
	fmt.Fprintln(out, mutedStyle.Render(status))
	fmt.Fprintln(out, storyStyle.Render(v.Story))

	var notes []string
	if applied.EntityAdded && len(v.Entities) > 0 {
		notes = append(notes, "New character: "+v.Entities[len(v.Entities)-1].Name)
	}
	if applied.FatePoints > 0 {
		notes = append(notes, fmt.Sprintf("+%d fate points", applied.FatePoints))
	}
	if applied.DoomLevelUp {
		notes = append(notes, fmt.Sprintf("Doom rises to level %d", v.DoomLevel))
	}
	for _, d := range applied.Snapshots {
		notes = append(notes, "Snapshot: "+d.Label)
	}
	if len(notes) > 0 {
		fmt.Fprintln(out, warnStyle.Render(strings.Join(notes, "\n")))
	}

	for i, o := range v.Options {
		tag := ""
		if o.IsRisk() {
			tag = errorStyle.Render(" [risk]")
		}
		fmt.Fprintf(out, "  %s %s%s\n", titleStyle.Render(strconv.Itoa(i+1)+"."), o.Text, tag)
	}
}
