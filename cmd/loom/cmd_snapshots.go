package main

import (
	"errors"
	"fmt"
	"strconv"

	"fateloom/internal/session"
	"fateloom/internal/snapshot"

	"github.com/spf13/cobra"
)

// =============================================================================
// SNAPSHOT COMMANDS
// =============================================================================

func snapshotsCmd() *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List rewind points, or capture one with --take",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if label != "" {
				d, _, err := a.sess.RequestSnapshot(ctx, session.TriggerManual, label)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "Captured "+d.Label)
			}

			snaps := a.sess.Snapshots()
			if len(snaps) == 0 {
				fmt.Fprintln(out, "No snapshots yet.")
				return nil
			}
			t := newTable(fmt.Sprintf("Snapshots (fate points: %d)", a.sess.View().FatePoints), "ID", "Label", "When", "Cost")
			for _, d := range snaps {
				cost := strconv.Itoa(d.Cost)
				if d.IsMajor {
					cost += " *"
				}
				t.add(d.ID, d.Label, d.CalendarLabel, cost)
			}
			fmt.Fprint(out, t)
			fmt.Fprintln(out, mutedStyle.Render(`Use: loom revert <id>`))
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "take", "", "Capture a snapshot with this label first")
	return cmd
}

func revertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revert <snapshot-id>",
		Short: "Rewind the run to a snapshot, paying its fate cost",
		Long: `Restores the run to the snapshot and discards every later snapshot.
Fate points spent on the rewind are not refunded by it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			a, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.sess.RequestRevert(ctx, args[0])
			var short *snapshot.InsufficientResourceError
			switch {
			case errors.As(err, &short):
				return fmt.Errorf("not enough fate points: need %d, have %d", short.Need, short.Have)
			case err != nil:
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("Time rewinds to "+snap.Label))
			printScene(out, a.sess.View(), session.Applied{})
			return nil
		},
	}
}
