package main

import (
	"fmt"
	"strconv"
	"time"

	"fateloom/internal/state"
	"fateloom/internal/store"

	"github.com/spf13/cobra"
)

// =============================================================================
// SAVE MANAGEMENT COMMANDS
// =============================================================================

func savesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saves",
		Short: "List save namespaces in the configured storage",
		RunE:  runSavesList,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List save namespaces",
		RunE:  runSavesList,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <namespace>",
		Short: "Delete a save namespace's autosave and snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			backend, err := store.Open(cfg.Storage.Backend, cfg.Storage.Path)
			if err != nil {
				return err
			}
			defer backend.Close()

			gw := store.NewGateway(backend,
				store.WithNamespace(args[0]),
				store.WithSlots(cfg.Storage.AutosaveKey, cfg.Storage.LedgerKey))
			if err := gw.Delete(ctx, gw.AutosaveKey()); err != nil {
				return err
			}
			if err := gw.Delete(ctx, gw.LedgerKey()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted save %q\n", args[0])
			return nil
		},
	})
	return cmd
}

func runSavesList(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	backend, err := store.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer backend.Close()

	names, err := store.Namespaces(ctx, backend, cfg.Storage.AutosaveKey)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(names) == 0 {
		fmt.Fprintln(out, "No saves found.")
		return nil
	}

	t := newTable("Saves", "Namespace", "World", "Date", "Fate", "Characters", "Saved")
	for _, ns := range names {
		gw := store.NewGateway(backend,
			store.WithNamespace(ns),
			store.WithSlots(cfg.Storage.AutosaveKey, cfg.Storage.LedgerKey))
		data, ok, err := gw.Load(ctx, gw.AutosaveKey())
		if err != nil || !ok {
			continue
		}
		info, ok := state.Peek(data)
		if !ok {
			t.add(displayNamespace(ns), errorStyle.Render("unreadable"), "", "", "", "")
			continue
		}
		saved := ""
		if !info.Timestamp.IsZero() {
			saved = info.Timestamp.Local().Format(time.DateTime)
		}
		t.add(displayNamespace(ns), info.WorldName, info.Calendar.Label(),
			strconv.Itoa(info.FatePoints), strconv.Itoa(info.EntityCount), saved)
	}
	fmt.Fprint(out, t)
	return nil
}

func displayNamespace(ns string) string {
	if ns == "" {
		return "(default)"
	}
	return ns
}
