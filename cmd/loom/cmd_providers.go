package main

import (
	"fmt"
	"strings"

	"fateloom/internal/provider"

	"github.com/spf13/cobra"
)

// =============================================================================
// PROVIDER COMMANDS
// =============================================================================

func providersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Inspect text-generation providers",
		RunE:  runProvidersList,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List provider presets",
		RunE:  runProvidersList,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "detect <credential>",
		Short: "Show which provider a credential selects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := newRegistry(cfg)
			d := reg.Detect(args[0])
			p, ok := reg.Preset(d.Preset)
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintf(out, "%s\n", d.Preset)
				return nil
			}
			model := d.Model
			if model == "" {
				model = p.DefaultModel
			}
			fmt.Fprintf(out, "%s %s\n", titleStyle.Render(p.DisplayName), mutedStyle.Render("("+p.Name+")"))
			fmt.Fprintf(out, "  model: %s\n", model)
			if p.BaseURL != "" {
				fmt.Fprintf(out, "  base url: %s\n", p.BaseURL)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "probe [preset...]",
		Short: "Check credentials against the configured or named providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			reg := newRegistry(cfg)
			orch := provider.NewOrchestrator(reg)
			var targets []provider.Provider
			if len(args) == 0 {
				p, err := reg.SelectByCredentialShape(cfg.LLM.Credential, provider.Overrides{
					Provider: cfg.LLM.Provider,
					Model:    cfg.LLM.Model,
					BaseURL:  cfg.LLM.BaseURL,
				})
				if err != nil {
					return err
				}
				targets = append(targets, p)
			}
			for _, name := range args {
				p, err := reg.New(name, provider.Config{Credential: cfg.LLM.Credential})
				if err != nil {
					return err
				}
				targets = append(targets, p)
			}

			t := newTable("Probe", "Provider", "Model", "Reachable", "Elapsed")
			for _, r := range orch.Probe(ctx, targets...) {
				reach := errorStyle.Render("no")
				if r.Reachable {
					reach = titleStyle.Render("yes")
				}
				t.add(r.Info.DisplayName, r.Info.ModelID, reach, r.Elapsed.Round(1e6).String())
			}
			fmt.Fprint(cmd.OutOrStdout(), t)
			return nil
		},
	})
	return cmd
}

func runProvidersList(cmd *cobra.Command, args []string) error {
	reg := newRegistry(cfg)
	t := newTable("Providers", "Name", "Display", "Default model", "Key prefix")
	for _, p := range reg.Presets() {
		t.add(p.Name, p.DisplayName, p.DefaultModel, p.KeyPrefix)
	}
	fmt.Fprint(cmd.OutOrStdout(), t)
	fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Variants: "+strings.Join(reg.Names(), ", ")))
	return nil
}
