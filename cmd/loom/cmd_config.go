package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fateloom/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// CONFIG COMMANDS
// =============================================================================

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show, create or watch the configuration",
		RunE:  runConfigShow,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (credential masked)",
		RunE:  runConfigShow,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default config file if none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("%s already exists", configPath)
			}
			if err := config.DefaultConfig().Save(configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Validate the config file every time it changes (Ctrl+C to stop)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			w, err := config.Watch(ctx, configPath, func(c *config.Config, err error) {
				if err == nil {
					err = c.Validate()
				}
				if err != nil {
					logger.Warn("config reload rejected", zap.Error(err))
					fmt.Fprintln(out, errorStyle.Render("invalid: "+err.Error()))
					return
				}
				fmt.Fprintf(out, "%s provider=%s storage=%s\n", titleStyle.Render("reloaded"), c.LLM.Provider, c.Storage.Backend)
			})
			if err != nil {
				return err
			}
			defer w.Stop()
			fmt.Fprintf(out, "Watching %s\n", configPath)
			<-ctx.Done()
			return nil
		},
	})
	return cmd
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	shown := *cfg
	if shown.LLM.Credential != "" {
		shown.LLM.Credential = maskCredential(shown.LLM.Credential)
	}
	data, err := yaml.Marshal(&shown)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

// maskCredential keeps the prefix that drives provider detection.
func maskCredential(c string) string {
	if len(c) <= 8 {
		return "****"
	}
	return c[:7] + "****"
}
