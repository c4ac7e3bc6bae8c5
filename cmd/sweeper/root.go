package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/yairfalse/sweeper/internal/config"
	"github.com/yairfalse/sweeper/internal/telemetry"
)

var (
	version = "0.1.0"

	configPath string
	cfg        *config.Config

	rootCmd = &cobra.Command{
		Use:   "sweeper",
		Short: "Policy-driven cleanup of idle cloud resources",
		Long: `Sweeper - idle cloud resource cleanup

Sweeper counts, day by day, how long each candidate resource has been idle.
The counter lives on the resource itself as a DaysCount tag. Owners are alerted
as the deadline approaches, and the resource is deleted once it is reached,
unless it carries a Skip tag.

Runs are dry by default.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Sweeper {{.Version}} - idle cloud resource cleanup
`)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	addOverrideFlags(rootCmd.PersistentFlags())
}

// addOverrideFlags defines the flags applyFlags reads
func addOverrideFlags(flags *pflag.FlagSet) {
	flags.Bool("dry-run", true, "Evaluate only: never delete and never write tags")
	flags.Int("days-to-take-action", 7, "Idle days before deletion")
	flags.Bool("force-delete", false, "Delete --resource-id immediately")
	flags.String("resource-id", "", "Resource targeted by --force-delete")
	flags.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", "console", "Log format (console, json)")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd.Flags(), loaded); err != nil {
		return err
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	if err := telemetry.SetupLogging(loaded.Log.Level, loaded.Log.Format, os.Stderr); err != nil {
		return err
	}

	cfg = loaded
	return nil
}

// applyFlags overrides config values with explicitly set flags
func applyFlags(flags *pflag.FlagSet, c *config.Config) error {
	var err error
	if flags.Changed("dry-run") {
		if c.DryRun, err = flags.GetBool("dry-run"); err != nil {
			return err
		}
	}
	if flags.Changed("days-to-take-action") {
		if c.DaysToTakeAction, err = flags.GetInt("days-to-take-action"); err != nil {
			return err
		}
	}
	if flags.Changed("force-delete") {
		if c.ForceDelete, err = flags.GetBool("force-delete"); err != nil {
			return err
		}
	}
	if flags.Changed("resource-id") {
		if c.ResourceID, err = flags.GetString("resource-id"); err != nil {
			return err
		}
	}
	if flags.Changed("log-level") {
		if c.Log.Level, err = flags.GetString("log-level"); err != nil {
			return err
		}
	}
	if flags.Changed("log-format") {
		if c.Log.Format, err = flags.GetString("log-format"); err != nil {
			return err
		}
	}
	return nil
}
