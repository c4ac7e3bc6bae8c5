package main

import (
	"github.com/spf13/cobra"

	"github.com/yairfalse/sweeper/internal/report"
	"github.com/yairfalse/sweeper/providers"
)

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "List available cleanup policies",
	RunE: func(cmd *cobra.Command, args []string) error {
		report.Policies(cmd.OutOrStdout(), providers.List())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(policiesCmd)
}
