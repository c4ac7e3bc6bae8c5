package main

import (
	"github.com/spf13/cobra"

	"github.com/yairfalse/sweeper/internal/report"
)

var (
	runPolicy string
	runRegion string

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run one policy in one region",
		Long: `Run a single cleanup pass: list the policy's candidates in one region,
advance their day counters, alert owners and delete what reached the deadline.`,
		Example: `  sweeper run --policy unattached_volume --region eu-west-1
  sweeper run --policy empty_roles --dry-run=false`,
		RunE: runSingle,
	}
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runPolicy, "policy", "", "Policy to run")
	runCmd.Flags().StringVar(&runRegion, "region", "", "Region to scan (default: first configured region)")
	_ = runCmd.MarkFlagRequired("policy")
}

func runSingle(cmd *cobra.Command, args []string) error {
	region := runRegion
	if region == "" {
		region = cfg.Regions[0]
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(ctx) }()

	r, err := a.runBatch(ctx, []string{region}, []string{runPolicy})
	if r != nil {
		report.Batch(cmd.OutOrStdout(), r)
	}
	return err
}
