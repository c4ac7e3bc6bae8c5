package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/yairfalse/sweeper/internal/report"
)

var errBatchFailed = errors.New("one or more passes failed")

var (
	batchRegions  []string
	batchPolicies []string

	batchCmd = &cobra.Command{
		Use:   "batch",
		Short: "Run every policy in every region once",
		Long: `Run every configured policy in every configured region, one pass at a time.
Global policies run once, in the global region. A failed pass never stops the others.`,
		Example: `  sweeper batch
  sweeper batch --regions us-east-1,eu-west-1 --policies ec2_stop,sqs_inactive`,
		RunE: runBatchCmd,
	}
)

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringSliceVar(&batchRegions, "regions", nil, "Regions to scan (default: config regions)")
	batchCmd.Flags().StringSliceVar(&batchPolicies, "policies", nil, "Policies to run (default: config policies, or all)")
}

func runBatchCmd(cmd *cobra.Command, args []string) error {
	regions := batchRegions
	if len(regions) == 0 {
		regions = cfg.Regions
	}
	policies := batchPolicies
	if len(policies) == 0 {
		policies = defaultPolicies()
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(ctx) }()

	r, err := a.runBatch(ctx, regions, policies)
	if r == nil {
		return err
	}
	report.Batch(cmd.OutOrStdout(), r)
	if err != nil {
		a.logger.Debug().Err(err).Msg("batch errors")
		return errBatchFailed
	}
	return nil
}
