package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/sweeper/internal/report"
	"github.com/yairfalse/sweeper/storage"
	"github.com/yairfalse/sweeper/wal"
)

var (
	reportResource string
	reportSince    time.Duration
	reportJournal  bool

	reportCmd = &cobra.Command{
		Use:   "report",
		Short: "Show tracked resources and deletions",
		Long: `Show what the ledger knows: the last state of every tracked resource and
the resources deleted recently. With --resource, show one resource's history.`,
		Example: `  sweeper report
  sweeper report --resource vol-0abc --journal
  sweeper report --since 168h`,
		RunE: runReport,
	}
)

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportResource, "resource", "", "Show the evaluation history of one resource")
	reportCmd.Flags().DurationVar(&reportSince, "since", 30*24*time.Hour, "Deletion window")
	reportCmd.Flags().BoolVar(&reportJournal, "journal", false, "Include journal statistics")
}

func runReport(cmd *cobra.Command, args []string) error {
	ledger, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = ledger.Close() }()

	out := cmd.OutOrStdout()
	now := time.Now()

	if reportResource != "" {
		evals, err := ledger.History(reportResource)
		if err != nil {
			return err
		}
		if len(evals) == 0 {
			return fmt.Errorf("no history for %s", reportResource)
		}
		report.History(out, reportResource, evals, now)
	} else {
		report.Resources(out, ledger.Summaries(), now)

		dels, err := ledger.Deletions(now.Add(-reportSince))
		if err != nil {
			return err
		}
		report.Deletions(out, dels, now)
	}

	if reportJournal {
		report.Journal(out, wal.GetStatsFromDir(cfg.Storage.WALDir, journalConfig()))
	}
	return nil
}
