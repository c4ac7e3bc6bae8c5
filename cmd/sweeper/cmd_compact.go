package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/sweeper/internal/telemetry"
	"github.com/yairfalse/sweeper/storage"
	"github.com/yairfalse/sweeper/wal"
)

var (
	compactOlderThan time.Duration

	compactCmd = &cobra.Command{
		Use:   "compact",
		Short: "Drop old ledger history and journal files",
		Long: `Remove ledger evaluations older than --older-than and delete journal files
past the retention period. Deletion records are kept.`,
		Example: `  sweeper compact --older-than 2160h`,
		RunE:    runCompact,
	}
)

func init() {
	rootCmd.AddCommand(compactCmd)

	compactCmd.Flags().DurationVar(&compactOlderThan, "older-than", 90*24*time.Hour, "Age of history to drop")
}

func runCompact(cmd *cobra.Command, args []string) error {
	if compactOlderThan <= 0 {
		return fmt.Errorf("--older-than must be positive, got %s", compactOlderThan)
	}

	ledger, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = ledger.Close() }()

	removed, err := ledger.Compact(time.Now().Add(-compactOlderThan))
	if err != nil {
		return fmt.Errorf("compact ledger: %w", err)
	}

	stats, err := wal.CleanupDir(cfg.Storage.WALDir, journalConfig())
	if err != nil {
		return fmt.Errorf("clean journal: %w", err)
	}

	logger := telemetry.NewLogger("compact")
	logger.Info().
		Int("evaluations_removed", removed).
		Int("journal_files_removed", stats.FilesRemoved).
		Int64("journal_bytes_freed", stats.BytesFreed).
		Msg("compaction complete")

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d evaluations and %d journal files\n", removed, stats.FilesRemoved)
	return nil
}
