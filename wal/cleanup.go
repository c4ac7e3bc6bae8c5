package wal

import (
	"fmt"
	"os"
	"time"
)

// CleanupStats tracks cleanup operation results
type CleanupStats struct {
	FilesRemoved int
	BytesFreed   int64
}

// Cleanup removes WAL files older than the retention period.
// The file currently open for writing is never removed.
func (w *WAL) Cleanup() (CleanupStats, error) {
	w.mu.Lock()
	current := w.file.Name()
	w.mu.Unlock()

	var files []string
	for _, file := range listOldWALFiles(w.dir, w.config) {
		if file != current {
			files = append(files, file)
		}
	}
	return removeWithStats(files)
}

// CleanupDir removes old WAL files in dir without an open WAL
func CleanupDir(dir string, config Config) (CleanupStats, error) {
	return removeWithStats(listOldWALFiles(dir, config))
}

func removeWithStats(files []string) (CleanupStats, error) {
	stats := CleanupStats{}
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if err := os.Remove(file); err != nil {
			return stats, fmt.Errorf("failed to remove %s: %w", file, err)
		}
		stats.FilesRemoved++
		stats.BytesFreed += info.Size()
	}
	return stats, nil
}

// listOldWALFiles finds WAL files older than retention period
func listOldWALFiles(dir string, config Config) []string {
	if config.RetentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -config.RetentionDays)

	var old []string
	for _, file := range findAllWALFiles(dir, config.FilePrefix) {
		if isOlderThan(file, cutoff) {
			old = append(old, file)
		}
	}
	return old
}

// isOlderThan checks if file modification time is before cutoff
func isOlderThan(path string, cutoff time.Time) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.ModTime().Before(cutoff)
}
