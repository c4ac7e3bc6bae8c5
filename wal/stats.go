package wal

import (
	"errors"
	"io"
	"os"
)

// Stats represents WAL statistics
type Stats struct {
	TotalFiles     int
	TotalSizeBytes int64
	FirstSequence  int64
	LastSequence   int64
	EntriesByType  map[EntryType]int
	FailedEntries  int
}

// GetStats returns statistics for the open WAL directory
func (w *WAL) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return Stats{}
	}
	return collectStats(w.listWALFiles())
}

// GetStatsFromDir returns statistics for a WAL directory (no active WAL needed)
func GetStatsFromDir(dir string, config Config) Stats {
	return collectStats(findAllWALFiles(dir, config.FilePrefix))
}

func collectStats(files []string) Stats {
	stats := Stats{EntriesByType: map[EntryType]int{}}
	stats.TotalFiles = len(files)

	for _, file := range files {
		if info, err := os.Stat(file); err == nil {
			stats.TotalSizeBytes += info.Size()
		}
		scanFile(file, func(entry *Entry) {
			if stats.FirstSequence == 0 || entry.Sequence < stats.FirstSequence {
				stats.FirstSequence = entry.Sequence
			}
			if entry.Sequence > stats.LastSequence {
				stats.LastSequence = entry.Sequence
			}
			stats.EntriesByType[entry.Type]++
			if entry.Error != "" {
				stats.FailedEntries++
			}
		})
	}
	return stats
}

// findLastSequenceInFiles finds highest sequence across files
func findLastSequenceInFiles(files []string) int64 {
	var maxSeq int64
	for _, file := range files {
		scanFile(file, func(entry *Entry) {
			if entry.Sequence > maxSeq {
				maxSeq = entry.Sequence
			}
		})
	}
	return maxSeq
}

// scanFile visits every readable entry, skipping corrupted lines
func scanFile(path string, visit func(*Entry)) {
	reader, err := NewReader(path)
	if err != nil {
		return
	}
	defer func() { _ = reader.Close() }()

	for {
		entry, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if errors.Is(err, ErrCorruptEntry) {
			continue
		}
		if err != nil {
			return
		}
		visit(entry)
	}
}
