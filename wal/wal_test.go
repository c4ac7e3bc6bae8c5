package wal

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type deletion struct {
	Policy string `json:"policy"`
	Region string `json:"region"`
}

func TestWAL_AppendAndRead(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}

	payload := deletion{Policy: "unattached_volume", Region: "us-east-1"}
	if err := w.Append(EntryDeleting, "vol-1", payload); err != nil {
		t.Fatalf("Failed to append deleting entry: %v", err)
	}
	if err := w.Append(EntryDeleted, "vol-1", payload); err != nil {
		t.Fatalf("Failed to append deleted entry: %v", err)
	}
	if err := w.AppendError(EntryFailed, "vol-2", payload, errors.New("access denied")); err != nil {
		t.Fatalf("Failed to append failed entry: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close WAL: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "sweeper-*.wal"))
	if len(files) != 1 {
		t.Fatalf("Expected 1 WAL file, got %d", len(files))
	}

	reader, err := NewReader(files[0])
	if err != nil {
		t.Fatalf("Failed to open reader: %v", err)
	}
	defer func() { _ = reader.Close() }()

	wantTypes := []EntryType{EntryDeleting, EntryDeleted, EntryFailed}
	for i, want := range wantTypes {
		entry, err := reader.Next()
		if err != nil {
			t.Fatalf("Failed to read entry %d: %v", i, err)
		}
		if entry.Type != want {
			t.Errorf("Entry %d: expected type %s, got %s", i, want, entry.Type)
		}
		if entry.Sequence != int64(i+1) {
			t.Errorf("Entry %d: expected sequence %d, got %d", i, i+1, entry.Sequence)
		}

		var got deletion
		if err := json.Unmarshal(entry.Data, &got); err != nil {
			t.Fatalf("Failed to decode data: %v", err)
		}
		if got != payload {
			t.Errorf("Entry %d: unexpected data %+v", i, got)
		}
	}

	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("Expected EOF, got %v", err)
	}
}

func TestWAL_ErrorRecorded(t *testing.T) {
	dir := t.TempDir()
	w, _ := Open(dir)
	_ = w.AppendError(EntryFailed, "eip-1", nil, errors.New("throttled"))
	_ = w.Close()

	var got []*Entry
	err := Replay(dir, time.Time{}, func(e *Entry) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(got) != 1 || got[0].Error != "throttled" {
		t.Fatalf("Expected one failed entry with error, got %+v", got)
	}
}

func TestWAL_SequenceContinues(t *testing.T) {
	dir := t.TempDir()

	w1, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	_ = w1.Append(EntryTagged, "r1", nil)
	_ = w1.Append(EntryTagged, "r2", nil)
	_ = w1.Append(EntryTagged, "r3", nil)
	_ = w1.Close()

	w2, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open second WAL: %v", err)
	}
	defer func() { _ = w2.Close() }()

	if w2.sequence != 3 {
		t.Errorf("Expected sequence 3, got %d", w2.sequence)
	}

	_ = w2.Append(EntryTagged, "r4", nil)
	if w2.sequence != 4 {
		t.Errorf("Expected sequence 4, got %d", w2.sequence)
	}
}

func TestReplay_Since(t *testing.T) {
	dir := t.TempDir()
	w, _ := Open(dir)
	_ = w.Append(EntryDeleted, "old", nil)
	_ = w.Close()

	cutoff := time.Now().UTC().Add(time.Hour)

	count := 0
	_ = Replay(dir, cutoff, func(*Entry) error {
		count++
		return nil
	})
	if count != 0 {
		t.Errorf("Expected no entries after cutoff, got %d", count)
	}
}

func TestReplay_HandlerErrorStops(t *testing.T) {
	dir := t.TempDir()
	w, _ := Open(dir)
	_ = w.Append(EntryDeleted, "a", nil)
	_ = w.Append(EntryDeleted, "b", nil)
	_ = w.Close()

	stop := errors.New("stop")
	calls := 0
	err := Replay(dir, time.Time{}, func(*Entry) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("Expected handler error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestStats_SkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	w, _ := Open(dir)
	_ = w.Append(EntryDeleted, "a", nil)
	_ = w.AppendError(EntryFailed, "b", nil, errors.New("boom"))
	_ = w.Close()

	corrupt := filepath.Join(dir, "sweeper-19990101-000000.wal")
	if err := os.WriteFile(corrupt, []byte("{not json\n"), 0644); err != nil {
		t.Fatal(err)
	}

	stats := GetStatsFromDir(dir, DefaultConfig())
	if stats.TotalFiles != 2 {
		t.Errorf("Expected 2 files, got %d", stats.TotalFiles)
	}
	if stats.FirstSequence != 1 || stats.LastSequence != 2 {
		t.Errorf("Unexpected sequence range %d..%d", stats.FirstSequence, stats.LastSequence)
	}
	if stats.EntriesByType[EntryDeleted] != 1 || stats.FailedEntries != 1 {
		t.Errorf("Unexpected counts %+v", stats)
	}
}

func TestCleanup_RemovesOldFilesOnly(t *testing.T) {
	dir := t.TempDir()

	old := filepath.Join(dir, "sweeper-20000101-000000.wal")
	if err := os.WriteFile(old, []byte("{}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().AddDate(0, 0, -200)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	w, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	defer func() { _ = w.Close() }()
	_ = w.Append(EntryDeleted, "a", nil)

	stats, err := w.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if stats.FilesRemoved != 1 {
		t.Errorf("Expected 1 file removed, got %d", stats.FilesRemoved)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Errorf("Old file should be gone")
	}
	if got := len(w.listWALFiles()); got != 1 {
		t.Errorf("Expected current file to survive, got %d files", got)
	}
}

func TestCleanupDir_DisabledRetention(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "sweeper-20000101-000000.wal")
	_ = os.WriteFile(old, []byte("{}\n"), 0644)
	past := time.Now().AddDate(-1, 0, 0)
	_ = os.Chtimes(old, past, past)

	stats, err := CleanupDir(dir, Config{FilePrefix: "sweeper", RetentionDays: 0})
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesRemoved != 0 {
		t.Errorf("Retention 0 must keep files, removed %d", stats.FilesRemoved)
	}
}
