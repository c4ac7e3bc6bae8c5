// Package report renders ledger, journal and batch results as terminal tables.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/yairfalse/sweeper/internal/batch"
	"github.com/yairfalse/sweeper/providers"
	"github.com/yairfalse/sweeper/storage"
	"github.com/yairfalse/sweeper/wal"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

func relTime(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Resources prints the latest known state of every resource, most recently seen first
func Resources(w io.Writer, summaries []*storage.ResourceSummary, now time.Time) {
	sorted := make([]*storage.ResourceSummary, len(summaries))
	copy(sorted, summaries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastSeen.After(sorted[j].LastSeen)
	})

	t := newTable(w, "Tracked resources")
	t.AppendHeader(table.Row{"Resource", "Type", "Policy", "Region", "State", "Days", "Evaluations", "Last seen", "Deleted"})

	deleted := 0
	for _, s := range sorted {
		gone := "-"
		if s.Deleted {
			gone = relTime(s.DeletedAt, now)
			deleted++
		}
		t.AppendRow(table.Row{
			s.ResourceID,
			s.ResourceType,
			s.Policy,
			s.Region,
			s.LastState,
			fmt.Sprintf("%d/%d", s.LastCleanupDays, s.LastDeadline),
			s.Evaluations,
			relTime(s.LastSeen, now),
			gone,
		})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d resources", len(sorted)), "", "", "", "", "", "", "", fmt.Sprintf("%d deleted", deleted)})
	t.Render()
}

// History prints every evaluation recorded for one resource
func History(w io.Writer, resourceID string, evals []storage.Evaluation, now time.Time) {
	t := newTable(w, "History of "+resourceID)
	t.AppendHeader(table.Row{"Rev", "Evaluated", "Policy", "State", "Days", "Alert", "Dry run", "Error"})

	for _, e := range evals {
		t.AppendRow(table.Row{
			e.Revision,
			relTime(e.EvaluatedAt, now),
			e.Policy,
			e.State,
			fmt.Sprintf("%d/%d", e.CleanupDays, e.Deadline),
			e.Alert,
			e.DryRun,
			e.Error,
		})
	}
	t.Render()
}

// Deletions prints deleted resources, newest first
func Deletions(w io.Writer, dels []storage.Deletion, now time.Time) {
	sorted := make([]storage.Deletion, len(dels))
	copy(sorted, dels)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DeletedAt.After(sorted[j].DeletedAt)
	})

	t := newTable(w, "Deleted resources")
	t.AppendHeader(table.Row{"Resource", "Policy", "Region", "Deleted", "Run"})
	for _, d := range sorted {
		t.AppendRow(table.Row{d.ResourceID, d.Policy, d.Region, relTime(d.DeletedAt, now), d.RunID})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d deletions", len(sorted)), "", "", "", ""})
	t.Render()
}

// Journal prints write-ahead journal statistics
func Journal(w io.Writer, stats wal.Stats) {
	t := newTable(w, "Journal")
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"Files", stats.TotalFiles})
	t.AppendRow(table.Row{"Size", humanize.Bytes(uint64(stats.TotalSizeBytes))})
	t.AppendRow(table.Row{"Sequence", fmt.Sprintf("%d..%d", stats.FirstSequence, stats.LastSequence)})
	t.AppendRow(table.Row{"Failed entries", stats.FailedEntries})

	types := make([]string, 0, len(stats.EntriesByType))
	for entryType := range stats.EntriesByType {
		types = append(types, string(entryType))
	}
	sort.Strings(types)
	for _, entryType := range types {
		t.AppendRow(table.Row{"  " + entryType, humanize.Comma(int64(stats.EntriesByType[wal.EntryType(entryType)]))})
	}
	t.Render()
}

// Batch prints one row per pass of a batch
func Batch(w io.Writer, r *batch.Report) {
	title := "Batch"
	if r.RunID != "" {
		title += " " + r.RunID
	}
	t := newTable(w, title)
	t.AppendHeader(table.Row{"Policy", "Region", "Scanned", "Excluded", "Deleted", "Tagged", "Reset", "Alerts", "Errors", "Duration", "Status"})

	for _, res := range r.Results {
		status := "ok"
		if res.Err != nil {
			status = "failed: " + firstLine(res.Err.Error())
		}
		if res.Summary == nil {
			t.AppendRow(table.Row{res.Policy, res.Region, "-", "-", "-", "-", "-", "-", "-", "-", status})
			continue
		}
		s := res.Summary
		if s.DryRun && res.Err == nil {
			status = "dry-run"
		}
		t.AppendRow(table.Row{
			res.Policy, res.Region,
			s.Scanned, s.Excluded, s.Deleted, s.Tagged, s.Reset, s.Alerts, s.Errors,
			s.Duration.Round(time.Millisecond),
			status,
		})
	}

	deleted, errs := r.Totals()
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d passes", len(r.Results)), fmt.Sprintf("%d failed", r.Failed()),
		"", "", deleted, "", "", "", errs,
		r.Duration.Round(time.Millisecond), "",
	})
	t.Render()
}

// Policies prints the registered policies
func Policies(w io.Writer, regs []providers.Registration) {
	t := newTable(w, "")
	t.AppendHeader(table.Row{"Policy", "Scope", "Description"})
	for _, reg := range regs {
		scope := "regional"
		if reg.Global {
			scope = "global"
		}
		t.AppendRow(table.Row{reg.Name, scope, reg.Description})
	}
	t.Render()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
