package storage

import "time"

// EvaluationWriter records per-resource evaluation outcomes
type EvaluationWriter interface {
	RecordEvaluation(eval Evaluation) (revision int64, err error)
}

// DeletionWriter records successful deletions
type DeletionWriter interface {
	RecordDeletion(del Deletion) error
}

// SummaryReader looks up the latest known state of one resource
type SummaryReader interface {
	Resource(resourceID string) (*ResourceSummary, error)
}

// LedgerReader queries the ledger
type LedgerReader interface {
	SummaryReader
	History(resourceID string) ([]Evaluation, error)
	Summaries() []*ResourceSummary
	Deletions(since time.Time) ([]Deletion, error)
}

// Compactor handles ledger compaction
type Compactor interface {
	Compact(before time.Time) (removed int, err error)
}

// Store is the complete ledger interface
type Store interface {
	EvaluationWriter
	DeletionWriter
	LedgerReader
	Compactor
	CurrentRevision() int64
	Close() error
}

var _ Store = (*Ledger)(nil)
