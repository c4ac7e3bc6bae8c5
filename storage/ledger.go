package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"
)

// Bucket names in bbolt
var (
	bucketEvaluations = []byte("evaluations")
	bucketDeletions   = []byte("deletions")
	bucketMeta        = []byte("meta")

	keyCurrentRevision = []byte("current_revision")
)

// ErrNotFound is returned when the ledger has no record of a resource
var ErrNotFound = errors.New("resource not found in ledger")

// Evaluation is one decision taken for one resource during a scan pass
type Evaluation struct {
	Revision     int64     `json:"revision"`
	RunID        string    `json:"run_id,omitempty"`
	Policy       string    `json:"policy"`
	Region       string    `json:"region"`
	Account      string    `json:"account,omitempty"`
	ResourceID   string    `json:"resource_id"`
	ResourceType string    `json:"resource_type,omitempty"`
	ResourceName string    `json:"resource_name,omitempty"`
	CleanupDays  int       `json:"cleanup_days"`
	Deadline     int       `json:"deadline"`
	State        string    `json:"state"`
	Alert        string    `json:"alert,omitempty"`
	Deleted      bool      `json:"deleted"`
	DryRun       bool      `json:"dry_run"`
	Error        string    `json:"error,omitempty"`
	EvaluatedAt  time.Time `json:"evaluated_at"`
}

// Deletion is a resource removed by the sweeper
type Deletion struct {
	RunID      string    `json:"run_id,omitempty"`
	Policy     string    `json:"policy"`
	Region     string    `json:"region"`
	Account    string    `json:"account,omitempty"`
	ResourceID string    `json:"resource_id"`
	DeletedAt  time.Time `json:"deleted_at"`
}

// ResourceSummary is the latest known state of a resource, kept in the in-memory index
type ResourceSummary struct {
	ResourceID      string
	ResourceType    string
	Policy          string
	Region          string
	FirstSeen       time.Time
	LastSeen        time.Time
	LastState       string
	LastCleanupDays int
	LastDeadline    int
	Evaluations     int
	Deleted         bool
	DeletedAt       time.Time
	// LastAlert is the kind of the most recent alert raised for the resource
	LastAlert   string
	LastAlertAt time.Time
}

// Ledger is a bbolt-backed record of evaluations and deletions
type Ledger struct {
	mu sync.RWMutex

	// In-memory index for fast lookups
	index *btree.BTreeG[*ResourceSummary]

	// On-disk storage
	db *bbolt.DB

	currentRev int64
	dir        string
}

// Open opens or creates the ledger in dir
func Open(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(dir, "sweeper.db"), 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketEvaluations, bucketDeletions, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	l := &Ledger{
		index: newIndex(),
		db:    db,
		dir:   dir,
	}

	if err := l.loadRevision(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := l.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return l, nil
}

func newIndex() *btree.BTreeG[*ResourceSummary] {
	return btree.NewG[*ResourceSummary](32, func(a, b *ResourceSummary) bool {
		return a.ResourceID < b.ResourceID
	})
}

// Close closes the ledger
func (l *Ledger) Close() error {
	return l.db.Close()
}

// CurrentRevision returns the current revision number
func (l *Ledger) CurrentRevision() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.currentRev
}

// RecordEvaluation stores one evaluation and returns its revision
func (l *Ledger) RecordEvaluation(eval Evaluation) (int64, error) {
	if eval.ResourceID == "" {
		return 0, errors.New("evaluation has no resource id")
	}
	if eval.EvaluatedAt.IsZero() {
		eval.EvaluatedAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rev := l.currentRev + 1
	eval.Revision = rev

	err := l.db.Update(func(tx *bbolt.Tx) error {
		value, err := json.Marshal(eval)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketEvaluations).Put(makeEvaluationKey(eval.ResourceID, rev), value); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyCurrentRevision, int64ToBytes(rev))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record evaluation: %w", err)
	}

	l.currentRev = rev
	l.applyEvaluation(eval)
	return rev, nil
}

// RecordDeletion stores a deletion
func (l *Ledger) RecordDeletion(del Deletion) error {
	if del.ResourceID == "" {
		return errors.New("deletion has no resource id")
	}
	if del.DeletedAt.IsZero() {
		del.DeletedAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.db.Update(func(tx *bbolt.Tx) error {
		value, err := json.Marshal(del)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDeletions).Put(makeDeletionKey(del.DeletedAt, del.ResourceID), value)
	})
	if err != nil {
		return fmt.Errorf("failed to record deletion: %w", err)
	}

	l.applyDeletion(del)
	return nil
}

// Resource returns the latest summary for a resource
func (l *Ledger) Resource(resourceID string) (*ResourceSummary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	existing, found := l.index.Get(&ResourceSummary{ResourceID: resourceID})
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, resourceID)
	}
	summary := *existing
	return &summary, nil
}

// History returns all evaluations of a resource, oldest first
func (l *Ledger) History(resourceID string) ([]Evaluation, error) {
	var history []Evaluation

	prefix := append([]byte(resourceID), 0)
	err := l.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketEvaluations).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var eval Evaluation
			if err := json.Unmarshal(v, &eval); err != nil {
				return fmt.Errorf("decode evaluation %q: %w", k, err)
			}
			history = append(history, eval)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

// Summaries returns a copy of every indexed resource, ordered by id
func (l *Ledger) Summaries() []*ResourceSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	results := make([]*ResourceSummary, 0, l.index.Len())
	l.index.Ascend(func(s *ResourceSummary) bool {
		summary := *s
		results = append(results, &summary)
		return true
	})
	return results
}

// Deletions returns deletions at or after since, oldest first
func (l *Ledger) Deletions(since time.Time) ([]Deletion, error) {
	var results []Deletion

	err := l.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketDeletions).Cursor()
		k, v := c.First()
		if !since.IsZero() {
			k, v = c.Seek(deletionKeyPrefix(since))
		}
		for ; k != nil; k, v = c.Next() {
			var del Deletion
			if err := json.Unmarshal(v, &del); err != nil {
				return fmt.Errorf("decode deletion %q: %w", k, err)
			}
			results = append(results, del)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Compact removes evaluations older than before and rebuilds the index.
// Deletions are kept.
func (l *Ledger) Compact(before time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	err := l.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketEvaluations)
		c := bucket.Cursor()

		var toDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var eval Evaluation
			if err := json.Unmarshal(v, &eval); err != nil || eval.EvaluatedAt.Before(before) {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
		}

		for _, key := range toDelete {
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}
		removed = len(toDelete)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to compact ledger: %w", err)
	}

	l.index = newIndex()
	if err := l.rebuildIndexLocked(); err != nil {
		return removed, err
	}
	return removed, nil
}

func (l *Ledger) applyEvaluation(eval Evaluation) {
	existing, found := l.index.Get(&ResourceSummary{ResourceID: eval.ResourceID})
	if !found {
		existing = &ResourceSummary{
			ResourceID: eval.ResourceID,
			FirstSeen:  eval.EvaluatedAt,
		}
	}

	existing.ResourceType = eval.ResourceType
	existing.Policy = eval.Policy
	existing.Region = eval.Region
	existing.LastSeen = eval.EvaluatedAt
	existing.LastState = eval.State
	existing.LastCleanupDays = eval.CleanupDays
	existing.LastDeadline = eval.Deadline
	existing.Evaluations++
	if eval.Alert != "" {
		existing.LastAlert = eval.Alert
		existing.LastAlertAt = eval.EvaluatedAt
	}
	if eval.Deleted {
		existing.Deleted = true
		existing.DeletedAt = eval.EvaluatedAt
	}

	l.index.ReplaceOrInsert(existing)
}

func (l *Ledger) applyDeletion(del Deletion) {
	existing, found := l.index.Get(&ResourceSummary{ResourceID: del.ResourceID})
	if !found {
		existing = &ResourceSummary{
			ResourceID: del.ResourceID,
			Policy:     del.Policy,
			Region:     del.Region,
			FirstSeen:  del.DeletedAt,
			LastSeen:   del.DeletedAt,
		}
	}
	existing.Deleted = true
	existing.DeletedAt = del.DeletedAt
	l.index.ReplaceOrInsert(existing)
}

func (l *Ledger) loadRevision() error {
	return l.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyCurrentRevision)
		if data != nil {
			l.currentRev = bytesToInt64(data)
		}
		return nil
	})
}

func (l *Ledger) rebuildIndex() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rebuildIndexLocked()
}

// rebuildIndexLocked replays evaluations in revision order, then deletions
func (l *Ledger) rebuildIndexLocked() error {
	var evals []Evaluation
	var dels []Deletion

	err := l.db.View(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketEvaluations).ForEach(func(k, v []byte) error {
			var eval Evaluation
			if err := json.Unmarshal(v, &eval); err != nil {
				return fmt.Errorf("decode evaluation %q: %w", k, err)
			}
			evals = append(evals, eval)
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket(bucketDeletions).ForEach(func(k, v []byte) error {
			var del Deletion
			if err := json.Unmarshal(v, &del); err != nil {
				return fmt.Errorf("decode deletion %q: %w", k, err)
			}
			dels = append(dels, del)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("failed to rebuild index: %w", err)
	}

	sort.Slice(evals, func(i, j int) bool {
		return evals[i].Revision < evals[j].Revision
	})
	for _, eval := range evals {
		l.applyEvaluation(eval)
	}
	for _, del := range dels {
		l.applyDeletion(del)
	}
	return nil
}

// makeEvaluationKey groups a resource's evaluations together in revision order
func makeEvaluationKey(resourceID string, rev int64) []byte {
	return []byte(fmt.Sprintf("%s\x00%020d", resourceID, rev))
}

func makeDeletionKey(at time.Time, resourceID string) []byte {
	return append(deletionKeyPrefix(at), []byte(":"+resourceID)...)
}

func deletionKeyPrefix(at time.Time) []byte {
	return []byte(fmt.Sprintf("%020d", at.UTC().UnixNano()))
}

func int64ToBytes(n int64) []byte {
	return []byte(strconv.FormatInt(n, 10))
}

func bytesToInt64(b []byte) int64 {
	n, _ := strconv.ParseInt(string(b), 10, 64)
	return n
}
