// Package aggregator implements the coordinator's result log (spec.md §4.7):
// a thread-safe, append-only in-memory list mirrored in full to a JSON array
// file on every append.
package aggregator

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"
)

// ResultRecord is the worker's opaque response for one task. The coordinator
// never interprets it; it only appends and persists (spec.md §3's "Minimal
// Contract": a JSON object that round-trips through encode/decode).
type ResultRecord = json.RawMessage

// ResultLog is the append-only result list plus its persisted mirror.
//
// Every Append rewrites the whole file. That is O(n^2) total work across a
// batch, same as the original's `append_response` (`json.dump` of the whole
// list on every call). Acceptable for the batch sizes this system targets;
// implementers chasing much larger batches should switch to an append-only
// stream format and checkpoint instead - spec.md §4.7 flags this explicitly,
// and the teacher's own history log (internal/audit) makes the same
// acceptable-for-now tradeoff.
type ResultLog struct {
	path string

	mu      sync.Mutex
	records []ResultRecord

	fileLock *flock.Flock
}

// New creates a ResultLog that persists to path. The file is truncated (a
// fresh batch starts with an empty log, per spec.md §3's ResultLog lifecycle).
func New(path string) (*ResultLog, error) {
	l := &ResultLog{
		path:     path,
		fileLock: flock.New(path + ".lock"),
	}
	if err := l.rewrite(); err != nil {
		return nil, err
	}
	return l, nil
}

// Append adds a record to the in-memory list and rewrites the persisted file,
// under a single global mutex (process-local) plus a flock (cross-process,
// matching internal/audit's withLock discipline for the history file).
func (l *ResultLog) Append(record ResultRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.fileLock.Lock(); err != nil {
		return fmt.Errorf("aggregator: acquire file lock: %w", err)
	}
	defer l.fileLock.Unlock()

	l.records = append(l.records, record)
	if err := l.rewriteLocked(); err != nil {
		// Roll back the in-memory append so the two stay equal (invariant 7,
		// spec.md §8): a failed persist must not leave the log ahead of disk.
		l.records = l.records[:len(l.records)-1]
		return err
	}
	return nil
}

// Records returns a snapshot of the in-memory list in append order.
func (l *ResultLog) Records() []ResultRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ResultRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Len reports the number of records appended so far.
func (l *ResultLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func (l *ResultLog) rewrite() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rewriteLocked()
}

// rewriteLocked assumes l.mu is already held.
func (l *ResultLog) rewriteLocked() error {
	data, err := json.MarshalIndent(l.records, "", "  ")
	if err != nil {
		return fmt.Errorf("aggregator: marshal result log: %w", err)
	}
	if l.records == nil {
		data = []byte("[]")
	}
	if err := os.WriteFile(l.path, data, 0644); err != nil {
		return fmt.Errorf("aggregator: write result log: %w", err)
	}
	return nil
}
