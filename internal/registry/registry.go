// Package registry implements the coordinator's fixed-size worker table
// (spec.md §4.3): slot identity assignment, the "hold" sentinel used during
// concurrent setup, and the busy flag the dynamic scheduler flips.
package registry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/flockd-project/flockd/internal/transport"
)

// holdName marks a slot as claimed-but-not-yet-finalized, mirroring the
// original's `clients[cid] = 'hold'` sentinel.
const holdName = "\x00hold\x00"

// Slot holds one worker's identity and connection. ID is assigned
// monotonically from the lowest unused value at connect time.
type Slot struct {
	ID   int
	Name string
	Conn transport.Conn
	busy atomic.Bool
}

// Busy reports whether a dispatch is currently outstanding for this slot.
func (s *Slot) Busy() bool { return s.busy.Load() }

// SetBusy sets the busy flag. Only the dynamic scheduler calls this, and only
// for the slot it currently owns a dispatch for.
func (s *Slot) SetBusy(busy bool) { s.busy.Store(busy) }

// Registry is the fixed 1..N table of worker slots. It is mutated only during
// setup (id assignment, finalization); during scheduling the static scheduler
// reads it without mutation and the dynamic scheduler mutates only Busy.
type Registry struct {
	mu    sync.Mutex
	slots []*Slot // index i holds slot id i+1
}

// New creates a registry with N empty slots.
func New(n int) *Registry {
	return &Registry{slots: make([]*Slot, n)}
}

// Size returns N, the fixed worker count.
func (r *Registry) Size() int { return len(r.slots) }

// ErrFull is returned by Claim when every slot is already held or finalized.
var ErrFull = fmt.Errorf("registry: no free slot")

// Claim assigns the lowest currently-unused id and marks it held, returning
// the new (unfinalized) slot. The caller must call Finalize once the worker's
// hostname is known (after R1 in the setup dialog).
func (r *Registry) Claim() (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.slots {
		if s == nil {
			slot := &Slot{ID: i + 1, Name: holdName}
			r.slots[i] = slot
			return slot, nil
		}
	}
	return nil, ErrFull
}

// Finalize records the worker's connection and reported hostname against a
// previously claimed slot.
func (r *Registry) Finalize(slot *Slot, name string, conn transport.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot.Name = name
	slot.Conn = conn
}

// Release clears a claimed slot, allowing a failed setup to free it for reuse.
// NOT called by the setup orchestrator today - spec.md §4.4/§9 (open question
// 4) intentionally leaves a failed slot held rather than re-offering it, so
// this exists for callers (e.g. tests, or a future revision) that want the
// alternative behavior.
func (r *Registry) Release(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id >= 1 && id <= len(r.slots) {
		r.slots[id-1] = nil
	}
}

// Slots returns the current slots in id order. Entries may be nil (unclaimed)
// or held (Name == "" is never true; held slots carry the internal sentinel
// and are filtered out by Ready).
func (r *Registry) Slots() []*Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Slot, len(r.slots))
	copy(out, r.slots)
	return out
}

// Ready returns only the finalized slots (those past Finalize), in id order -
// the stable "registry iteration order" spec.md §4.6 relies on for dynamic
// sweep tie-breaks.
func (r *Registry) Ready() []*Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Slot, 0, len(r.slots))
	for _, s := range r.slots {
		if s != nil && s.Name != holdName {
			out = append(out, s)
		}
	}
	return out
}
