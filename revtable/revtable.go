// Package revtable implements the single process-wide table the design
// calls out as the only cross-actor mutable state: the latest applied
// revision for every locally hosted RSM, keyed by name. Each name is
// written only by the host running that RSM; the table itself does not
// enforce a single writer. Any goroutine may read.
package revtable

import (
	"sync"

	"github.com/timofey-barmin/chronicle/revision"
	"github.com/timofey-barmin/chronicle/rsmerr"
)

// Table is safe for concurrent use. The zero value is not usable; use New.
type Table struct {
	mu      sync.RWMutex
	entries map[string]revision.Revision
}

// New returns an empty table.
func New() *Table {
	return &Table{entries: make(map[string]revision.Revision)}
}

// Publish records rev as the latest applied revision for name. Callers
// (the owning host) are responsible for only publishing monotonically
// within a history, per the design invariant; Publish itself does not
// enforce monotonicity since a history transition legitimately moves the
// seqno backwards relative to the old history.
func (t *Table) Publish(name string, rev revision.Revision) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[name] = rev
}

// Get returns the latest published revision for name, or ErrNotRunning if
// nothing has ever been published (the RSM is unknown or was never
// started).
func (t *Table) Get(name string) (revision.Revision, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rev, ok := t.entries[name]
	if !ok {
		return revision.Revision{}, rsmerr.ErrNotRunning
	}
	return rev, nil
}

// Remove drops name's entry, called by a host on terminate so a later
// get_local_revision correctly reports ErrNotRunning.
func (t *Table) Remove(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, name)
}
