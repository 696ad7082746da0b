package election

import (
	"sync"
	"time"

	"github.com/Roconda/raiblocks/internal/block"
)

// DefaultMaxActive is the active-elections cap of spec.md §5 (a constant;
// no configuration option sets it): forks beyond it are dropped, and the
// ledger keeps whichever candidate landed first.
const DefaultMaxActive = 256

// Table holds at most one Election per root. It is always the
// outermost lock in the §5 lock order (active-elections -> gap-cache ->
// store-txn).
type Table struct {
	mu        sync.RWMutex
	byRoot    map[block.Hash]*Election
	maxActive int
	timeout   time.Duration
}

func NewTable(maxActive int, timeout time.Duration) *Table {
	if maxActive <= 0 {
		maxActive = DefaultMaxActive
	}
	return &Table{
		byRoot:    make(map[block.Hash]*Election),
		maxActive: maxActive,
		timeout:   timeout,
	}
}

// Insert creates an election for root if one doesn't exist, or extends
// an existing one with a new candidate (idempotent on a duplicate
// candidate per spec.md §4.E). ok is false only when the table is at
// capacity and root has no existing election.
func (t *Table) Insert(root block.Hash, a, b block.Block) (e *Election, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, found := t.byRoot[root]; found {
		existing.AddCandidate(a)
		existing.AddCandidate(b)
		return existing, true
	}

	if len(t.byRoot) >= t.maxActive {
		return nil, false
	}

	e = New(root, a, b, t.timeout)
	t.byRoot[root] = e
	return e, true
}

// Get returns the election tracking root, if any.
func (t *Table) Get(root block.Hash) (*Election, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.byRoot[root]
	return e, ok
}

// Remove drops root's election, done once it is confirmed or expired
// and the outcome has been applied.
func (t *Table) Remove(root block.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byRoot, root)
}

// Active returns every root currently under election, a snapshot safe
// to range over without holding the table's lock.
func (t *Table) Active() []block.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]block.Hash, 0, len(t.byRoot))
	for root := range t.byRoot {
		out = append(out, root)
	}
	return out
}

// Len reports the number of roots currently under election.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byRoot)
}
