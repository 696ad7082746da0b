// Package gapcache implements the bounded park-and-release structures
// of spec.md §4.D: blocks waiting on a missing predecessor or source,
// and the disjoint confirmation gap cache used to surface bootstrap
// triggers.
package gapcache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Roconda/raiblocks/internal/block"
)

// DefaultCeiling is the default LRU size cap (spec.md §5: "the gap
// cache has a hard size cap; on overflow, the oldest entry is evicted
// silently").
const DefaultCeiling = 4096

// Cache parks blocks under the hash they are still waiting on. It is
// safe for concurrent use; spec.md §5 places it second in the lock
// order active-elections -> gap-cache -> store-txn.
type Cache struct {
	mu    sync.Mutex
	byKey *lru.Cache[block.Hash, []block.Block]
}

func New(ceiling int) (*Cache, error) {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	c, err := lru.New[block.Hash, []block.Block](ceiling)
	if err != nil {
		return nil, err
	}
	return &Cache{byKey: c}, nil
}

// Park records that dependent is waiting on missing. Called when the
// validator returns gap_previous(missing) or gap_source(missing).
func (c *Cache) Park(missing block.Hash, dependent block.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, _ := c.byKey.Get(missing)
	c.byKey.Add(missing, append(existing, dependent))
}

// Release returns every block (transitively) unblocked by resolved
// becoming available, removing them from the cache. Calling Release
// twice with the same hash is a no-op the second time (spec.md §8: "gap
// cache release idempotent").
func (c *Cache) Release(resolved block.Hash) []block.Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []block.Block
	frontier := []block.Hash{resolved}
	for len(frontier) > 0 {
		h := frontier[0]
		frontier = frontier[1:]

		dependents, ok := c.byKey.Get(h)
		if !ok {
			continue
		}
		c.byKey.Remove(h)
		out = append(out, dependents...)
		for _, d := range dependents {
			frontier = append(frontier, d.Hash())
		}
	}
	return out
}

// Len reports the number of distinct missing hashes currently tracked.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byKey.Len()
}
