package gapcache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Roconda/raiblocks/internal/block"
)

// ConfirmationCache is the "disjoint sub-structure" of spec.md §4.D: it
// records unseen block hashes referenced by incoming confirm_req
// messages, tracking how many distinct peers have asked about each, so
// a popular-but-unknown hash can trigger bootstrap (spec.md §4.G(b)).
type ConfirmationCache struct {
	mu        sync.Mutex
	byHash    *lru.Cache[block.Hash, map[string]struct{}]
	threshold int
}

// DefaultSupportThreshold is the number of distinct peers whose
// confirm_req about the same unknown hash is treated as "sufficient
// peer support" under spec.md §4.G(b).
const DefaultSupportThreshold = 2

func NewConfirmationCache(ceiling, supportThreshold int) (*ConfirmationCache, error) {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if supportThreshold <= 0 {
		supportThreshold = DefaultSupportThreshold
	}
	c, err := lru.New[block.Hash, map[string]struct{}](ceiling)
	if err != nil {
		return nil, err
	}
	return &ConfirmationCache{byHash: c, threshold: supportThreshold}, nil
}

// Observe records that peerID referenced hash in a confirm_req and
// reports whether support for hash has now crossed the bootstrap
// trigger threshold.
func (c *ConfirmationCache) Observe(hash block.Hash, peerID string) (triggered bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	peers, ok := c.byHash.Get(hash)
	if !ok {
		peers = make(map[string]struct{})
	}
	peers[peerID] = struct{}{}
	c.byHash.Add(hash, peers)
	return len(peers) >= c.threshold
}

// Forget removes a hash once it has been resolved (the block arrived
// and was processed), so that support tracking does not persist for
// hashes that are no longer gaps.
func (c *ConfirmationCache) Forget(hash block.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byHash.Remove(hash)
}
