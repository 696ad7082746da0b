package vote

import (
	"fmt"
	"math/big"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Roconda/raiblocks/internal/block"
	"github.com/Roconda/raiblocks/internal/election"
	"github.com/Roconda/raiblocks/internal/store"
)

// DefaultRebroadcastCeiling bounds the "have I already rebroadcast this
// exact vote" cache, the same bounded-LRU-with-silent-eviction shape
// gapcache uses — a vote that ages out is simply rebroadcast again,
// which is wasteful but never incorrect.
const DefaultRebroadcastCeiling = 8192

type voteKey struct {
	rep       block.Account
	sequence  uint64
	candidate block.Hash
}

// Processor applies the vote acceptance rule of spec.md §4.F against
// the active-elections table and is responsible for rebroadcasting each
// accepted vote exactly once.
type Processor struct {
	table       *election.Table
	verifier    SignatureVerifier
	store       *store.Store
	rebroadcast *lru.Cache[voteKey, struct{}]
}

func NewProcessor(table *election.Table, verifier SignatureVerifier, s *store.Store) (*Processor, error) {
	c, err := lru.New[voteKey, struct{}](DefaultRebroadcastCeiling)
	if err != nil {
		return nil, err
	}
	return &Processor{table: table, verifier: verifier, store: s, rebroadcast: c}, nil
}

// Process validates and tallies v against root's election. accepted
// reports whether the vote's weight was applied; rebroadcast reports
// whether this is the first time this exact (representative, sequence,
// candidate) triple has been seen, so the caller should gossip it on.
// A vote for a root with no active election is rejected outright — this
// reference implementation only opens elections on detected forks
// (spec.md §4.E), so there is nothing to apply an uncontested vote to.
func (p *Processor) Process(root block.Hash, v Vote) (accepted, rebroadcast bool, err error) {
	if !p.verifier.VerifyVoteSignature(v.Representative, v.Candidate, v.Sequence, v.Signature) {
		return false, false, nil
	}

	e, ok := p.table.Get(root)
	if !ok {
		return false, false, nil
	}

	var weight *big.Int
	if err := p.store.View(func(txn store.Txn) error {
		w, err := txn.GetWeight(v.Representative)
		if err != nil {
			return err
		}
		weight = w
		return nil
	}); err != nil {
		return false, false, fmt.Errorf("vote: read weight: %w", err)
	}

	accepted = e.RegisterVote(v.Representative, v.Sequence, v.Candidate, weight)
	if !accepted {
		return false, false, nil
	}

	key := voteKey{rep: v.Representative, sequence: v.Sequence, candidate: v.Candidate}
	if _, seen := p.rebroadcast.Get(key); seen {
		return true, false, nil
	}
	p.rebroadcast.Add(key, struct{}{})
	return true, true, nil
}
