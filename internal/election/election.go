// Package election implements the active-elections table of spec.md
// §4.E: at most one election per fork root, tallying representative
// vote weight to a supermajority confirmation or a wall-clock expiry.
package election

import (
	"math/big"
	"sync"
	"time"

	"github.com/Roconda/raiblocks/internal/block"
)

// State is the open -> confirmed | expired state machine of spec.md
// §4.E.
type State int

const (
	Open State = iota
	Confirmed
	Expired
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Confirmed:
		return "confirmed"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// QuorumNumerator and QuorumDenominator define the default supermajority
// threshold (spec.md Open Question (a)): one half of online
// representative weight. The election package only ever receives the
// threshold fraction through Tally's arguments; no configuration option
// sets it.
const (
	QuorumNumerator   = 1
	QuorumDenominator = 2
)

// DefaultTimeout is "a few minutes" per spec.md §4.E.
const DefaultTimeout = 5 * time.Minute

type voteRecord struct {
	sequence  uint64
	candidate block.Hash
	weight    *big.Int
}

// Election tracks every candidate block seen at a single root and the
// representative vote weight each has accumulated.
type Election struct {
	mu sync.Mutex

	root       block.Hash
	candidates map[block.Hash]block.Block
	tally      map[block.Hash]*big.Int
	lastVote   map[block.Account]voteRecord
	state      State
	deadline   time.Time
}

// New creates an election already holding two candidates (the incoming
// block and the block already stored at root), per spec.md §4.E's
// insertion policy.
func New(root block.Hash, a, b block.Block, timeout time.Duration) *Election {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	e := &Election{
		root:       root,
		candidates: make(map[block.Hash]block.Block, 2),
		tally:      make(map[block.Hash]*big.Int, 2),
		lastVote:   make(map[block.Account]voteRecord),
		state:      Open,
		deadline:   time.Now().Add(timeout),
	}
	e.addCandidateLocked(a)
	e.addCandidateLocked(b)
	return e
}

func (e *Election) addCandidateLocked(b block.Block) {
	if b == nil {
		return
	}
	h := b.Hash()
	if _, ok := e.candidates[h]; ok {
		return
	}
	e.candidates[h] = b
	e.tally[h] = big.NewInt(0)
}

// AddCandidate idempotently adds another fork of the same root (spec.md
// §4.E: "duplicate insertion of the same candidate is idempotent").
func (e *Election) AddCandidate(b block.Block) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.addCandidateLocked(b)
}

// Root reports the fork root this election is tracking.
func (e *Election) Root() block.Hash {
	return e.root
}

// State reports the current phase without mutating it.
func (e *Election) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Candidates returns the blocks currently competing at this root.
func (e *Election) Candidates() []block.Block {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]block.Block, 0, len(e.candidates))
	for _, b := range e.candidates {
		out = append(out, b)
	}
	return out
}

// RegisterVote applies the acceptance rule of spec.md §4.F: the
// (representative, sequence) pair must be strictly increasing and the
// block must be a current candidate. A representative's earlier weight
// is removed from its previous candidate's tally before being added to
// the new one, so a revote never double-counts. Returns whether the
// vote was accepted.
func (e *Election) RegisterVote(rep block.Account, sequence uint64, candidate block.Hash, weight *big.Int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Open {
		return false
	}
	if _, ok := e.candidates[candidate]; !ok {
		return false
	}
	if prev, ok := e.lastVote[rep]; ok && sequence <= prev.sequence {
		return false
	}

	if prev, ok := e.lastVote[rep]; ok {
		if t, ok := e.tally[prev.candidate]; ok {
			t.Sub(t, prev.weight)
		}
	}

	e.lastVote[rep] = voteRecord{sequence: sequence, candidate: candidate, weight: new(big.Int).Set(weight)}
	t, ok := e.tally[candidate]
	if !ok {
		t = big.NewInt(0)
		e.tally[candidate] = t
	}
	t.Add(t, weight)
	return true
}

// leadingLocked returns the candidate with the highest tallied weight
// and that weight. A tie goes to whichever tied candidate map iteration
// visits first, which is non-deterministic. With the default 1/2 ratio
// two tied candidates at exactly half the online weight both meet the
// threshold; Tally then reports whichever one this returns.
func (e *Election) leadingLocked() (block.Hash, *big.Int) {
	var best block.Hash
	var bestWeight *big.Int
	for h, w := range e.tally {
		if bestWeight == nil || w.Cmp(bestWeight) > 0 {
			best = h
			bestWeight = w
		}
	}
	if bestWeight == nil {
		bestWeight = big.NewInt(0)
	}
	return best, bestWeight
}

// Tally checks the leading candidate's weight against the supermajority
// threshold (numerator/denominator of onlineWeight) and against the
// wall-clock deadline, advancing state as needed. winner is only
// meaningful when confirmed is true.
func (e *Election) Tally(onlineWeight *big.Int, numerator, denominator int64, now time.Time) (winner block.Hash, confirmed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Open {
		if e.state == Confirmed {
			w, _ := e.leadingLocked()
			return w, true
		}
		return block.Hash{}, false
	}

	leader, weight := e.leadingLocked()
	threshold := new(big.Int).Mul(onlineWeight, big.NewInt(numerator))
	threshold.Div(threshold, big.NewInt(denominator))

	if weight.Cmp(threshold) >= 0 && len(e.candidates) > 0 {
		e.state = Confirmed
		return leader, true
	}

	if now.After(e.deadline) {
		e.state = Expired
		return block.Hash{}, false
	}

	return block.Hash{}, false
}

// Candidate looks up one of this election's tracked blocks by hash.
func (e *Election) Candidate(h block.Hash) (block.Block, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.candidates[h]
	return b, ok
}
