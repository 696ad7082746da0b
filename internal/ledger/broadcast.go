package ledger

import "github.com/Roconda/raiblocks/internal/block"

// DifficultyFunc computes the proof-of-work difficulty of a block's
// work value against its root. Kept as a function value rather than
// importing internal/pow directly so this package has no dependency on
// a concrete PoW implementation.
type DifficultyFunc func(root block.Hash, work uint64) uint64

// SelectBroadcastCandidate picks which of two equally-valid candidates
// at the same root this node should prefer to republish, per spec.md
// §4.C: "the one with strictly greater work value is preferred as the
// local best to republish. This is used by the broadcast path only;
// consensus is by vote weight." It must never be consulted by Process
// or by the election tally (see DESIGN.md Open Question (b)).
func SelectBroadcastCandidate(diff DifficultyFunc, a, b block.Block) block.Block {
	da := diff(a.Root(), a.Work())
	db := diff(b.Root(), b.Work())
	if db > da {
		return b
	}
	return a
}
