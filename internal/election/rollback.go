package election

import (
	"fmt"

	"github.com/Roconda/raiblocks/internal/block"
	"github.com/Roconda/raiblocks/internal/ledger"
	"github.com/Roconda/raiblocks/internal/store"
)

// ApplyOutcome performs the rollback contract of spec.md §4.E: losing
// is the currently-persisted chain from its tip back to the fork root
// (tip first, root last — the order undo must run in), winning is the
// confirmed chain from the block rooted at the fork forward to its tip
// (root first, tip last — the order Process must run in). The caller
// runs this inside a single store.Update, per spec.md §4.E's "all
// within one write transaction".
//
// If losing is empty (the persisted candidate already matches the
// winner) ApplyOutcome only replays winning, which is itself a no-op
// once every block in it is already Old.
func ApplyOutcome(txn store.Txn, val *ledger.Validator, losing, winning []block.Block) error {
	for _, b := range losing {
		if err := val.Undo(txn, b); err != nil {
			return fmt.Errorf("election: undo %x: %w", b.Hash(), err)
		}
	}
	for _, b := range winning {
		result, err := val.Process(txn, b)
		if err != nil {
			return fmt.Errorf("election: replay %x: %w", b.Hash(), err)
		}
		if result != ledger.Progress && result != ledger.Old {
			return fmt.Errorf("election: replay %x: unexpected result %s", b.Hash(), result)
		}
	}
	return nil
}
