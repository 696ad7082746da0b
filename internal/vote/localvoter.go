package vote

import (
	"context"
	"fmt"

	"github.com/Roconda/raiblocks/internal/block"
	"github.com/Roconda/raiblocks/internal/store"
)

// Signer produces a vote signature for account over message. The
// concrete implementation (§4.K's keystore.Store) may block on disk or
// hardware-wallet I/O, hence the context.
type Signer interface {
	Sign(ctx context.Context, account block.Account, message []byte) (block.Signature, error)
}

// LocalVoter synthesises this node's own vote when it holds a voting
// key for a configured representative, per spec.md §4.F: "local votes
// use a monotonic sequence number persisted per representative
// account."
type LocalVoter struct {
	store  *store.Store
	signer Signer
}

func NewLocalVoter(s *store.Store, signer Signer) *LocalVoter {
	return &LocalVoter{store: s, signer: signer}
}

// Vote allocates the next sequence number for rep, signs the resulting
// message, and returns the cast vote ready for Processor.Process and
// rebroadcast.
func (lv *LocalVoter) Vote(ctx context.Context, rep block.Account, candidate block.Hash) (Vote, error) {
	var sequence uint64
	if err := lv.store.Update(func(txn store.Txn) error {
		seq, err := txn.NextVoteSequence(rep)
		if err != nil {
			return err
		}
		sequence = seq
		return nil
	}); err != nil {
		return Vote{}, fmt.Errorf("vote: allocate sequence: %w", err)
	}

	v := Vote{Representative: rep, Sequence: sequence, Candidate: candidate}
	sig, err := lv.signer.Sign(ctx, rep, v.Message())
	if err != nil {
		return Vote{}, fmt.Errorf("vote: sign: %w", err)
	}
	v.Signature = sig
	return v, nil
}
