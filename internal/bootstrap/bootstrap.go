// Package bootstrap implements the reconciliation sessions of spec.md
// §4.G: diffing per-account frontiers against a peer, pulling the
// divergent block ranges, and applying them through the ledger
// validator — opening an election rather than overwriting on a fork.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/Roconda/raiblocks/internal/block"
	"github.com/Roconda/raiblocks/internal/election"
	"github.com/Roconda/raiblocks/internal/ledger"
	"github.com/Roconda/raiblocks/internal/store"
)

// FrontierSource requests a peer's per-account frontier table (the
// wire.FrontierReq/FrontierResp exchange of §4.L).
type FrontierSource interface {
	Frontiers(ctx context.Context, peer string) (map[block.Account]block.Hash, error)
}

// BlockPuller requests the block range an account needs to walk from
// its local frontier up to the peer's frontier (wire.BulkPullReq/
// BulkPullResp), returned oldest-first so it can be applied in order.
type BlockPuller interface {
	PullRange(ctx context.Context, peer string, account block.Account, from, to block.Hash) ([]block.Block, error)
}

// Session runs one bootstrap reconciliation against a single peer.
type Session struct {
	store     *store.Store
	validator *ledger.Validator
	elections *election.Table
	frontiers FrontierSource
	puller    BlockPuller
}

func NewSession(s *store.Store, v *ledger.Validator, elections *election.Table, frontiers FrontierSource, puller BlockPuller) *Session {
	return &Session{store: s, validator: v, elections: elections, frontiers: frontiers, puller: puller}
}

// Run diffs peer's frontiers against the local store, pulls and applies
// every divergent account's missing range, and marks the node
// warmed-up on success.
func (s *Session) Run(ctx context.Context, peer string) error {
	remote, err := s.frontiers.Frontiers(ctx, peer)
	if err != nil {
		return fmt.Errorf("bootstrap: frontiers from %s: %w", peer, err)
	}

	var local map[block.Account]block.Hash
	if err := s.store.View(func(txn store.Txn) error {
		m, err := txn.ListFrontiers()
		if err != nil {
			return err
		}
		local = m
		return nil
	}); err != nil {
		return fmt.Errorf("bootstrap: read local frontiers: %w", err)
	}

	for account, remoteFrontier := range remote {
		localFrontier := local[account]
		if localFrontier == remoteFrontier {
			continue
		}

		chain, err := s.puller.PullRange(ctx, peer, account, localFrontier, remoteFrontier)
		if err != nil {
			return fmt.Errorf("bootstrap: pull %x from %s: %w", account, peer, err)
		}
		if err := s.applyChain(chain); err != nil {
			return fmt.Errorf("bootstrap: apply %x: %w", account, err)
		}
	}

	return s.markWarmedUp()
}

// applyChain replays a pulled block range through the validator inside
// one write transaction per pulled account range, stopping at the first fork and
// handing the conflicting candidates to the election table instead of
// silently overwriting the persisted chain (spec.md §4.G: "if applying
// yields fork, open an election for that root rather than
// overwriting").
func (s *Session) applyChain(chain []block.Block) error {
	return s.store.Update(func(txn store.Txn) error {
		for _, b := range chain {
			result, err := s.validator.Process(txn, b)
			if err != nil {
				return err
			}
			switch result {
			case ledger.Progress, ledger.Old:
				continue
			case ledger.Fork:
				existing, err := txn.GetBlockByRoot(b.Root())
				if err != nil {
					return err
				}
				s.elections.Insert(b.Root(), existing.Blk, b)
				return nil
			case ledger.GapPrevious, ledger.GapSource:
				return fmt.Errorf("pulled chain is not contiguous: %s at %x", result, b.Hash())
			default:
				return fmt.Errorf("pulled block rejected: %s at %x", result, b.Hash())
			}
		}
		return nil
	})
}

// warmedUpMetaKey is a process-lifetime counter of completed bootstrap
// runs (spec.md §4.G: "increments the first time bootstrap runs"),
// persisted in the meta table so it survives a restart rather than
// resetting to zero.
const warmedUpMetaKey = "bootstrap.warmed_up_count"

func (s *Session) markWarmedUp() error {
	current, err := s.store.GetMeta(warmedUpMetaKey)
	if err != nil && err != store.ErrNotFound {
		return err
	}
	var count uint64
	if current != "" {
		if _, err := fmt.Sscanf(current, "%d", &count); err != nil {
			return err
		}
	}
	count++
	return s.store.SetMeta(warmedUpMetaKey, fmt.Sprintf("%d", count))
}

// WarmedUpCount reports how many bootstrap runs have completed. The
// count is only read locally; no wire message carries it to peers.
func WarmedUpCount(s *store.Store) (uint64, error) {
	v, err := s.GetMeta(warmedUpMetaKey)
	if err == store.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var count uint64
	_, err = fmt.Sscanf(v, "%d", &count)
	return count, err
}
