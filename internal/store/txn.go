package store

import (
	"context"
	"database/sql"
	"errors"
	"math/big"
	"time"

	"github.com/Roconda/raiblocks/internal/block"
)

// ErrNotFound is returned by lookups that find nothing; callers that are
// validating blocks should treat it identically to "gap" per spec.md §7.
var ErrNotFound = errors.New("store: not found")

// AccountRecord is the persisted view of an account (spec.md §3).
type AccountRecord struct {
	Account        block.Account
	Frontier       block.Hash
	OpenBlock      block.Hash
	Balance        *big.Int
	Representative block.Account
	BlockCount     uint64
	ModifiedAt     time.Time
}

// PendingEntry is keyed by (destination, source hash) per spec.md §3.
type PendingEntry struct {
	Destination block.Account
	SourceHash  block.Hash
	Sender      block.Account
	Amount      *big.Int
}

// BlockRecord is a stored block plus its ledger sideband (the account
// that owns it, its height in that account's chain, and the net amount
// moved — used by observers without re-deriving it from neighbours).
// PrevRepresentative is only meaningful for change blocks: the
// representative the account held immediately before this block, needed
// by election rollback (spec.md §4.E) to undo a change block without
// having to replay the account's whole history.
type BlockRecord struct {
	Blk                block.Block
	Account            block.Account
	Height             uint64
	Amount             *big.Int
	PrevRepresentative block.Account
	Timestamp          time.Time
}

// Txn is the per-transaction view the ledger validator operates against.
// A View transaction must never be passed to a method that mutates
// state; the concrete sqlite implementation does not enforce this at
// the type level — methods gate on a mutex, not on a read/write marker
// type.
type Txn interface {
	GetBlock(h block.Hash) (*BlockRecord, error)
	GetBlockByRoot(root block.Hash) (*BlockRecord, error)
	PutBlock(rec *BlockRecord) error
	DeleteBlock(h block.Hash) error

	GetAccount(a block.Account) (*AccountRecord, error)
	PutAccount(rec *AccountRecord) error
	DeleteAccount(a block.Account) error

	GetPending(dest block.Account, source block.Hash) (*PendingEntry, error)
	PutPending(p *PendingEntry) error
	DeletePending(dest block.Account, source block.Hash) error

	GetWeight(rep block.Account) (*big.Int, error)
	AddWeight(rep block.Account, delta *big.Int) error

	GetFrontierAccount(frontier block.Hash) (block.Account, error)
	PutFrontier(frontier block.Hash, a block.Account) error
	DeleteFrontier(frontier block.Hash) error

	NextVoteSequence(rep block.Account) (uint64, error)

	// ListFrontiers returns every account's current frontier hash, the
	// local side of the bootstrap frontier diff (spec.md §4.G).
	ListFrontiers() (map[block.Account]block.Hash, error)
}

// View runs fn in a read-only transaction. Multiple Views may run
// concurrently with each other and are serialised only by sqlite's own
// WAL readers, not by writeMu.
func (s *Store) View(fn func(Txn) error) error {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(&sqlTxn{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// Update runs fn in the single write transaction slot, serialised by
// writeMu (spec.md §5: "at most one write transaction"). On fn
// returning an error, all writes are discarded; on success, they commit
// atomically.
func (s *Store) Update(fn func(Txn) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(&sqlTxn{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}
