// Package ledger implements the pure block-validation state machine of
// spec.md §4.C: given a transaction and a block, decide accept/reject
// and apply the resulting state delta.
package ledger

import (
	"math/big"
	"time"

	"github.com/Roconda/raiblocks/internal/block"
	"github.com/Roconda/raiblocks/internal/store"
)

// Result is the outcome of processing one block, exactly the enum of
// spec.md §4.C. Every value is pure data — never an exception — per the
// error-handling design in spec.md §7.
type Result int

const (
	Progress Result = iota
	BadSignature
	Old
	NegativeSpend
	Fork
	Unreceivable
	GapPrevious
	GapSource
	NotReceiveFromSend
	InsufficientWork
)

func (r Result) String() string {
	switch r {
	case Progress:
		return "progress"
	case BadSignature:
		return "bad_signature"
	case Old:
		return "old"
	case NegativeSpend:
		return "negative_spend"
	case Fork:
		return "fork"
	case Unreceivable:
		return "unreceivable"
	case GapPrevious:
		return "gap_previous"
	case GapSource:
		return "gap_source"
	case NotReceiveFromSend:
		return "not_receive_from_send"
	case InsufficientWork:
		return "insufficient_work"
	default:
		return "unknown"
	}
}

// Verifier checks proof-of-work and signatures, the two boundary checks
// of the validator: work is checked before the store is read, the
// signature once the signing account has been resolved (spec.md §4.C
// steps 1-2; §7: "validation must never call the key store" — only the
// embedded signature is checked, never a signing oracle).
type Verifier interface {
	VerifyWork(root block.Hash, work uint64) bool
	VerifySignature(account block.Account, hash block.Hash, sig block.Signature) bool
}

// Validator applies spec.md §4.C's decision order against a store.Txn.
type Validator struct {
	verifier Verifier
}

func New(v Verifier) *Validator {
	return &Validator{verifier: v}
}

// Process is the pure operation `process(txn, block) -> Result` of
// spec.md §4.C. On Progress it has already written the state delta into
// txn; every other result leaves txn untouched (callers still own
// committing or discarding txn).
func (v *Validator) Process(txn store.Txn, blk block.Block) (Result, error) {
	root := blk.Root()
	if !v.verifier.VerifyWork(root, blk.Work()) {
		return InsufficientWork, nil
	}

	// Send/receive/change carry no account field on the wire (only open
	// does, since it doubles as the account's root) — decode leaves it
	// zero, so it must be recovered from the frontier the block's
	// previous hash belongs to before anything can check a signature
	// against it. An unresolvable previous is the same gap a chain walk
	// would hit further down, so it is reported as GapPrevious here
	// rather than as a store error.
	account, ok, err := resolveAccount(txn, blk)
	if err != nil {
		return 0, err
	}
	if !ok {
		return GapPrevious, nil
	}
	if setter, ok := blk.(interface{ SetAccount(block.Account) }); ok {
		setter.SetAccount(account)
	}

	hash := blk.Hash()
	if !v.verifier.VerifySignature(blk.Account(), hash, blk.Signature()) {
		return BadSignature, nil
	}

	if _, err := txn.GetBlock(hash); err == nil {
		return Old, nil
	} else if err != store.ErrNotFound {
		return 0, err
	}

	// spec.md §4.C step 8: a root already occupied by a different block
	// is a fork, checked uniformly across all four kinds.
	if existing, err := txn.GetBlockByRoot(root); err == nil {
		if existing.Blk.Hash() != hash {
			return Fork, nil
		}
	} else if err != store.ErrNotFound {
		return 0, err
	}

	switch b := blk.(type) {
	case *block.SendBlock:
		return v.processSend(txn, b)
	case *block.ReceiveBlock:
		return v.processReceive(txn, b)
	case *block.OpenBlock:
		return v.processOpen(txn, b)
	case *block.ChangeBlock:
		return v.processChange(txn, b)
	default:
		return 0, nil
	}
}

func (v *Validator) processSend(txn store.Txn, b *block.SendBlock) (Result, error) {
	acc, err := txn.GetAccount(b.Account())
	if err != nil {
		return 0, err
	}
	if acc.Frontier != b.Previous() {
		return GapPrevious, nil
	}

	balanceAfter := balanceFromBytes(b.BalanceAfter())
	if balanceAfter.Cmp(acc.Balance) > 0 {
		return NegativeSpend, nil
	}
	amountSent := new(big.Int).Sub(acc.Balance, balanceAfter)

	if err := txn.AddWeight(acc.Representative, new(big.Int).Neg(amountSent)); err != nil {
		return 0, err
	}

	acc.Frontier = b.Hash()
	acc.Balance = balanceAfter
	acc.BlockCount++
	acc.ModifiedAt = time.Now()
	if err := txn.PutAccount(acc); err != nil {
		return 0, err
	}

	if err := txn.PutPending(&store.PendingEntry{
		Destination: b.Destination(),
		SourceHash:  b.Hash(),
		Sender:      b.Account(),
		Amount:      amountSent,
	}); err != nil {
		return 0, err
	}

	return Progress, commitBlock(txn, b, acc, amountSent, block.Account{})
}

func (v *Validator) processReceive(txn store.Txn, b *block.ReceiveBlock) (Result, error) {
	acc, err := txn.GetAccount(b.Account())
	if err != nil {
		return 0, err
	}
	if acc.Frontier != b.Previous() {
		return GapPrevious, nil
	}

	sourceRec, err := txn.GetBlock(b.Source())
	if err == store.ErrNotFound {
		return GapSource, nil
	}
	if err != nil {
		return 0, err
	}
	if sourceRec.Blk.Kind() != block.KindSend {
		return NotReceiveFromSend, nil
	}

	pending, err := txn.GetPending(b.Account(), b.Source())
	if err == store.ErrNotFound {
		return Unreceivable, nil
	}
	if err != nil {
		return 0, err
	}

	if err := txn.DeletePending(b.Account(), b.Source()); err != nil {
		return 0, err
	}
	if err := txn.AddWeight(acc.Representative, pending.Amount); err != nil {
		return 0, err
	}

	acc.Frontier = b.Hash()
	acc.Balance = new(big.Int).Add(acc.Balance, pending.Amount)
	acc.BlockCount++
	acc.ModifiedAt = time.Now()
	if err := txn.PutAccount(acc); err != nil {
		return 0, err
	}

	return Progress, commitBlock(txn, b, acc, pending.Amount, block.Account{})
}

func (v *Validator) processOpen(txn store.Txn, b *block.OpenBlock) (Result, error) {
	if _, err := txn.GetAccount(b.Account()); err == nil {
		return Fork, nil
	} else if err != store.ErrNotFound {
		return 0, err
	}

	sourceRec, err := txn.GetBlock(b.Source())
	if err == store.ErrNotFound {
		return GapSource, nil
	}
	if err != nil {
		return 0, err
	}
	if sourceRec.Blk.Kind() != block.KindSend {
		return NotReceiveFromSend, nil
	}

	pending, err := txn.GetPending(b.Account(), b.Source())
	if err == store.ErrNotFound {
		return Unreceivable, nil
	}
	if err != nil {
		return 0, err
	}

	if err := txn.DeletePending(b.Account(), b.Source()); err != nil {
		return 0, err
	}
	if err := txn.AddWeight(b.Representative(), pending.Amount); err != nil {
		return 0, err
	}

	acc := &store.AccountRecord{
		Account:        b.Account(),
		Frontier:       b.Hash(),
		OpenBlock:      b.Hash(),
		Balance:        pending.Amount,
		Representative: b.Representative(),
		BlockCount:     1,
		ModifiedAt:     time.Now(),
	}
	if err := txn.PutAccount(acc); err != nil {
		return 0, err
	}

	return Progress, commitBlock(txn, b, acc, pending.Amount, block.Account{})
}

func (v *Validator) processChange(txn store.Txn, b *block.ChangeBlock) (Result, error) {
	acc, err := txn.GetAccount(b.Account())
	if err != nil {
		return 0, err
	}
	if acc.Frontier != b.Previous() {
		return GapPrevious, nil
	}

	oldRep := acc.Representative
	if err := txn.AddWeight(oldRep, new(big.Int).Neg(acc.Balance)); err != nil {
		return 0, err
	}
	if err := txn.AddWeight(b.Representative(), acc.Balance); err != nil {
		return 0, err
	}

	acc.Representative = b.Representative()
	acc.Frontier = b.Hash()
	acc.BlockCount++
	acc.ModifiedAt = time.Now()
	if err := txn.PutAccount(acc); err != nil {
		return 0, err
	}

	return Progress, commitBlock(txn, b, acc, big.NewInt(0), oldRep)
}

func commitBlock(txn store.Txn, blk block.Block, acc *store.AccountRecord, amount *big.Int, prevRep block.Account) error {
	if err := txn.PutFrontier(blk.Hash(), acc.Account); err != nil {
		return err
	}
	return txn.PutBlock(&store.BlockRecord{
		Blk:                blk,
		Account:            acc.Account,
		Height:             acc.BlockCount,
		Amount:             amount,
		PrevRepresentative: prevRep,
		Timestamp:          time.Now(),
	})
}

func balanceFromBytes(b block.Balance) *big.Int {
	return new(big.Int).SetBytes(b[:])
}

// resolveAccount returns the account blk belongs to. Open blocks carry
// it directly; the other three kinds derive it from the frontier table
// entry for their previous block (ok=false when that frontier is
// unknown, meaning the chain can't be walked yet).
func resolveAccount(txn store.Txn, blk block.Block) (account block.Account, ok bool, err error) {
	type hasPrevious interface{ Previous() block.Hash }
	prev, isChained := blk.(hasPrevious)
	if !isChained {
		return blk.Account(), true, nil
	}

	account, err = txn.GetFrontierAccount(prev.Previous())
	if err == store.ErrNotFound {
		return block.Account{}, false, nil
	}
	if err != nil {
		return block.Account{}, false, err
	}
	return account, true, nil
}
