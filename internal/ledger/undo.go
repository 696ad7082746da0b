package ledger

import (
	"math/big"

	"github.com/Roconda/raiblocks/internal/block"
	"github.com/Roconda/raiblocks/internal/store"
)

// Undo reverses the state delta Process applied for blk, restoring
// balances, representative weight, and pending entries to what they
// were immediately before blk landed. It is the inverse half of the
// rollback contract in spec.md §4.E: the caller (election confirmation)
// walks a losing chain from its tip back to the fork root, calling Undo
// on each block in that order, before applying the winning chain
// forward through Process. blk must be the current frontier of its
// account; Undo does not itself verify that.
func (v *Validator) Undo(txn store.Txn, blk block.Block) error {
	switch b := blk.(type) {
	case *block.SendBlock:
		return v.undoSend(txn, b)
	case *block.ReceiveBlock:
		return v.undoReceive(txn, b)
	case *block.OpenBlock:
		return v.undoOpen(txn, b)
	case *block.ChangeBlock:
		return v.undoChange(txn, b)
	default:
		return nil
	}
}

func (v *Validator) undoSend(txn store.Txn, b *block.SendBlock) error {
	rec, err := txn.GetBlock(b.Hash())
	if err != nil {
		return err
	}
	acc, err := txn.GetAccount(b.Account())
	if err != nil {
		return err
	}

	if err := txn.AddWeight(acc.Representative, rec.Amount); err != nil {
		return err
	}
	if err := txn.DeletePending(b.Destination(), b.Hash()); err != nil {
		return err
	}

	acc.Balance = new(big.Int).Add(acc.Balance, rec.Amount)
	acc.Frontier = b.Previous()
	acc.BlockCount--
	if err := txn.PutAccount(acc); err != nil {
		return err
	}

	if err := txn.DeleteFrontier(b.Hash()); err != nil {
		return err
	}
	return txn.DeleteBlock(b.Hash())
}

func (v *Validator) undoReceive(txn store.Txn, b *block.ReceiveBlock) error {
	rec, err := txn.GetBlock(b.Hash())
	if err != nil {
		return err
	}
	acc, err := txn.GetAccount(b.Account())
	if err != nil {
		return err
	}
	sourceRec, err := txn.GetBlock(b.Source())
	if err != nil {
		return err
	}

	if err := txn.AddWeight(acc.Representative, new(big.Int).Neg(rec.Amount)); err != nil {
		return err
	}
	if err := txn.PutPending(&store.PendingEntry{
		Destination: b.Account(),
		SourceHash:  b.Source(),
		Sender:      sourceRec.Account,
		Amount:      rec.Amount,
	}); err != nil {
		return err
	}

	acc.Balance = new(big.Int).Sub(acc.Balance, rec.Amount)
	acc.Frontier = b.Previous()
	acc.BlockCount--
	if err := txn.PutAccount(acc); err != nil {
		return err
	}

	if err := txn.DeleteFrontier(b.Hash()); err != nil {
		return err
	}
	return txn.DeleteBlock(b.Hash())
}

func (v *Validator) undoOpen(txn store.Txn, b *block.OpenBlock) error {
	rec, err := txn.GetBlock(b.Hash())
	if err != nil {
		return err
	}
	sourceRec, err := txn.GetBlock(b.Source())
	if err != nil {
		return err
	}

	if err := txn.AddWeight(b.Representative(), new(big.Int).Neg(rec.Amount)); err != nil {
		return err
	}
	if err := txn.PutPending(&store.PendingEntry{
		Destination: b.Account(),
		SourceHash:  b.Source(),
		Sender:      sourceRec.Account,
		Amount:      rec.Amount,
	}); err != nil {
		return err
	}

	if err := txn.DeleteAccount(b.Account()); err != nil {
		return err
	}
	if err := txn.DeleteFrontier(b.Hash()); err != nil {
		return err
	}
	return txn.DeleteBlock(b.Hash())
}

func (v *Validator) undoChange(txn store.Txn, b *block.ChangeBlock) error {
	rec, err := txn.GetBlock(b.Hash())
	if err != nil {
		return err
	}
	acc, err := txn.GetAccount(b.Account())
	if err != nil {
		return err
	}
	oldRep := rec.PrevRepresentative

	if err := txn.AddWeight(b.Representative(), new(big.Int).Neg(acc.Balance)); err != nil {
		return err
	}
	if err := txn.AddWeight(oldRep, acc.Balance); err != nil {
		return err
	}

	acc.Representative = oldRep
	acc.Frontier = b.Previous()
	acc.BlockCount--
	if err := txn.PutAccount(acc); err != nil {
		return err
	}

	if err := txn.DeleteFrontier(b.Hash()); err != nil {
		return err
	}
	return txn.DeleteBlock(b.Hash())
}
