package election

import (
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/Roconda/raiblocks/internal/block"
	"github.com/Roconda/raiblocks/internal/ledger"
	"github.com/Roconda/raiblocks/internal/store"
)

type acceptAllVerifier struct{}

func (acceptAllVerifier) VerifyWork(block.Hash, uint64) bool { return true }
func (acceptAllVerifier) VerifySignature(block.Account, block.Hash, block.Signature) bool {
	return true
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "raiblocks-election-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	s, err := store.Open(store.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func balanceOf(v *big.Int) block.Balance {
	var b block.Balance
	v.FillBytes(b[:])
	return b
}

// TestApplyOutcomeSwitchesToWinningFork exercises the rollback contract
// of spec.md §4.E end to end: two send blocks fork the same root, the
// first lands first, the second later wins the election, and
// ApplyOutcome must undo the loser and replay the winner so the
// persisted frontier and balance reflect the winning chain.
func TestApplyOutcomeSwitchesToWinningFork(t *testing.T) {
	s := newTestStore(t)
	val := ledger.New(acceptAllVerifier{})

	genesis := acctWith(1)
	var genesisOpen block.Hash
	genesisOpen[0] = 0xAA
	supply := new(big.Int).Lsh(big.NewInt(1), 100)

	if err := s.Update(func(txn store.Txn) error {
		if err := txn.AddWeight(genesis, supply); err != nil {
			return err
		}
		if err := txn.PutFrontier(genesisOpen, genesis); err != nil {
			return err
		}
		return txn.PutAccount(&store.AccountRecord{
			Account:        genesis,
			Frontier:       genesisOpen,
			OpenBlock:      genesisOpen,
			Balance:        supply,
			Representative: genesis,
			BlockCount:     1,
			ModifiedAt:     time.Now(),
		})
	}); err != nil {
		t.Fatalf("seed genesis: %v", err)
	}

	destA := acctWith(2)
	destB := acctWith(3)
	remainder := new(big.Int).Sub(supply, big.NewInt(1000))
	sendA := block.NewSendBlock(genesis, genesisOpen, destA, balanceOf(remainder))
	sendB := block.NewSendBlock(genesis, genesisOpen, destB, balanceOf(remainder))

	if err := s.Update(func(txn store.Txn) error {
		result, err := val.Process(txn, sendA)
		if err != nil {
			return err
		}
		if result != ledger.Progress {
			t.Fatalf("sendA Process() = %v, want Progress", result)
		}
		return nil
	}); err != nil {
		t.Fatalf("apply sendA: %v", err)
	}

	if err := s.View(func(txn store.Txn) error {
		result, err := val.Process(txn, sendB)
		if err != nil {
			return err
		}
		if result != ledger.Fork {
			t.Fatalf("sendB Process() = %v, want Fork", result)
		}
		return nil
	}); err != nil {
		t.Fatalf("detect fork: %v", err)
	}

	if err := s.Update(func(txn store.Txn) error {
		return ApplyOutcome(txn, val, []block.Block{sendA}, []block.Block{sendB})
	}); err != nil {
		t.Fatalf("ApplyOutcome() error = %v", err)
	}

	if err := s.View(func(txn store.Txn) error {
		acc, err := txn.GetAccount(genesis)
		if err != nil {
			return err
		}
		if acc.Frontier != sendB.Hash() {
			t.Errorf("frontier after rollback = %x, want sendB hash %x", acc.Frontier, sendB.Hash())
		}
		if acc.Balance.Cmp(remainder) != 0 {
			t.Errorf("balance after rollback = %s, want %s", acc.Balance, remainder)
		}
		if _, err := txn.GetPending(destA, sendA.Hash()); err != store.ErrNotFound {
			t.Errorf("pending entry for the losing send should have been removed, err = %v", err)
		}
		if _, err := txn.GetPending(destB, sendB.Hash()); err != nil {
			t.Errorf("pending entry for the winning send should exist, err = %v", err)
		}
		if _, err := txn.GetBlock(sendA.Hash()); err != store.ErrNotFound {
			t.Errorf("losing block should have been deleted, err = %v", err)
		}
		return nil
	}); err != nil {
		t.Fatalf("verify: %v", err)
	}
}
