package store

import (
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/Roconda/raiblocks/internal/block"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "raiblocks-store-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	s, err := Open(Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesSchema(t *testing.T) {
	s := newTestStore(t)
	var name string
	err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='blocks'").Scan(&name)
	if err != nil {
		t.Errorf("blocks table not found: %v", err)
	}

	version, err := s.Version()
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if version != schemaVersion {
		t.Errorf("Version() = %d, want %d", version, schemaVersion)
	}
}

func TestAccountRoundTrip(t *testing.T) {
	s := newTestStore(t)

	var acc block.Account
	acc[0] = 1
	rec := &AccountRecord{
		Account:    acc,
		Balance:    big.NewInt(100),
		BlockCount: 1,
		ModifiedAt: time.Now(),
	}

	if err := s.Update(func(txn Txn) error { return txn.PutAccount(rec) }); err != nil {
		t.Fatalf("Update(PutAccount) error = %v", err)
	}

	var got *AccountRecord
	err := s.View(func(txn Txn) error {
		var err error
		got, err = txn.GetAccount(acc)
		return err
	})
	if err != nil {
		t.Fatalf("View(GetAccount) error = %v", err)
	}
	if got.Balance.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("Balance = %v, want 100", got.Balance)
	}
}

func TestPendingRoundTrip(t *testing.T) {
	s := newTestStore(t)

	var dest, sender block.Account
	dest[0] = 1
	sender[0] = 2
	var source block.Hash
	source[0] = 3

	p := &PendingEntry{Destination: dest, SourceHash: source, Sender: sender, Amount: big.NewInt(50)}

	err := s.Update(func(txn Txn) error { return txn.PutPending(p) })
	if err != nil {
		t.Fatalf("PutPending() error = %v", err)
	}

	err = s.Update(func(txn Txn) error {
		got, err := txn.GetPending(dest, source)
		if err != nil {
			return err
		}
		if got.Amount.Cmp(big.NewInt(50)) != 0 {
			t.Errorf("Amount = %v, want 50", got.Amount)
		}
		return txn.DeletePending(dest, source)
	})
	if err != nil {
		t.Fatalf("Update(Get+DeletePending) error = %v", err)
	}

	err = s.View(func(txn Txn) error {
		_, err := txn.GetPending(dest, source)
		return err
	})
	if err != ErrNotFound {
		t.Errorf("GetPending() after delete error = %v, want ErrNotFound", err)
	}
}

func TestWeightAccumulates(t *testing.T) {
	s := newTestStore(t)
	var rep block.Account
	rep[0] = 9

	err := s.Update(func(txn Txn) error {
		if err := txn.AddWeight(rep, big.NewInt(30)); err != nil {
			return err
		}
		return txn.AddWeight(rep, big.NewInt(-10))
	})
	if err != nil {
		t.Fatalf("Update(AddWeight) error = %v", err)
	}

	var weight *big.Int
	err = s.View(func(txn Txn) error {
		var err error
		weight, err = txn.GetWeight(rep)
		return err
	})
	if err != nil {
		t.Fatalf("View(GetWeight) error = %v", err)
	}
	if weight.Cmp(big.NewInt(20)) != 0 {
		t.Errorf("GetWeight() = %v, want 20", weight)
	}
}

func TestVoteSequenceMonotonic(t *testing.T) {
	s := newTestStore(t)
	var rep block.Account
	rep[0] = 5

	var seqs []uint64
	err := s.Update(func(txn Txn) error {
		for i := 0; i < 3; i++ {
			seq, err := txn.NextVoteSequence(rep)
			if err != nil {
				return err
			}
			seqs = append(seqs, seq)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update(NextVoteSequence) error = %v", err)
	}
	if seqs[0] >= seqs[1] || seqs[1] >= seqs[2] {
		t.Errorf("NextVoteSequence() not strictly increasing: %v", seqs)
	}
}

func TestPeerCRUD(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	p := &PeerRecord{PeerID: "peer1", Addresses: []string{"/ip4/127.0.0.1/tcp/7075"}, FirstSeen: now, LastSeen: now}

	if err := s.SavePeer(p); err != nil {
		t.Fatalf("SavePeer() error = %v", err)
	}
	got, err := s.GetPeer("peer1")
	if err != nil {
		t.Fatalf("GetPeer() error = %v", err)
	}
	if got.PeerID != "peer1" {
		t.Errorf("PeerID = %s, want peer1", got.PeerID)
	}

	if err := s.MarkWarmedUp("peer1"); err != nil {
		t.Fatalf("MarkWarmedUp() error = %v", err)
	}
	got, _ = s.GetPeer("peer1")
	if !got.WarmedUp {
		t.Error("WarmedUp should be true after MarkWarmedUp")
	}
}

func TestUncheckedTakeIsDestructive(t *testing.T) {
	s := newTestStore(t)
	var missing block.Hash
	missing[0] = 1
	var acc block.Account
	acc[0] = 2
	blk := block.NewChangeBlock(acc, missing, acc)

	if err := s.PutUnchecked(missing, blk); err != nil {
		t.Fatalf("PutUnchecked() error = %v", err)
	}

	blocks, err := s.TakeUnchecked(missing)
	if err != nil {
		t.Fatalf("TakeUnchecked() error = %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("TakeUnchecked() returned %d blocks, want 1", len(blocks))
	}

	blocks, err = s.TakeUnchecked(missing)
	if err != nil {
		t.Fatalf("TakeUnchecked() second call error = %v", err)
	}
	if len(blocks) != 0 {
		t.Errorf("TakeUnchecked() should be empty after first take, got %d", len(blocks))
	}
}
