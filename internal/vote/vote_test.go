package vote

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/Roconda/raiblocks/internal/block"
	"github.com/Roconda/raiblocks/internal/election"
	"github.com/Roconda/raiblocks/internal/store"
)

type acceptAllVerifier struct{}

func (acceptAllVerifier) VerifyVoteSignature(block.Account, block.Hash, uint64, block.Signature) bool {
	return true
}

type rejectAllVerifier struct{}

func (rejectAllVerifier) VerifyVoteSignature(block.Account, block.Hash, uint64, block.Signature) bool {
	return false
}

type fakeSigner struct{}

func (fakeSigner) Sign(_ context.Context, _ block.Account, msg []byte) (block.Signature, error) {
	var sig block.Signature
	copy(sig[:], msg)
	return sig, nil
}

func acctWith(b byte) block.Account {
	var a block.Account
	a[0] = b
	return a
}

func hashWith(b byte) block.Hash {
	var h block.Hash
	h[0] = b
	return h
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "raiblocks-vote-test-*")
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

func TestProcessorAcceptsValidVote(t *testing.T) {
	s := newTestStore(t)
	root := hashWith(1)
	rep := acctWith(9)

	if err := s.Update(func(txn store.Txn) error {
		return txn.AddWeight(rep, big.NewInt(100))
	}); err != nil {
		t.Fatalf("seed weight: %v", err)
	}

	a := block.NewChangeBlock(acctWith(1), root, acctWith(1))
	b := block.NewChangeBlock(acctWith(1), root, acctWith(2))
	table := election.NewTable(4, time.Minute)
	table.Insert(root, a, b)

	p, err := NewProcessor(table, acceptAllVerifier{}, s)
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}

	v := Vote{Representative: rep, Sequence: 1, Candidate: a.Hash()}
	accepted, rebroadcast, err := p.Process(root, v)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !accepted || !rebroadcast {
		t.Fatalf("Process() = (%v, %v), want (true, true)", accepted, rebroadcast)
	}

	accepted, rebroadcast, err = p.Process(root, v)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if accepted || rebroadcast {
		t.Errorf("replaying the same vote should neither accept (stale sequence) nor rebroadcast, got (%v, %v)", accepted, rebroadcast)
	}
}

func TestProcessorRejectsBadSignature(t *testing.T) {
	s := newTestStore(t)
	root := hashWith(1)
	a := block.NewChangeBlock(acctWith(1), root, acctWith(1))
	b := block.NewChangeBlock(acctWith(1), root, acctWith(2))
	table := election.NewTable(4, time.Minute)
	table.Insert(root, a, b)

	p, err := NewProcessor(table, rejectAllVerifier{}, s)
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}

	accepted, _, err := p.Process(root, Vote{Representative: acctWith(9), Sequence: 1, Candidate: a.Hash()})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if accepted {
		t.Errorf("a vote with an invalid signature must never be accepted")
	}
}

func TestProcessorRejectsUnknownRoot(t *testing.T) {
	s := newTestStore(t)
	table := election.NewTable(4, time.Minute)
	p, err := NewProcessor(table, acceptAllVerifier{}, s)
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}

	accepted, _, err := p.Process(hashWith(1), Vote{Representative: acctWith(9), Sequence: 1, Candidate: hashWith(2)})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if accepted {
		t.Errorf("a vote for a root with no active election must be rejected")
	}
}

func TestLocalVoterSequenceIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	lv := NewLocalVoter(s, fakeSigner{})
	rep := acctWith(1)

	v1, err := lv.Vote(context.Background(), rep, hashWith(1))
	if err != nil {
		t.Fatalf("Vote() error = %v", err)
	}
	v2, err := lv.Vote(context.Background(), rep, hashWith(2))
	if err != nil {
		t.Fatalf("Vote() error = %v", err)
	}
	if v2.Sequence <= v1.Sequence {
		t.Errorf("sequence did not increase: v1=%d v2=%d", v1.Sequence, v2.Sequence)
	}
}
