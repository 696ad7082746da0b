package election

import (
	"math/big"
	"testing"
	"time"

	"github.com/Roconda/raiblocks/internal/block"
)

func hashWith(b byte) block.Hash {
	var h block.Hash
	h[0] = b
	return h
}

func acctWith(b byte) block.Account {
	var a block.Account
	a[0] = b
	return a
}

func TestRegisterVoteRejectsStaleSequence(t *testing.T) {
	root := hashWith(1)
	a := block.NewChangeBlock(acctWith(1), root, acctWith(1))
	b := block.NewChangeBlock(acctWith(1), root, acctWith(2))
	e := New(root, a, b, time.Minute)

	rep := acctWith(9)
	if !e.RegisterVote(rep, 2, a.Hash(), big.NewInt(10)) {
		t.Fatalf("first vote at sequence 2 should be accepted")
	}
	if e.RegisterVote(rep, 2, b.Hash(), big.NewInt(10)) {
		t.Errorf("replay at the same sequence must be rejected")
	}
	if e.RegisterVote(rep, 1, b.Hash(), big.NewInt(10)) {
		t.Errorf("vote at a lower sequence must be rejected")
	}
}

func TestRegisterVoteReplacesNotAdds(t *testing.T) {
	root := hashWith(1)
	a := block.NewChangeBlock(acctWith(1), root, acctWith(1))
	b := block.NewChangeBlock(acctWith(1), root, acctWith(2))
	e := New(root, a, b, time.Minute)

	rep := acctWith(9)
	e.RegisterVote(rep, 1, a.Hash(), big.NewInt(100))
	e.RegisterVote(rep, 2, b.Hash(), big.NewInt(100))

	online := big.NewInt(100)
	winner, confirmed := e.Tally(online, 1, 2, time.Now())
	if !confirmed || winner != b.Hash() {
		t.Fatalf("expected b to hold the rep's full weight after revote, got winner=%x confirmed=%v", winner, confirmed)
	}
}

func TestTallyConfirmsAtQuorum(t *testing.T) {
	root := hashWith(1)
	a := block.NewChangeBlock(acctWith(1), root, acctWith(1))
	b := block.NewChangeBlock(acctWith(1), root, acctWith(2))
	e := New(root, a, b, time.Minute)

	e.RegisterVote(acctWith(9), 1, a.Hash(), big.NewInt(49))
	online := big.NewInt(100)
	if _, confirmed := e.Tally(online, QuorumNumerator, QuorumDenominator, time.Now()); confirmed {
		t.Fatalf("49/100 must not clear a 1/2 quorum")
	}

	e.RegisterVote(acctWith(10), 1, a.Hash(), big.NewInt(1))
	winner, confirmed := e.Tally(online, QuorumNumerator, QuorumDenominator, time.Now())
	if !confirmed || winner != a.Hash() {
		t.Fatalf("50/100 should clear a 1/2 quorum, got winner=%x confirmed=%v", winner, confirmed)
	}
	if e.State() != Confirmed {
		t.Errorf("State() = %v, want Confirmed", e.State())
	}
}

func TestTallyExpiresAfterDeadline(t *testing.T) {
	root := hashWith(1)
	a := block.NewChangeBlock(acctWith(1), root, acctWith(1))
	b := block.NewChangeBlock(acctWith(1), root, acctWith(2))
	e := New(root, a, b, time.Minute)

	past := time.Now().Add(2 * time.Minute)
	if _, confirmed := e.Tally(big.NewInt(100), QuorumNumerator, QuorumDenominator, past); confirmed {
		t.Fatalf("no votes cast, should not confirm")
	}
	if e.State() != Expired {
		t.Errorf("State() = %v, want Expired", e.State())
	}
}

func TestTableInsertIsIdempotent(t *testing.T) {
	table := NewTable(4, time.Minute)
	root := hashWith(1)
	a := block.NewChangeBlock(acctWith(1), root, acctWith(1))
	b := block.NewChangeBlock(acctWith(1), root, acctWith(2))

	e1, ok := table.Insert(root, a, b)
	if !ok {
		t.Fatalf("first Insert() should succeed")
	}
	c := block.NewChangeBlock(acctWith(1), root, acctWith(3))
	e2, ok := table.Insert(root, c, nil)
	if !ok || e1 != e2 {
		t.Fatalf("second Insert() for the same root should extend the existing election")
	}
	if len(e2.Candidates()) != 3 {
		t.Errorf("Candidates() len = %d, want 3", len(e2.Candidates()))
	}
	if table.Len() != 1 {
		t.Errorf("Len() = %d, want 1", table.Len())
	}
}

func TestTableInsertRespectsCapacity(t *testing.T) {
	table := NewTable(1, time.Minute)
	root1 := hashWith(1)
	root2 := hashWith(2)
	a := block.NewChangeBlock(acctWith(1), root1, acctWith(1))
	b := block.NewChangeBlock(acctWith(1), root1, acctWith(2))
	if _, ok := table.Insert(root1, a, b); !ok {
		t.Fatalf("first root should be admitted")
	}

	c := block.NewChangeBlock(acctWith(2), root2, acctWith(1))
	d := block.NewChangeBlock(acctWith(2), root2, acctWith(2))
	if _, ok := table.Insert(root2, c, d); ok {
		t.Errorf("second root should be rejected once at capacity")
	}
}
