package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Roconda/raiblocks/internal/block"
	"github.com/Roconda/raiblocks/internal/election"
	"github.com/Roconda/raiblocks/internal/ledger"
	"github.com/Roconda/raiblocks/internal/store"
)

type fixedPeerPicker struct {
	peer string
	err  error
}

func (p fixedPeerPicker) PickPeer(context.Context) (string, error) {
	return p.peer, p.err
}

func TestCoordinatorFireRunsSessionAgainstPickedPeer(t *testing.T) {
	s := newTestStore(t)
	val := ledger.New(acceptAllVerifier{})
	elections := election.NewTable(4, time.Minute)

	frontiers := fakeFrontiers{frontiers: map[block.Account]block.Hash{}}
	puller := fakePuller{}
	session := NewSession(s, val, elections, frontiers, puller)

	coord := NewCoordinator(session, fixedPeerPicker{peer: "peer-a"}, s)
	if err := coord.Fire(context.Background(), TriggerNewPeer, block.Hash{}); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}

	count, err := WarmedUpCount(s)
	if err != nil {
		t.Fatalf("WarmedUpCount() error = %v", err)
	}
	if count != 1 {
		t.Errorf("WarmedUpCount() = %d, want 1", count)
	}
}

func TestCoordinatorFireMarksPickedPeerWarmedUp(t *testing.T) {
	s := newTestStore(t)
	val := ledger.New(acceptAllVerifier{})
	elections := election.NewTable(4, time.Minute)
	session := NewSession(s, val, elections, fakeFrontiers{frontiers: map[block.Account]block.Hash{}}, fakePuller{})

	if err := s.SavePeer(&store.PeerRecord{PeerID: "peer-a"}); err != nil {
		t.Fatalf("SavePeer() error = %v", err)
	}

	coord := NewCoordinator(session, fixedPeerPicker{peer: "peer-a"}, s)
	if err := coord.Fire(context.Background(), TriggerNewPeer, block.Hash{}); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}

	rec, err := s.GetPeer("peer-a")
	if err != nil {
		t.Fatalf("GetPeer() error = %v", err)
	}
	if !rec.WarmedUp {
		t.Error("expected the peer Fire ran against to be marked warmed up")
	}
}

func TestCoordinatorFirePropagatesPeerPickerFailure(t *testing.T) {
	s := newTestStore(t)
	val := ledger.New(acceptAllVerifier{})
	elections := election.NewTable(4, time.Minute)
	session := NewSession(s, val, elections, fakeFrontiers{}, fakePuller{})

	wantErr := errors.New("no connected peers")
	coord := NewCoordinator(session, fixedPeerPicker{err: wantErr}, s)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := coord.Fire(ctx, TriggerNewPeer, block.Hash{})
	if err == nil {
		t.Fatal("expected Fire() to fail when the peer picker always errors")
	}
}

func TestTriggerString(t *testing.T) {
	cases := map[Trigger]string{
		TriggerNewPeer:                "new_peer",
		TriggerConfirmationGapSupport: "confirmation_gap_support",
		TriggerElectionTimeout:        "election_timeout",
		Trigger(99):                   "unknown",
	}
	for trigger, want := range cases {
		if got := trigger.String(); got != want {
			t.Errorf("Trigger(%d).String() = %q, want %q", trigger, got, want)
		}
	}
}
