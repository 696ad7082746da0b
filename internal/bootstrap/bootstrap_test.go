package bootstrap

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/Roconda/raiblocks/internal/block"
	"github.com/Roconda/raiblocks/internal/election"
	"github.com/Roconda/raiblocks/internal/ledger"
	"github.com/Roconda/raiblocks/internal/store"
)

type acceptAllVerifier struct{}

func (acceptAllVerifier) VerifyWork(block.Hash, uint64) bool { return true }
func (acceptAllVerifier) VerifySignature(block.Account, block.Hash, block.Signature) bool {
	return true
}

type fakeFrontiers struct {
	frontiers map[block.Account]block.Hash
}

func (f fakeFrontiers) Frontiers(context.Context, string) (map[block.Account]block.Hash, error) {
	return f.frontiers, nil
}

type fakePuller struct {
	chain []block.Block
}

func (f fakePuller) PullRange(context.Context, string, block.Account, block.Hash, block.Hash) ([]block.Block, error) {
	return f.chain, nil
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

func balanceOf(v *big.Int) block.Balance {
	var b block.Balance
	v.FillBytes(b[:])
	return b
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "raiblocks-bootstrap-test-*")
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

func TestSessionAppliesDivergentChain(t *testing.T) {
	s := newTestStore(t)
	val := ledger.New(acceptAllVerifier{})
	elections := election.NewTable(4, time.Minute)

	genesis := acctWith(1)
	var genesisOpen block.Hash
	genesisOpen[0] = 0xAA
	supply := new(big.Int).Lsh(big.NewInt(1), 80)

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

	remainder := new(big.Int).Sub(supply, big.NewInt(500))
	send := block.NewSendBlock(genesis, genesisOpen, acctWith(2), balanceOf(remainder))

	frontiers := fakeFrontiers{frontiers: map[block.Account]block.Hash{genesis: send.Hash()}}
	puller := fakePuller{chain: []block.Block{send}}

	session := NewSession(s, val, elections, frontiers, puller)
	if err := session.Run(context.Background(), "peer-a"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if err := s.View(func(txn store.Txn) error {
		acc, err := txn.GetAccount(genesis)
		if err != nil {
			return err
		}
		if acc.Frontier != send.Hash() {
			t.Errorf("frontier = %x, want %x", acc.Frontier, send.Hash())
		}
		return nil
	}); err != nil {
		t.Fatalf("verify: %v", err)
	}

	count, err := WarmedUpCount(s)
	if err != nil {
		t.Fatalf("WarmedUpCount() error = %v", err)
	}
	if count != 1 {
		t.Errorf("WarmedUpCount() = %d, want 1", count)
	}
}

func TestSessionOpensElectionOnFork(t *testing.T) {
	s := newTestStore(t)
	val := ledger.New(acceptAllVerifier{})
	elections := election.NewTable(4, time.Minute)

	genesis := acctWith(1)
	var genesisOpen block.Hash
	genesisOpen[0] = 0xAA
	supply := new(big.Int).Lsh(big.NewInt(1), 80)

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

	remainder := new(big.Int).Sub(supply, big.NewInt(500))
	localSend := block.NewSendBlock(genesis, genesisOpen, acctWith(2), balanceOf(remainder))
	if err := s.Update(func(txn store.Txn) error {
		result, err := val.Process(txn, localSend)
		if err != nil {
			return err
		}
		if result != ledger.Progress {
			t.Fatalf("seed localSend Process() = %v, want Progress", result)
		}
		return nil
	}); err != nil {
		t.Fatalf("seed local send: %v", err)
	}

	peerSend := block.NewSendBlock(genesis, genesisOpen, acctWith(3), balanceOf(remainder))
	frontiers := fakeFrontiers{frontiers: map[block.Account]block.Hash{genesis: peerSend.Hash()}}
	puller := fakePuller{chain: []block.Block{peerSend}}

	session := NewSession(s, val, elections, frontiers, puller)
	if err := session.Run(context.Background(), "peer-a"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	e, ok := elections.Get(genesisOpen)
	if !ok {
		t.Fatalf("expected an election opened at the fork root")
	}
	if len(e.Candidates()) != 2 {
		t.Errorf("Candidates() len = %d, want 2", len(e.Candidates()))
	}

	if err := s.View(func(txn store.Txn) error {
		acc, err := txn.GetAccount(genesis)
		if err != nil {
			return err
		}
		if acc.Frontier != localSend.Hash() {
			t.Errorf("a fork must not overwrite the persisted frontier: got %x, want %x", acc.Frontier, localSend.Hash())
		}
		return nil
	}); err != nil {
		t.Fatalf("verify: %v", err)
	}
}
