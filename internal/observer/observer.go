// Package observer implements the sink dispatch of spec.md §4.H: typed
// event sinks registered at startup, run strictly after a write
// transaction commits, in registration order, with every sink failure
// contained so it can never affect the ledger.
package observer

import (
	"math/big"

	"github.com/Roconda/raiblocks/internal/block"
	"github.com/Roconda/raiblocks/pkg/logging"
)

// BlockEvent fires once per committed block, per spec.md §4.H ("fired
// with block, account, amount").
type BlockEvent struct {
	Block   block.Block
	Account block.Account
	Amount  *big.Int
}

// AccountEvent fires on an account balance change.
type AccountEvent struct {
	Account block.Account
	Balance *big.Int
}

// EndpointEvent fires when a peer endpoint is added to the wire
// transport's known-peers set.
type EndpointEvent struct {
	Endpoint string
}

// VoteEvent fires on vote acceptance (internal/vote.Processor.Process
// returning accepted = true).
type VoteEvent struct {
	Representative block.Account
	Root           block.Hash
	Candidate      block.Hash
}

// BootstrapEvent fires on bootstrap session completion.
type BootstrapEvent struct {
	Peer    string
	Trigger string
}

type (
	BlockFunc     func(BlockEvent) error
	AccountFunc   func(AccountEvent) error
	EndpointFunc  func(EndpointEvent) error
	VoteFunc      func(VoteEvent) error
	BootstrapFunc func(BootstrapEvent) error
)

// Registry holds ordered sink slices per event type. It is not safe for
// concurrent registration and dispatch of the *same* event type — sinks
// are expected to be registered once at startup (spec.md §4.H: "a set
// of sinks registered at startup"), then only ever dispatched to.
type Registry struct {
	blockSinks     []BlockFunc
	accountSinks   []AccountFunc
	endpointSinks  []EndpointFunc
	voteSinks      []VoteFunc
	bootstrapSinks []BootstrapFunc
	log            *logging.Logger
}

func NewRegistry() *Registry {
	return &Registry{log: logging.GetDefault().Component("observer")}
}

func (r *Registry) OnBlock(fn BlockFunc)         { r.blockSinks = append(r.blockSinks, fn) }
func (r *Registry) OnAccount(fn AccountFunc)     { r.accountSinks = append(r.accountSinks, fn) }
func (r *Registry) OnEndpoint(fn EndpointFunc)   { r.endpointSinks = append(r.endpointSinks, fn) }
func (r *Registry) OnVote(fn VoteFunc)           { r.voteSinks = append(r.voteSinks, fn) }
func (r *Registry) OnBootstrap(fn BootstrapFunc) { r.bootstrapSinks = append(r.bootstrapSinks, fn) }

// DispatchBlock runs every registered block sink in registration order.
// Call this only after the store.Update that persisted ev.Block has
// returned, never from inside it — that ordering is what makes the
// coherence contract of spec.md §4.H hold (a store.View started from a
// block sink will see the block, since it already committed).
func (r *Registry) DispatchBlock(ev BlockEvent) {
	for _, sink := range r.blockSinks {
		r.runBlock(sink, ev)
	}
}

func (r *Registry) runBlock(sink BlockFunc, ev BlockEvent) {
	defer r.recoverSink("block")
	if err := sink(ev); err != nil {
		r.log.Error("block observer failed", "err", err)
	}
}

func (r *Registry) DispatchAccount(ev AccountEvent) {
	for _, sink := range r.accountSinks {
		r.runAccount(sink, ev)
	}
}

func (r *Registry) runAccount(sink AccountFunc, ev AccountEvent) {
	defer r.recoverSink("account")
	if err := sink(ev); err != nil {
		r.log.Error("account observer failed", "err", err)
	}
}

func (r *Registry) DispatchEndpoint(ev EndpointEvent) {
	for _, sink := range r.endpointSinks {
		r.runEndpoint(sink, ev)
	}
}

func (r *Registry) runEndpoint(sink EndpointFunc, ev EndpointEvent) {
	defer r.recoverSink("endpoint")
	if err := sink(ev); err != nil {
		r.log.Error("endpoint observer failed", "err", err)
	}
}

func (r *Registry) DispatchVote(ev VoteEvent) {
	for _, sink := range r.voteSinks {
		r.runVote(sink, ev)
	}
}

func (r *Registry) runVote(sink VoteFunc, ev VoteEvent) {
	defer r.recoverSink("vote")
	if err := sink(ev); err != nil {
		r.log.Error("vote observer failed", "err", err)
	}
}

func (r *Registry) DispatchBootstrap(ev BootstrapEvent) {
	for _, sink := range r.bootstrapSinks {
		r.runBootstrap(sink, ev)
	}
}

func (r *Registry) runBootstrap(sink BootstrapFunc, ev BootstrapEvent) {
	defer r.recoverSink("bootstrap")
	if err := sink(ev); err != nil {
		r.log.Error("bootstrap observer failed", "err", err)
	}
}

func (r *Registry) recoverSink(kind string) {
	if rec := recover(); rec != nil {
		r.log.Error("observer sink panicked", "kind", kind, "recover", rec)
	}
}
