package bootstrap

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Roconda/raiblocks/internal/block"
	"github.com/Roconda/raiblocks/internal/store"
)

// Trigger identifies which of spec.md §4.G's three conditions started a
// bootstrap session, carried through only for observability — the
// reconciliation logic itself (Session.Run) is identical regardless of
// cause.
type Trigger int

const (
	TriggerNewPeer Trigger = iota
	TriggerConfirmationGapSupport
	TriggerElectionTimeout
)

func (t Trigger) String() string {
	switch t {
	case TriggerNewPeer:
		return "new_peer"
	case TriggerConfirmationGapSupport:
		return "confirmation_gap_support"
	case TriggerElectionTimeout:
		return "election_timeout"
	default:
		return "unknown"
	}
}

// PeerPicker selects which peer(s) a session should run against for a
// given trigger. The orchestrator (§4.I) supplies this from the wire
// transport's known-peers list; bootstrap itself has no opinion on
// peer discovery or scoring.
type PeerPicker interface {
	PickPeer(ctx context.Context) (string, error)
}

// Coordinator turns the three trigger conditions of spec.md §4.G into
// bootstrap sessions, retrying a failed peer with backoff rather than
// failing the whole trigger.
type Coordinator struct {
	session *Session
	peers   PeerPicker
	store   *store.Store
}

func NewCoordinator(session *Session, peers PeerPicker, s *store.Store) *Coordinator {
	return &Coordinator{session: session, peers: peers, store: s}
}

// Fire runs one bootstrap session for the given trigger, retrying
// transient peer failures with exponential backoff
// (github.com/cenkalti/backoff/v4) up to ctx's deadline rather than a
// hand-rolled retry loop. On success the peer that was actually run
// against is recorded as warmed-up in the peers table, so future
// PickPeer calls can prefer a peer already known to answer bootstrap
// requests cleanly.
func (c *Coordinator) Fire(ctx context.Context, trigger Trigger, hint block.Hash) error {
	policy := backoff.WithContext(NewDefaultBackoff(), ctx)

	var peer string
	err := backoff.Retry(func() error {
		var pickErr error
		peer, pickErr = c.peers.PickPeer(ctx)
		if pickErr != nil {
			return pickErr
		}
		return c.session.Run(ctx, peer)
	}, policy)
	if err != nil {
		return err
	}

	return c.store.MarkWarmedUp(peer)
}

// NewDefaultBackoff returns the retry policy Fire uses internally,
// exposed so the orchestrator can size its own bootstrap-loop timers
// consistently (e.g. not re-triggering a confirmation-gap bootstrap
// faster than this policy would retry the same peer).
func NewDefaultBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 5 * time.Minute
	return b
}
