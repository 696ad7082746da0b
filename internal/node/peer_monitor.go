// Package node - Monitors peer connection events and drives bootstrap.
package node

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/Roconda/raiblocks/internal/block"
	"github.com/Roconda/raiblocks/internal/bootstrap"
	"github.com/Roconda/raiblocks/pkg/logging"
)

// PeerMonitor watches for peer connection events and fires bootstrap's
// "new peer" trigger (spec.md §4.G(a)) on every new connection.
type PeerMonitor struct {
	node      *Node
	bootstrap *bootstrap.Coordinator
	log       *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewPeerMonitor creates a new peer monitor.
func NewPeerMonitor(n *Node, coord *bootstrap.Coordinator) *PeerMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &PeerMonitor{
		node:      n,
		bootstrap: coord,
		log:       logging.GetDefault().Component("peer-monitor"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the peer monitor background goroutine.
func (m *PeerMonitor) Start() error {
	sub, err := m.node.Host().EventBus().Subscribe(new(event.EvtPeerConnectednessChanged))
	if err != nil {
		return err
	}

	go m.run(sub)
	m.log.Info("peer monitor started")
	return nil
}

// Stop stops the peer monitor.
func (m *PeerMonitor) Stop() {
	m.cancel()
	m.log.Info("peer monitor stopped")
}

func (m *PeerMonitor) run(sub event.Subscription) {
	defer sub.Close()

	for {
		select {
		case <-m.ctx.Done():
			return
		case ev := <-sub.Out():
			e, ok := ev.(event.EvtPeerConnectednessChanged)
			if !ok {
				continue
			}
			m.handleConnectednessChange(e)
		}
	}
}

func (m *PeerMonitor) handleConnectednessChange(e event.EvtPeerConnectednessChanged) {
	if e.Connectedness == network.Connected {
		m.handlePeerConnected(e.Peer)
	}
}

// handlePeerConnected fires a bootstrap attempt against the newly
// connected peer — spec.md §4.G(a) names "a new peer connects" as one
// of the three unconditional bootstrap triggers.
func (m *PeerMonitor) handlePeerConnected(peerID peer.ID) {
	m.log.Debug("peer connected", "peer", shortID(peerID))

	ctx, cancel := context.WithTimeout(m.ctx, 2*time.Minute)
	defer cancel()
	if err := m.bootstrap.Fire(ctx, bootstrap.TriggerNewPeer, block.Hash{}); err != nil {
		m.log.Debug("bootstrap on new peer failed", "peer", shortID(peerID), "error", err)
	}
}
