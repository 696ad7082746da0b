// Package p2pwire is the libp2p reference implementation of the
// internal/wire contract (spec.md §6): gossipsub topics for the
// broadcast messages (publish, confirm_req, confirm_ack) and a
// length-prefixed direct stream protocol for the bootstrap
// request/response exchange (frontier_req/resp, bulk_pull_req/resp).
package p2pwire

import (
	"bufio"
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/Roconda/raiblocks/internal/wire"
	"github.com/Roconda/raiblocks/pkg/logging"
)

// DirectProtocol is the protocol ID for the direct request/response
// exchange.
const DirectProtocol protocol.ID = "/raiblocks/direct/1.0.0"

var gossipTopics = map[wire.Kind]string{
	wire.KindPublish:    "raiblocks-publish",
	wire.KindConfirmReq: "raiblocks-confirm-req",
	wire.KindConfirmAck: "raiblocks-confirm-ack",
}

// Transport implements wire.Transport over a libp2p host: broadcast
// messages ride gossipsub topics (one per kind), and direct messages
// ride the length-prefixed stream protocol below.
type Transport struct {
	host host.Host
	ps   *pubsub.PubSub
	log  *logging.Logger

	topics map[wire.Kind]*pubsub.Topic
	subs   map[wire.Kind]*pubsub.Subscription

	mu        sync.RWMutex
	onReceive func(wire.Endpoint, wire.Message)

	ctx    context.Context
	cancel context.CancelFunc
}

// New joins the broadcast topics and registers the direct stream
// handler on h. ps must already be constructed by the caller
// (pubsub.NewGossipSub(ctx, h, WithPeerExchange(true),
// WithFloodPublish(true))) — this package does not build the host or
// the pubsub router itself, keeping host ownership separate from the
// message handlers that own the protocols.
func New(ctx context.Context, h host.Host, ps *pubsub.PubSub) (*Transport, error) {
	ctx, cancel := context.WithCancel(ctx)
	t := &Transport{
		host:   h,
		ps:     ps,
		log:    logging.GetDefault().Component("p2pwire"),
		topics: make(map[wire.Kind]*pubsub.Topic),
		subs:   make(map[wire.Kind]*pubsub.Subscription),
		ctx:    ctx,
		cancel: cancel,
	}

	for kind, name := range gossipTopics {
		topic, err := ps.Join(name)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("p2pwire: join topic %s: %w", name, err)
		}
		sub, err := topic.Subscribe()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("p2pwire: subscribe topic %s: %w", name, err)
		}
		t.topics[kind] = topic
		t.subs[kind] = sub
		go t.readTopic(kind, sub)
	}

	h.SetStreamHandler(DirectProtocol, t.handleStream)
	return t, nil
}

func (t *Transport) readTopic(kind wire.Kind, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(t.ctx)
		if err != nil {
			return // context cancelled on Close
		}
		if msg.ReceivedFrom == t.host.ID() {
			continue
		}
		decoded, err := wire.Decode(msg.Data)
		if err != nil {
			t.log.Warn("dropped malformed gossip message", "kind", kind, "error", err)
			continue
		}
		t.dispatch(wire.Endpoint(msg.ReceivedFrom.String()), decoded)
	}
}

func (t *Transport) dispatch(ep wire.Endpoint, msg wire.Message) {
	t.mu.RLock()
	fn := t.onReceive
	t.mu.RUnlock()
	if fn != nil {
		fn(ep, msg)
	}
}

// OnReceive registers the callback invoked for every message this
// transport receives, gossip or direct alike.
func (t *Transport) OnReceive(fn func(wire.Endpoint, wire.Message)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReceive = fn
}

// Broadcast publishes msg on its kind's gossipsub topic.
func (t *Transport) Broadcast(ctx context.Context, msg wire.Message) error {
	topic, ok := t.topics[msg.Kind()]
	if !ok {
		return fmt.Errorf("p2pwire: no broadcast topic for kind %d", msg.Kind())
	}
	data, err := msg.MarshalBinary()
	if err != nil {
		return err
	}
	return topic.Publish(ctx, data)
}

// Send delivers msg directly to ep over a fresh stream, fire-and-forget
// per spec.md §6 — callers that need a reply (bootstrap's frontier and
// bulk-pull requests) use Client instead, which layers a response read
// on top of the same framing.
func (t *Transport) Send(ctx context.Context, ep wire.Endpoint, msg wire.Message) error {
	pid, err := peer.Decode(string(ep))
	if err != nil {
		return fmt.Errorf("p2pwire: decode endpoint %q: %w", ep, err)
	}
	s, err := t.host.NewStream(ctx, pid, DirectProtocol)
	if err != nil {
		return fmt.Errorf("p2pwire: open stream to %s: %w", ep, err)
	}
	defer s.Close()

	data, err := msg.MarshalBinary()
	if err != nil {
		return err
	}
	return writeLengthPrefixed(s, data)
}

// Peers lists the remote peers currently connected to the host.
func (t *Transport) Peers() []wire.Endpoint {
	conns := t.host.Network().Peers()
	out := make([]wire.Endpoint, 0, len(conns))
	for _, p := range conns {
		out = append(out, wire.Endpoint(p.String()))
	}
	return out
}

// Close stops the gossip read loops and removes the direct handler.
func (t *Transport) Close() {
	t.cancel()
	t.host.RemoveStreamHandler(DirectProtocol)
	for _, sub := range t.subs {
		sub.Cancel()
	}
}

func (t *Transport) handleStream(s network.Stream) {
	defer s.Close()
	remote := s.Conn().RemotePeer()

	data, err := readLengthPrefixed(bufio.NewReader(s))
	if err != nil {
		t.log.Debug("failed to read direct message", "peer", remote, "error", err)
		return
	}
	msg, err := wire.Decode(data)
	if err != nil {
		t.log.Warn("dropped malformed direct message", "peer", remote, "error", err)
		return
	}
	t.dispatch(wire.Endpoint(remote.String()), msg)
}
