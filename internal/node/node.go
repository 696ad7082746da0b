// Package node wires every component of spec.md §4 into a running
// peer: store, ledger validator, gap cache, election table, vote
// processor, bootstrap coordinator, observer registry, and the p2pwire
// transport, on top of a libp2p host with DHT, pubsub, and mDNS.
package node

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"
	connmgr "github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/multiformats/go-multiaddr"

	"github.com/Roconda/raiblocks/internal/block"
	"github.com/Roconda/raiblocks/internal/bootstrap"
	"github.com/Roconda/raiblocks/internal/election"
	"github.com/Roconda/raiblocks/internal/gapcache"
	"github.com/Roconda/raiblocks/internal/keystore"
	"github.com/Roconda/raiblocks/internal/ledger"
	"github.com/Roconda/raiblocks/internal/nodeconfig"
	"github.com/Roconda/raiblocks/internal/observer"
	"github.com/Roconda/raiblocks/internal/p2pwire"
	"github.com/Roconda/raiblocks/internal/pow"
	"github.com/Roconda/raiblocks/internal/store"
	"github.com/Roconda/raiblocks/internal/vote"
	"github.com/Roconda/raiblocks/internal/wire"
	"github.com/Roconda/raiblocks/pkg/logging"
)

// Node is one raiblocks peer: a libp2p host plus every spec.md §4
// component wired together.
type Node struct {
	host   host.Host
	dht    *dht.IpfsDHT
	pubsub *pubsub.PubSub
	config *nodeconfig.Config
	log    *logging.Logger

	// Discovery
	mdnsService mdns.Service
	routingDisc *drouting.RoutingDiscovery

	// Domain components
	Store       *store.Store
	Validator   *ledger.Validator
	GapCache    *gapcache.Cache
	Confirmed   *gapcache.ConfirmationCache
	Elections   *election.Table
	Votes       *vote.Processor
	LocalVoter  *vote.LocalVoter
	Keys        *keystore.FileStore
	PoW         *pow.Worker
	Observers   *observer.Registry
	Transport   *p2pwire.Transport
	rpcServer   *p2pwire.Server
	rpcClient   *p2pwire.Client
	Bootstrap   *bootstrap.Coordinator
	peerMonitor *PeerMonitor

	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	stopOnce  sync.Once
}

// New creates a Node: it opens the ledger store, builds every domain
// component, and brings up the libp2p host, but does not yet connect to
// peers or start background loops — call Start for that.
func New(ctx context.Context, cfg *nodeconfig.Config) (*Node, error) {
	ctx, cancel := context.WithCancel(ctx)

	n := &Node{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
		log:    logging.GetDefault().Component("node"),
	}

	s, err := store.Open(store.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("node: open store: %w", err)
	}
	n.Store = s

	dataDir := expandPath(cfg.Storage.DataDir)
	n.Keys = keystore.NewFileStore(filepath.Join(dataDir, "accounts"))
	n.PoW = pow.NewWorker(pow.DefaultThreshold, cfg.WorkThreads)
	n.Validator = ledger.New(compositeVerifier{pow: n.PoW})

	gc, err := gapcache.New(gapcache.DefaultCeiling)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("node: gap cache: %w", err)
	}
	n.GapCache = gc

	cc, err := gapcache.NewConfirmationCache(gapcache.DefaultCeiling, gapcache.DefaultSupportThreshold)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("node: confirmation cache: %w", err)
	}
	n.Confirmed = cc

	n.Elections = election.NewTable(election.DefaultMaxActive, election.DefaultTimeout)
	n.Observers = observer.NewRegistry()

	votes, err := vote.NewProcessor(n.Elections, voteVerifier{}, n.Store)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("node: vote processor: %w", err)
	}
	n.Votes = votes
	n.LocalVoter = vote.NewLocalVoter(n.Store, n.Keys)

	privKey, err := n.loadOrCreateKey()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("node: load/create identity key: %w", err)
	}

	listenAddrs := make([]multiaddr.Multiaddr, 0, len(cfg.Network.ListenAddrs))
	for _, addr := range cfg.Network.ListenAddrs {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("node: invalid listen address %s: %w", addr, err)
		}
		listenAddrs = append(listenAddrs, ma)
	}

	cm, err := connmgr.NewConnManager(
		cfg.Network.ConnMgr.LowWater,
		cfg.Network.ConnMgr.HighWater,
		connmgr.WithGracePeriod(cfg.Network.ConnMgr.GracePeriod),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("node: connection manager: %w", err)
	}

	opts := []libp2p.Option{
		libp2p.Identity(privKey),
		libp2p.ListenAddrs(listenAddrs...),
		libp2p.ConnectionManager(cm),
		libp2p.DefaultTransports,
		libp2p.DefaultMuxers,
		libp2p.DefaultSecurity,
	}
	if cfg.Network.EnableNAT {
		opts = append(opts, libp2p.NATPortMap())
	}
	if cfg.Network.EnableRelay {
		opts = append(opts, libp2p.EnableRelay())
	}
	if cfg.Network.EnableHolePunching {
		opts = append(opts, libp2p.EnableHolePunching())
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("node: create libp2p host: %w", err)
	}
	n.host = h

	h.Network().Notify(&network.NotifyBundle{
		ConnectedF: func(_ network.Network, conn network.Conn) {
			go n.onPeerConnected(conn.RemotePeer())
		},
	})

	if cfg.Network.EnableDHT {
		if err := n.initDHT(ctx); err != nil {
			h.Close()
			cancel()
			return nil, fmt.Errorf("node: initialize DHT: %w", err)
		}
	}

	if err := n.initPubSub(ctx); err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("node: initialize pubsub: %w", err)
	}

	transport, err := p2pwire.New(ctx, h, n.pubsub)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("node: initialize transport: %w", err)
	}
	n.Transport = transport
	n.rpcServer = p2pwire.NewServer(h, n.Store)
	n.rpcClient = p2pwire.NewClient(h)

	session := bootstrap.NewSession(n.Store, n.Validator, n.Elections, n.rpcClient, n.rpcClient)
	n.Bootstrap = bootstrap.NewCoordinator(session, connectedPeerPicker{node: n}, n.Store)
	n.peerMonitor = NewPeerMonitor(n, n.Bootstrap)

	n.wireObservers()
	n.wireTransport()

	if cfg.Network.EnableMDNS {
		if err := n.initMDNS(); err != nil {
			n.log.Warn("mDNS initialization failed", "error", err)
		}
	}

	return n, nil
}

// compositeVerifier assembles ledger.Verifier from the two external
// collaborators spec.md §4.C needs but never imports directly: proof
// of work (§4.J) and signature checking (§4.K).
type compositeVerifier struct {
	pow *pow.Worker
}

func (v compositeVerifier) VerifyWork(root block.Hash, work uint64) bool {
	return v.pow.Verify(root, work)
}

func (v compositeVerifier) VerifySignature(account block.Account, hash block.Hash, sig block.Signature) bool {
	return keystore.VerifySignature(account, hash, sig)
}

// voteVerifier adapts keystore's generalized message verification to
// vote.SignatureVerifier's (rep, candidate, sequence, sig) shape.
type voteVerifier struct{}

func (voteVerifier) VerifyVoteSignature(rep block.Account, candidate block.Hash, sequence uint64, sig block.Signature) bool {
	v := vote.Vote{Representative: rep, Sequence: sequence, Candidate: candidate}
	return keystore.VerifyMessage(rep, v.Message(), sig)
}

// connectedPeerPicker hands bootstrap.Coordinator one of the
// transport's currently connected peers; spec.md §4.G leaves peer
// selection unspecified beyond "pick one or more peers". Among
// currently connected peers it prefers one bootstrap has already
// completed a session against before (internal/store's peers table),
// since a peer that has warmed up before is more likely to answer
// frontier/bulk-pull requests cleanly than an unproven one; any
// connected peer is still a fine fallback.
type connectedPeerPicker struct{ node *Node }

func (p connectedPeerPicker) PickPeer(ctx context.Context) (string, error) {
	peers := p.node.Transport.Peers()
	if len(peers) == 0 {
		return "", fmt.Errorf("node: no connected peers to bootstrap from")
	}

	for _, ep := range peers {
		rec, err := p.node.Store.GetPeer(string(ep))
		if err == nil && rec.WarmedUp {
			return string(ep), nil
		}
	}
	return string(peers[0]), nil
}

// wireObservers hooks the default sinks every node runs: structured
// logging of committed blocks through logging.Logger.
func (n *Node) wireObservers() {
	blockLog := n.log.Component("observer-block")
	n.Observers.OnBlock(func(ev observer.BlockEvent) error {
		blockLog.Debug("block committed", "hash", ev.Block.Hash(), "account", ev.Account, "amount", ev.Amount)
		return nil
	})

	voteLog := n.log.Component("observer-vote")
	n.Observers.OnVote(func(ev observer.VoteEvent) error {
		voteLog.Debug("vote accepted", "representative", ev.Representative, "root", ev.Root, "candidate", ev.Candidate)
		return nil
	})
}

// wireTransport dispatches every inbound wire message to the matching
// domain component: publish/confirm_req go straight to the validator
// (gaps are parked in the gap cache, forks go to the election table),
// confirm_ack reaches the vote processor.
func (n *Node) wireTransport() {
	n.Transport.OnReceive(func(ep wire.Endpoint, msg wire.Message) {
		switch m := msg.(type) {
		case wire.Publish:
			n.handleIncomingBlock(ep, m.Block)
		case wire.ConfirmReq:
			n.handleConfirmReq(ep, m.Block)
		case wire.ConfirmAck:
			n.handleIncomingVote(ep, m.Vote, m.Block.Root())
		}
	})
}

// handleConfirmReq processes the referenced block like any other
// incoming block, but additionally tracks how many distinct peers are
// asking about a hash this node still can't place — sufficient support
// for an unknown hash is itself a bootstrap trigger (spec.md §4.G(b)).
func (n *Node) handleConfirmReq(ep wire.Endpoint, blk block.Block) {
	gap := n.handleIncomingBlock(ep, blk)
	if !gap {
		n.Confirmed.Forget(blk.Hash())
		return
	}
	if n.Confirmed.Observe(blk.Hash(), string(ep)) {
		ctx, cancel := context.WithTimeout(n.ctx, 2*time.Minute)
		defer cancel()
		if err := n.Bootstrap.Fire(ctx, bootstrap.TriggerConfirmationGapSupport, blk.Hash()); err != nil {
			n.log.Debug("bootstrap on confirmation gap support failed", "error", err)
		}
	}
}

// handleIncomingBlock applies blk to the ledger and reports whether it
// was left pending on a gap (still unresolved after this call).
func (n *Node) handleIncomingBlock(ep wire.Endpoint, blk block.Block) (gap bool) {
	var result ledger.Result
	err := n.Store.Update(func(txn store.Txn) error {
		r, err := n.Validator.Process(txn, blk)
		result = r
		return err
	})
	if err != nil {
		n.log.Warn("failed to process incoming block", "peer", ep, "error", err)
		return false
	}

	switch result {
	case ledger.Progress:
		ev := observer.BlockEvent{Block: blk, Account: blk.Account()}
		_ = n.Store.View(func(txn store.Txn) error {
			if rec, err := txn.GetBlock(blk.Hash()); err == nil {
				ev.Account, ev.Amount = rec.Account, rec.Amount
			}
			return nil
		})
		n.Observers.DispatchBlock(ev)
		for _, resolved := range n.GapCache.Release(blk.Hash()) {
			n.handleIncomingBlock(ep, resolved)
		}
		return false
	case ledger.GapPrevious:
		n.GapCache.Park(blk.Root(), blk)
		return true
	case ledger.GapSource:
		n.GapCache.Park(missingSource(blk), blk)
		return true
	case ledger.Fork:
		var existing *store.BlockRecord
		if err := n.Store.View(func(txn store.Txn) error {
			rec, err := txn.GetBlockByRoot(blk.Root())
			existing = rec
			return err
		}); err == nil {
			n.Elections.Insert(blk.Root(), existing.Blk, blk)
		}
		return false
	}
	return false
}

func (n *Node) handleIncomingVote(ep wire.Endpoint, v vote.Vote, root block.Hash) {
	accepted, rebroadcast, err := n.Votes.Process(root, v)
	if err != nil {
		n.log.Warn("failed to process incoming vote", "peer", ep, "error", err)
		return
	}
	if accepted {
		n.Observers.DispatchVote(observer.VoteEvent{Representative: v.Representative, Root: root, Candidate: v.Candidate})
	}
	if rebroadcast {
		if e, ok := n.Elections.Get(root); ok {
			if candidate, ok := e.Candidate(v.Candidate); ok {
				if err := n.Transport.Broadcast(n.ctx, wire.ConfirmAck{Vote: v, Block: candidate}); err != nil {
					n.log.Debug("failed to rebroadcast vote", "error", err)
				}
			}
		}
	}
}

func (n *Node) onPeerConnected(p peer.ID) {
	n.Observers.DispatchEndpoint(observer.EndpointEvent{Endpoint: p.String()})

	now := time.Now()
	if err := n.Store.SavePeer(&store.PeerRecord{
		PeerID:        p.String(),
		FirstSeen:     now,
		LastSeen:      now,
		LastConnected: now,
	}); err != nil {
		n.log.Debug("failed to record peer sighting", "peer", shortID(p), "error", err)
	}
}

// loadOrCreateKey loads the node's libp2p identity key, distinct from
// any account key in n.Keys — this key only authenticates the peer
// connection.
func (n *Node) loadOrCreateKey() (crypto.PrivKey, error) {
	dataDir := expandPath(n.config.Storage.DataDir)
	keyPath := filepath.Join(dataDir, "node.key")

	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return nil, err
	}

	if data, err := os.ReadFile(keyPath); err == nil {
		return crypto.UnmarshalPrivateKey(data)
	}

	privKey, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, err
	}

	data, err := crypto.MarshalPrivateKey(privKey)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyPath, data, 0600); err != nil {
		return nil, err
	}

	n.log.Info("generated new node identity")
	return privKey, nil
}

func (n *Node) initDHT(ctx context.Context) error {
	var err error
	n.dht, err = dht.New(ctx, n.host,
		dht.Mode(dht.ModeAutoServer),
		dht.ProtocolPrefix(protocol.ID("/raiblocks")),
	)
	if err != nil {
		return err
	}
	if err := n.dht.Bootstrap(ctx); err != nil {
		return err
	}
	n.routingDisc = drouting.NewRoutingDiscovery(n.dht)
	return nil
}

func (n *Node) initPubSub(ctx context.Context) error {
	var err error
	n.pubsub, err = pubsub.NewGossipSub(ctx, n.host,
		pubsub.WithPeerExchange(true),
		pubsub.WithFloodPublish(true),
	)
	return err
}

const discoveryNamespace = "raiblocks"

func (n *Node) initMDNS() error {
	n.mdnsService = mdns.NewMdnsService(n.host, discoveryNamespace, n)
	return n.mdnsService.Start()
}

// HandlePeerFound is called when mDNS discovers a peer.
func (n *Node) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == n.host.ID() {
		return
	}
	n.host.Peerstore().AddAddrs(pi.ID, pi.Addrs, peerstore.PermanentAddrTTL)
	go func() {
		ctx, cancel := context.WithTimeout(n.ctx, 10*time.Second)
		defer cancel()
		if err := n.host.Connect(ctx, pi); err != nil {
			n.log.Debug("failed to connect to mDNS peer", "peer", shortID(pi.ID), "error", err)
		}
	}()
}

// Start connects to configured bootstrap peers and starts discovery.
func (n *Node) Start() error {
	n.startTime = time.Now()

	if err := n.peerMonitor.Start(); err != nil {
		return fmt.Errorf("node: start peer monitor: %w", err)
	}

	for _, addrStr := range n.config.Network.BootstrapPeers {
		ma, err := multiaddr.NewMultiaddr(addrStr)
		if err != nil {
			n.log.Warn("invalid bootstrap address", "addr", addrStr, "error", err)
			continue
		}
		pi, err := peer.AddrInfoFromP2pAddr(ma)
		if err != nil {
			n.log.Warn("invalid bootstrap peer info", "addr", addrStr, "error", err)
			continue
		}
		go func(pi peer.AddrInfo) {
			ctx, cancel := context.WithTimeout(n.ctx, 30*time.Second)
			defer cancel()
			if err := n.host.Connect(ctx, pi); err != nil {
				n.log.Warn("failed to connect to bootstrap peer", "peer", shortID(pi.ID), "error", err)
			}
		}(*pi)
	}

	if n.routingDisc != nil {
		go dutil.Advertise(n.ctx, n.routingDisc, discoveryNamespace)
		go n.discoverPeers()
	}

	return nil
}

func (n *Node) discoverPeers() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			peers, err := dutil.FindPeers(n.ctx, n.routingDisc, discoveryNamespace)
			if err != nil {
				continue
			}
			for _, pi := range peers {
				if pi.ID == n.host.ID() || n.host.Network().Connectedness(pi.ID) == network.Connected {
					continue
				}
				go func(pi peer.AddrInfo) {
					ctx, cancel := context.WithTimeout(n.ctx, 10*time.Second)
					defer cancel()
					n.host.Connect(ctx, pi)
				}(pi)
			}
		}
	}
}

// Stop shuts the node down once, idempotently.
func (n *Node) Stop() error {
	var err error
	n.stopOnce.Do(func() {
		n.cancel()
		if n.peerMonitor != nil {
			n.peerMonitor.Stop()
		}
		if n.Transport != nil {
			n.Transport.Close()
		}
		if n.rpcServer != nil {
			n.rpcServer.Close()
		}
		if n.mdnsService != nil {
			n.mdnsService.Close()
		}
		if n.dht != nil {
			n.dht.Close()
		}
		if hostErr := n.host.Close(); hostErr != nil {
			err = hostErr
		}
		if storeErr := n.Store.Close(); storeErr != nil && err == nil {
			err = storeErr
		}
	})
	return err
}

func (n *Node) ID() peer.ID                  { return n.host.ID() }
func (n *Node) Addrs() []multiaddr.Multiaddr { return n.host.Addrs() }
func (n *Node) Host() host.Host              { return n.host }
func (n *Node) Peers() []peer.ID             { return n.host.Network().Peers() }
func (n *Node) PeerCount() int               { return len(n.host.Network().Peers()) }
func (n *Node) Uptime() time.Duration        { return time.Since(n.startTime) }
func (n *Node) Config() *nodeconfig.Config   { return n.config }

// missingSource extracts the source hash a GapSource result is waiting
// on; only receive and open blocks carry one.
func missingSource(blk block.Block) block.Hash {
	type hasSource interface{ Source() block.Hash }
	if s, ok := blk.(hasSource); ok {
		return s.Source()
	}
	return blk.Root()
}

func shortID(p peer.ID) string {
	s := p.String()
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
