package p2pwire

import (
	"bufio"
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/Roconda/raiblocks/internal/block"
	"github.com/Roconda/raiblocks/internal/store"
	"github.com/Roconda/raiblocks/internal/wire"
	"github.com/Roconda/raiblocks/pkg/logging"
)

// RPCProtocol carries the bootstrap request/response exchange
// (frontier_req/resp, bulk_pull_req/resp) on its own protocol so a
// reply can be written back on the same stream, unlike the
// fire-and-forget Transport.Send/OnReceive pair.
const RPCProtocol protocol.ID = "/raiblocks/bootstrap/1.0.0"

// Client implements bootstrap.FrontierSource and bootstrap.BlockPuller
// by round-tripping a request over a fresh RPCProtocol stream.
type Client struct {
	host host.Host
}

func NewClient(h host.Host) *Client {
	return &Client{host: h}
}

func (c *Client) roundTrip(ctx context.Context, peerStr string, req wire.Message) (wire.Message, error) {
	pid, err := peer.Decode(peerStr)
	if err != nil {
		return nil, fmt.Errorf("p2pwire: decode peer %q: %w", peerStr, err)
	}
	s, err := c.host.NewStream(ctx, pid, RPCProtocol)
	if err != nil {
		return nil, fmt.Errorf("p2pwire: open rpc stream to %s: %w", peerStr, err)
	}
	defer s.Close()

	data, err := req.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := writeLengthPrefixed(s, data); err != nil {
		return nil, fmt.Errorf("p2pwire: write rpc request: %w", err)
	}

	respData, err := readLengthPrefixed(bufio.NewReader(s))
	if err != nil {
		return nil, fmt.Errorf("p2pwire: read rpc response: %w", err)
	}
	return wire.Decode(respData)
}

// Frontiers implements bootstrap.FrontierSource.
func (c *Client) Frontiers(ctx context.Context, peerStr string) (map[block.Account]block.Hash, error) {
	resp, err := c.roundTrip(ctx, peerStr, wire.FrontierReq{})
	if err != nil {
		return nil, err
	}
	fr, ok := resp.(wire.FrontierResp)
	if !ok {
		return nil, fmt.Errorf("p2pwire: unexpected response %T to frontier_req", resp)
	}
	return fr.Frontiers, nil
}

// PullRange implements bootstrap.BlockPuller.
func (c *Client) PullRange(ctx context.Context, peerStr string, account block.Account, from, to block.Hash) ([]block.Block, error) {
	req := wire.BulkPullReq{Account: account, From: from, To: to}
	resp, err := c.roundTrip(ctx, peerStr, req)
	if err != nil {
		return nil, err
	}
	br, ok := resp.(wire.BulkPullResp)
	if !ok {
		return nil, fmt.Errorf("p2pwire: unexpected response %T to bulk_pull_req", resp)
	}
	return br.Blocks, nil
}

// Server answers the RPCProtocol requests a peer running Client sends,
// reading directly from the local store (§4.G: "peers expose a
// frontier table and will serve bulk_pull for any account").
type Server struct {
	host  host.Host
	store *store.Store
	log   *logging.Logger
}

func NewServer(h host.Host, s *store.Store) *Server {
	srv := &Server{host: h, store: s, log: logging.GetDefault().Component("p2pwire-rpc")}
	h.SetStreamHandler(RPCProtocol, srv.handleStream)
	return srv
}

func (srv *Server) Close() {
	srv.host.RemoveStreamHandler(RPCProtocol)
}

func (srv *Server) handleStream(s network.Stream) {
	defer s.Close()
	remote := s.Conn().RemotePeer()

	data, err := readLengthPrefixed(bufio.NewReader(s))
	if err != nil {
		srv.log.Debug("failed to read rpc request", "peer", remote, "error", err)
		return
	}
	req, err := wire.Decode(data)
	if err != nil {
		srv.log.Warn("dropped malformed rpc request", "peer", remote, "error", err)
		return
	}

	var resp wire.Message
	switch m := req.(type) {
	case wire.FrontierReq:
		resp, err = srv.handleFrontierReq()
	case wire.BulkPullReq:
		resp, err = srv.handleBulkPullReq(m)
	default:
		srv.log.Warn("unexpected rpc request kind", "peer", remote, "kind", req.Kind())
		return
	}
	if err != nil {
		srv.log.Warn("failed to build rpc response", "peer", remote, "error", err)
		return
	}

	respData, err := resp.MarshalBinary()
	if err != nil {
		srv.log.Warn("failed to marshal rpc response", "peer", remote, "error", err)
		return
	}
	if err := writeLengthPrefixed(s, respData); err != nil {
		srv.log.Debug("failed to write rpc response", "peer", remote, "error", err)
	}
}

func (srv *Server) handleFrontierReq() (wire.Message, error) {
	var frontiers map[block.Account]block.Hash
	err := srv.store.View(func(txn store.Txn) error {
		m, err := txn.ListFrontiers()
		if err != nil {
			return err
		}
		frontiers = m
		return nil
	})
	return wire.FrontierResp{Frontiers: frontiers}, err
}

// handleBulkPullReq walks req.Account's chain backward from its local
// frontier (the caller's "to", already reconciled against our own
// ledger) down to req.From, then reverses so the response is
// oldest-first — the order bootstrap.Session.applyChain requires.
func (srv *Server) handleBulkPullReq(req wire.BulkPullReq) (wire.Message, error) {
	var chain []block.Block
	err := srv.store.View(func(txn store.Txn) error {
		current := req.To
		for {
			rec, err := txn.GetBlock(current)
			if err != nil {
				return err
			}
			chain = append(chain, rec.Blk)
			if current == req.From {
				break
			}
			prev, ok := previousOf(rec.Blk)
			if !ok {
				break
			}
			current = prev
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return wire.BulkPullResp{Blocks: chain}, nil
}

// previousOf returns the previous-block hash for chain-linked block
// kinds; an open block has none and ok is false.
func previousOf(blk block.Block) (block.Hash, bool) {
	type hasPrevious interface{ Previous() block.Hash }
	if p, ok := blk.(hasPrevious); ok {
		return p.Previous(), true
	}
	return block.Hash{}, false
}
