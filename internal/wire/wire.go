// Package wire defines the message contract external to the ledger
// core (spec.md §6): an opaque peer endpoint, a fire-and-forget
// transport, and the three required consensus messages plus the
// bootstrap pull messages of §4.G. The ledger, election, vote, and
// bootstrap packages depend only on this contract, never on a concrete
// transport — p2pwire is the one reference implementation.
package wire

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/Roconda/raiblocks/internal/block"
	"github.com/Roconda/raiblocks/internal/vote"
)

// Endpoint is an opaque peer handle; the concrete transport decides
// what it encodes (p2pwire uses the libp2p peer ID string).
type Endpoint string

// Kind tags a Message for the wire so Decode can dispatch without
// out-of-band type information, the same self-describing-byte
// convention block.Decode uses.
type Kind byte

const (
	KindPublish Kind = iota + 1
	KindConfirmReq
	KindConfirmAck
	KindFrontierReq
	KindFrontierResp
	KindBulkPullReq
	KindBulkPullResp
)

// Message is any value this package's Transport can send or receive.
type Message interface {
	Kind() Kind
	MarshalBinary() ([]byte, error)
}

// Transport is the external contract of spec.md §6: "an endpoint type
// for peers, a send function (fire and forget), and a receive callback
// delivering parsed messages." Broadcast and Peers are this module's
// additions, needed by the vote processor's rebroadcast and by
// bootstrap's peer selection — both already implied by spec.md's
// "republishes results" and "pick one or more peers".
type Transport interface {
	Send(ctx context.Context, ep Endpoint, msg Message) error
	Broadcast(ctx context.Context, msg Message) error
	OnReceive(fn func(Endpoint, Message))
	Peers() []Endpoint
}

// Publish announces a newly processed block (spec.md §6: "publish(block)").
type Publish struct{ Block block.Block }

func (Publish) Kind() Kind { return KindPublish }

func (m Publish) MarshalBinary() ([]byte, error) {
	return encodeBlockMessage(KindPublish, m.Block)
}

// ConfirmReq asks peers to vote on a block (spec.md §6: "confirm_req(block)").
type ConfirmReq struct{ Block block.Block }

func (ConfirmReq) Kind() Kind { return KindConfirmReq }

func (m ConfirmReq) MarshalBinary() ([]byte, error) {
	return encodeBlockMessage(KindConfirmReq, m.Block)
}

func encodeBlockMessage(kind Kind, blk block.Block) ([]byte, error) {
	body, err := blk.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(kind)}, body...), nil
}

// ConfirmAck carries a representative's vote for a block (spec.md §6:
// "confirm_ack(vote, block)").
type ConfirmAck struct {
	Vote  vote.Vote
	Block block.Block
}

func (ConfirmAck) Kind() Kind { return KindConfirmAck }

func (m ConfirmAck) MarshalBinary() ([]byte, error) {
	blockBytes, err := m.Block.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 1, 1+block.AccountSize+8+block.HashSize+block.SignatureSize+len(blockBytes))
	out[0] = byte(KindConfirmAck)
	out = append(out, m.Vote.Representative[:]...)
	out = appendUint64(out, m.Vote.Sequence)
	out = append(out, m.Vote.Candidate[:]...)
	out = append(out, m.Vote.Signature[:]...)
	out = append(out, blockBytes...)
	return out, nil
}

// FrontierReq asks a peer for its per-account frontier table (§4.G).
type FrontierReq struct{}

func (FrontierReq) Kind() Kind                    { return KindFrontierReq }
func (FrontierReq) MarshalBinary() ([]byte, error) { return []byte{byte(KindFrontierReq)}, nil }

// FrontierResp answers FrontierReq.
type FrontierResp struct {
	Frontiers map[block.Account]block.Hash
}

func (FrontierResp) Kind() Kind { return KindFrontierResp }

func (m FrontierResp) MarshalBinary() ([]byte, error) {
	out := make([]byte, 1, 5+len(m.Frontiers)*(block.AccountSize+block.HashSize))
	out[0] = byte(KindFrontierResp)
	out = appendUint32(out, uint32(len(m.Frontiers)))
	for account, frontier := range m.Frontiers {
		out = append(out, account[:]...)
		out = append(out, frontier[:]...)
	}
	return out, nil
}

// BulkPullReq requests the block range needed to walk account from
// from up to to (§4.G).
type BulkPullReq struct {
	Account    block.Account
	From, To   block.Hash
}

func (BulkPullReq) Kind() Kind { return KindBulkPullReq }

func (m BulkPullReq) MarshalBinary() ([]byte, error) {
	out := make([]byte, 1, 1+block.AccountSize+2*block.HashSize)
	out[0] = byte(KindBulkPullReq)
	out = append(out, m.Account[:]...)
	out = append(out, m.From[:]...)
	out = append(out, m.To[:]...)
	return out, nil
}

// BulkPullResp answers BulkPullReq, oldest block first.
type BulkPullResp struct {
	Blocks []block.Block
}

func (BulkPullResp) Kind() Kind { return KindBulkPullResp }

func (m BulkPullResp) MarshalBinary() ([]byte, error) {
	out := []byte{byte(KindBulkPullResp)}
	out = appendUint32(out, uint32(len(m.Blocks)))
	for _, b := range m.Blocks {
		encoded, err := b.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out = appendUint32(out, uint32(len(encoded)))
		out = append(out, encoded...)
	}
	return out, nil
}

func appendUint32(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

func appendUint64(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// Decode reads a kind tag and dispatches to the matching message type.
func Decode(data []byte) (Message, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("wire: empty message")
	}
	kind := Kind(data[0])
	body := data[1:]

	switch kind {
	case KindPublish:
		blk, err := block.Decode(body)
		if err != nil {
			return nil, err
		}
		return Publish{Block: blk}, nil
	case KindConfirmReq:
		blk, err := block.Decode(body)
		if err != nil {
			return nil, err
		}
		return ConfirmReq{Block: blk}, nil
	case KindConfirmAck:
		return decodeConfirmAck(body)
	case KindFrontierReq:
		return FrontierReq{}, nil
	case KindFrontierResp:
		return decodeFrontierResp(body)
	case KindBulkPullReq:
		return decodeBulkPullReq(body)
	case KindBulkPullResp:
		return decodeBulkPullResp(body)
	default:
		return nil, fmt.Errorf("wire: unknown message kind %d", kind)
	}
}

func decodeConfirmAck(body []byte) (Message, error) {
	want := block.AccountSize + 8 + block.HashSize + block.SignatureSize
	if len(body) < want {
		return nil, fmt.Errorf("wire: confirm_ack too short")
	}
	var v vote.Vote
	off := 0
	copy(v.Representative[:], body[off:])
	off += block.AccountSize
	v.Sequence = binary.BigEndian.Uint64(body[off:])
	off += 8
	copy(v.Candidate[:], body[off:])
	off += block.HashSize
	copy(v.Signature[:], body[off:])
	off += block.SignatureSize

	blk, err := block.Decode(body[off:])
	if err != nil {
		return nil, err
	}
	return ConfirmAck{Vote: v, Block: blk}, nil
}

func decodeFrontierResp(body []byte) (Message, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("wire: frontier_resp too short")
	}
	count := binary.BigEndian.Uint32(body[:4])
	off := 4
	out := make(map[block.Account]block.Hash, count)
	entry := block.AccountSize + block.HashSize
	for i := uint32(0); i < count; i++ {
		if len(body) < off+entry {
			return nil, fmt.Errorf("wire: frontier_resp truncated")
		}
		var account block.Account
		var frontier block.Hash
		copy(account[:], body[off:])
		off += block.AccountSize
		copy(frontier[:], body[off:])
		off += block.HashSize
		out[account] = frontier
	}
	return FrontierResp{Frontiers: out}, nil
}

func decodeBulkPullReq(body []byte) (Message, error) {
	want := block.AccountSize + 2*block.HashSize
	if len(body) < want {
		return nil, fmt.Errorf("wire: bulk_pull_req too short")
	}
	var m BulkPullReq
	off := 0
	copy(m.Account[:], body[off:])
	off += block.AccountSize
	copy(m.From[:], body[off:])
	off += block.HashSize
	copy(m.To[:], body[off:])
	return m, nil
}

func decodeBulkPullResp(body []byte) (Message, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("wire: bulk_pull_resp too short")
	}
	count := binary.BigEndian.Uint32(body[:4])
	off := 4
	blocks := make([]block.Block, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(body) < off+4 {
			return nil, fmt.Errorf("wire: bulk_pull_resp truncated")
		}
		size := binary.BigEndian.Uint32(body[off:])
		off += 4
		if len(body) < off+int(size) {
			return nil, fmt.Errorf("wire: bulk_pull_resp truncated block")
		}
		blk, err := block.Decode(body[off : off+int(size)])
		if err != nil {
			return nil, err
		}
		off += int(size)
		blocks = append(blocks, blk)
	}
	return BulkPullResp{Blocks: blocks}, nil
}
