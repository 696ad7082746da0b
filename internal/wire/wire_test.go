package wire

import (
	"testing"

	"github.com/Roconda/raiblocks/internal/block"
	"github.com/Roconda/raiblocks/internal/vote"
)

func sampleSend() *block.SendBlock {
	var destination block.Account
	destination[0] = 0xAA
	var balance block.Balance
	balance[0] = 0x01
	var previous block.Hash
	previous[0] = 0x02
	var account block.Account
	account[0] = 0x03
	return block.NewSendBlock(account, previous, destination, balance)
}

func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()
	data, err := msg.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return decoded
}

func TestPublishRoundTrip(t *testing.T) {
	blk := sampleSend()
	decoded := roundTrip(t, Publish{Block: blk})
	got, ok := decoded.(Publish)
	if !ok {
		t.Fatalf("Decode() returned %T, want Publish", decoded)
	}
	if got.Block.Hash() != blk.Hash() {
		t.Errorf("Decode() block hash = %x, want %x", got.Block.Hash(), blk.Hash())
	}
}

func TestConfirmReqRoundTrip(t *testing.T) {
	blk := sampleSend()
	decoded := roundTrip(t, ConfirmReq{Block: blk})
	got, ok := decoded.(ConfirmReq)
	if !ok {
		t.Fatalf("Decode() returned %T, want ConfirmReq", decoded)
	}
	if got.Block.Hash() != blk.Hash() {
		t.Errorf("Decode() block hash mismatch")
	}
}

func TestConfirmAckRoundTrip(t *testing.T) {
	blk := sampleSend()
	v := vote.Vote{Sequence: 7, Candidate: blk.Hash()}
	v.Representative[0] = 0x09
	v.Signature[0] = 0x10

	decoded := roundTrip(t, ConfirmAck{Vote: v, Block: blk})
	got, ok := decoded.(ConfirmAck)
	if !ok {
		t.Fatalf("Decode() returned %T, want ConfirmAck", decoded)
	}
	if got.Vote != v {
		t.Errorf("Decode() vote = %+v, want %+v", got.Vote, v)
	}
	if got.Block.Hash() != blk.Hash() {
		t.Errorf("Decode() block hash mismatch")
	}
}

func TestFrontierReqRoundTrip(t *testing.T) {
	decoded := roundTrip(t, FrontierReq{})
	if _, ok := decoded.(FrontierReq); !ok {
		t.Fatalf("Decode() returned %T, want FrontierReq", decoded)
	}
}

func TestFrontierRespRoundTrip(t *testing.T) {
	var a1, a2 block.Account
	a1[0], a2[0] = 1, 2
	var h1, h2 block.Hash
	h1[0], h2[0] = 0x11, 0x22

	m := FrontierResp{Frontiers: map[block.Account]block.Hash{a1: h1, a2: h2}}
	decoded := roundTrip(t, m)
	got, ok := decoded.(FrontierResp)
	if !ok {
		t.Fatalf("Decode() returned %T, want FrontierResp", decoded)
	}
	if len(got.Frontiers) != 2 || got.Frontiers[a1] != h1 || got.Frontiers[a2] != h2 {
		t.Errorf("Decode() frontiers = %+v, want %+v", got.Frontiers, m.Frontiers)
	}
}

func TestBulkPullReqRoundTrip(t *testing.T) {
	m := BulkPullReq{}
	m.Account[0] = 5
	m.From[0] = 6
	m.To[0] = 7

	decoded := roundTrip(t, m)
	got, ok := decoded.(BulkPullReq)
	if !ok {
		t.Fatalf("Decode() returned %T, want BulkPullReq", decoded)
	}
	if got != m {
		t.Errorf("Decode() = %+v, want %+v", got, m)
	}
}

func TestBulkPullRespRoundTrip(t *testing.T) {
	blk1 := sampleSend()
	blk2 := sampleSend()
	blk2.SetWork(99)

	m := BulkPullResp{Blocks: []block.Block{blk1, blk2}}
	decoded := roundTrip(t, m)
	got, ok := decoded.(BulkPullResp)
	if !ok {
		t.Fatalf("Decode() returned %T, want BulkPullResp", decoded)
	}
	if len(got.Blocks) != 2 {
		t.Fatalf("Decode() returned %d blocks, want 2", len(got.Blocks))
	}
	if got.Blocks[0].Hash() != blk1.Hash() || got.Blocks[1].Hash() != blk2.Hash() {
		t.Errorf("Decode() block hashes mismatch")
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	if _, err := Decode([]byte{0xFF}); err == nil {
		t.Errorf("Decode() with unknown kind byte accepted, want error")
	}
}

func TestDecodeRejectsEmpty(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Errorf("Decode(nil) accepted, want error")
	}
}
