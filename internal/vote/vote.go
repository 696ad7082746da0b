// Package vote implements the vote processor of spec.md §4.F: accepting
// representative votes into the matching election's tally, and
// synthesising this node's own votes when it holds a voting key.
package vote

import (
	"encoding/binary"

	"github.com/Roconda/raiblocks/internal/block"
)

// Vote is one representative's ballot for a root's election: it names
// the candidate block by hash, not by full contents, since the
// candidate was already delivered as a block and is looked up in the
// election table.
type Vote struct {
	Representative block.Account
	Sequence       uint64
	Candidate      block.Hash
	Signature      block.Signature
}

// Message returns the canonical bytes a representative signs to cast
// this vote: the candidate hash followed by the big-endian sequence
// number, so a replayed vote at a stale sequence can never be
// re-signed into validity by reusing an old signature.
func (v Vote) Message() []byte {
	return encodeVoteMessage(v.Candidate, v.Sequence)
}

func encodeVoteMessage(candidate block.Hash, sequence uint64) []byte {
	out := make([]byte, block.HashSize+8)
	copy(out, candidate[:])
	binary.BigEndian.PutUint64(out[block.HashSize:], sequence)
	return out
}

// SignatureVerifier checks a vote's signature against the claimed
// representative, mirroring the split between "verify" (cheap, on the
// hot path) and "sign" (the key-store's concern, §4.K) that
// ledger.Verifier already uses for blocks.
type SignatureVerifier interface {
	VerifyVoteSignature(rep block.Account, candidate block.Hash, sequence uint64, sig block.Signature) bool
}
