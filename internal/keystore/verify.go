package keystore

import (
	"crypto/ed25519"

	"github.com/Roconda/raiblocks/internal/block"
)

// VerifySignature checks sig against account treated as a raw ed25519
// public key, the half of ledger.Verifier this package is responsible
// for (pow.Worker supplies the other half, VerifyWork).
func VerifySignature(account block.Account, hash block.Hash, sig block.Signature) bool {
	return VerifyMessage(account, hash[:], sig)
}

// VerifyMessage is VerifySignature generalized to an arbitrary-length
// message, needed by the vote processor: a vote's signed payload
// (candidate hash plus sequence number, vote.Vote.Message) is longer
// than a block hash.
func VerifyMessage(account block.Account, message []byte, sig block.Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(account[:]), message, sig[:])
}
