// Package block defines the four on-chain block kinds, their canonical
// binary encoding, and content-addressed hashing.
package block

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Sizes of the fixed-width fields shared by every block kind.
const (
	HashSize      = 32
	AccountSize   = 32
	SignatureSize = 64
	BalanceSize   = 16
	WorkSize      = 8
)

// Hash is a 256-bit content digest (block hash, account root, block root).
type Hash [HashSize]byte

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) String() string {
	return fmt.Sprintf("%x", [HashSize]byte(h))
}

// Account is a 256-bit public key identifying an account.
type Account [AccountSize]byte

func (a Account) String() string {
	return fmt.Sprintf("%x", [AccountSize]byte(a))
}

// Signature is the 64-byte ed25519 signature over a block's canonical
// hash preimage.
type Signature [SignatureSize]byte

// Balance is a 128-bit unsigned quantity stored big-endian on the wire.
type Balance [BalanceSize]byte

// Kind identifies which of the four block variants a Block is.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindSend
	KindReceive
	KindOpen
	KindChange
)

func (k Kind) String() string {
	switch k {
	case KindSend:
		return "send"
	case KindReceive:
		return "receive"
	case KindOpen:
		return "open"
	case KindChange:
		return "change"
	default:
		return "invalid"
	}
}

var ErrShortBuffer = errors.New("block: buffer too short")
var ErrUnknownKind = errors.New("block: unknown kind tag")

// Block is the common contract for all four variants. Hash and Root are
// pure functions of the fields set at construction; nothing here touches
// the ledger or the key store.
type Block interface {
	Kind() Kind
	Account() Account
	Root() Hash
	Hash() Hash
	Signature() Signature
	SetSignature(Signature)
	Work() uint64
	SetWork(uint64)

	// MarshalBinary encodes the block in the canonical wire format
	// (including the leading kind tag and trailing signature/work).
	MarshalBinary() ([]byte, error)
}

// Decode reads a kind tag followed by a canonical payload and returns the
// concrete Block. The kind tag is a local framing convenience (the
// self-describing byte prepended ahead of the §6 wire payloads so blocks
// are identifiable in the unchecked/blocks tables); it is not hashed.
func Decode(data []byte) (Block, error) {
	if len(data) < 1 {
		return nil, ErrShortBuffer
	}
	switch Kind(data[0]) {
	case KindSend:
		return decodeSend(data[1:])
	case KindReceive:
		return decodeReceive(data[1:])
	case KindOpen:
		return decodeOpen(data[1:])
	case KindChange:
		return decodeChange(data[1:])
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, data[0])
	}
}

func hashFields(parts ...[]byte) Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err) // blake2b.New256 only fails for bad key length, and we pass none
	}
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

func putUint64(dst []byte, v uint64) {
	binary.BigEndian.PutUint64(dst, v)
}

func getUint64(src []byte) uint64 {
	return binary.BigEndian.Uint64(src)
}
