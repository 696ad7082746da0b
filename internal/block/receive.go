package block

// ReceiveBlock credits an account from a matching pending send.
// Wire layout: previous(32) | source(32) | signature(64) | work(8)
type ReceiveBlock struct {
	previous  Hash
	source    Hash
	signature Signature
	work      uint64
	account   Account
}

func NewReceiveBlock(account Account, previous, source Hash) *ReceiveBlock {
	return &ReceiveBlock{account: account, previous: previous, source: source}
}

func (b *ReceiveBlock) Kind() Kind               { return KindReceive }
func (b *ReceiveBlock) Account() Account         { return b.account }
func (b *ReceiveBlock) SetAccount(a Account)     { b.account = a }
func (b *ReceiveBlock) Root() Hash               { return b.previous }
func (b *ReceiveBlock) Previous() Hash           { return b.previous }
func (b *ReceiveBlock) Source() Hash             { return b.source }
func (b *ReceiveBlock) Signature() Signature     { return b.signature }
func (b *ReceiveBlock) SetSignature(s Signature) { b.signature = s }
func (b *ReceiveBlock) Work() uint64             { return b.work }
func (b *ReceiveBlock) SetWork(w uint64)         { b.work = w }

func (b *ReceiveBlock) Hash() Hash {
	return hashFields(b.previous[:], b.source[:])
}

const receivePayloadSize = HashSize + HashSize + SignatureSize + WorkSize

func (b *ReceiveBlock) MarshalBinary() ([]byte, error) {
	out := make([]byte, 1+receivePayloadSize)
	out[0] = byte(KindReceive)
	off := 1
	copy(out[off:], b.previous[:])
	off += HashSize
	copy(out[off:], b.source[:])
	off += HashSize
	copy(out[off:], b.signature[:])
	off += SignatureSize
	putUint64(out[off:], b.work)
	return out, nil
}

func decodeReceive(data []byte) (*ReceiveBlock, error) {
	if len(data) < receivePayloadSize {
		return nil, ErrShortBuffer
	}
	b := &ReceiveBlock{}
	off := 0
	copy(b.previous[:], data[off:])
	off += HashSize
	copy(b.source[:], data[off:])
	off += HashSize
	copy(b.signature[:], data[off:])
	off += SignatureSize
	b.work = getUint64(data[off:])
	return b, nil
}
