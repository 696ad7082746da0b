package block

// OpenBlock creates a new account chain from a pending send.
// Wire layout: source(32) | representative(32) | account(32) | signature(64) | work(8)
type OpenBlock struct {
	source         Hash
	representative Account
	account        Account
	signature      Signature
	work           uint64
}

func NewOpenBlock(source Hash, representative, account Account) *OpenBlock {
	return &OpenBlock{source: source, representative: representative, account: account}
}

func (b *OpenBlock) Kind() Kind                   { return KindOpen }
func (b *OpenBlock) Account() Account             { return b.account }
func (b *OpenBlock) Root() Hash                   { return Hash(b.account) }
func (b *OpenBlock) Source() Hash                 { return b.source }
func (b *OpenBlock) Representative() Account      { return b.representative }
func (b *OpenBlock) Signature() Signature         { return b.signature }
func (b *OpenBlock) SetSignature(s Signature)     { b.signature = s }
func (b *OpenBlock) Work() uint64                 { return b.work }
func (b *OpenBlock) SetWork(w uint64)             { b.work = w }

func (b *OpenBlock) Hash() Hash {
	return hashFields(b.source[:], b.representative[:], b.account[:])
}

const openPayloadSize = HashSize + AccountSize + AccountSize + SignatureSize + WorkSize

func (b *OpenBlock) MarshalBinary() ([]byte, error) {
	out := make([]byte, 1+openPayloadSize)
	out[0] = byte(KindOpen)
	off := 1
	copy(out[off:], b.source[:])
	off += HashSize
	copy(out[off:], b.representative[:])
	off += AccountSize
	copy(out[off:], b.account[:])
	off += AccountSize
	copy(out[off:], b.signature[:])
	off += SignatureSize
	putUint64(out[off:], b.work)
	return out, nil
}

func decodeOpen(data []byte) (*OpenBlock, error) {
	if len(data) < openPayloadSize {
		return nil, ErrShortBuffer
	}
	b := &OpenBlock{}
	off := 0
	copy(b.source[:], data[off:])
	off += HashSize
	copy(b.representative[:], data[off:])
	off += AccountSize
	copy(b.account[:], data[off:])
	off += AccountSize
	copy(b.signature[:], data[off:])
	off += SignatureSize
	b.work = getUint64(data[off:])
	return b, nil
}
