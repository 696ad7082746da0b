package block

// SendBlock debits an account and creates a pending entry for destination.
// Wire layout: previous(32) | destination(32) | balance(16) | signature(64) | work(8)
type SendBlock struct {
	previous    Hash
	destination Account
	balance     Balance
	signature   Signature
	work        uint64
	account     Account // not on the wire; carried alongside for Account()
}

// NewSendBlock constructs an unsigned, unworked send block. Account is
// supplied out of band since the wire format derives it from chain
// context (the account owning `previous`), not from the block itself.
func NewSendBlock(account Account, previous Hash, destination Account, balanceAfter Balance) *SendBlock {
	return &SendBlock{account: account, previous: previous, destination: destination, balance: balanceAfter}
}

func (b *SendBlock) Kind() Kind               { return KindSend }
func (b *SendBlock) Account() Account         { return b.account }
func (b *SendBlock) SetAccount(a Account)     { b.account = a }
func (b *SendBlock) Root() Hash               { return b.previous }
func (b *SendBlock) Previous() Hash           { return b.previous }
func (b *SendBlock) Destination() Account     { return b.destination }
func (b *SendBlock) BalanceAfter() Balance    { return b.balance }
func (b *SendBlock) Signature() Signature     { return b.signature }
func (b *SendBlock) SetSignature(s Signature) { b.signature = s }
func (b *SendBlock) Work() uint64             { return b.work }
func (b *SendBlock) SetWork(w uint64)         { b.work = w }

func (b *SendBlock) Hash() Hash {
	return hashFields(b.previous[:], b.destination[:], b.balance[:])
}

const sendPayloadSize = HashSize + AccountSize + BalanceSize + SignatureSize + WorkSize

func (b *SendBlock) MarshalBinary() ([]byte, error) {
	out := make([]byte, 1+sendPayloadSize)
	out[0] = byte(KindSend)
	off := 1
	copy(out[off:], b.previous[:])
	off += HashSize
	copy(out[off:], b.destination[:])
	off += AccountSize
	copy(out[off:], b.balance[:])
	off += BalanceSize
	copy(out[off:], b.signature[:])
	off += SignatureSize
	putUint64(out[off:], b.work)
	return out, nil
}

func decodeSend(data []byte) (*SendBlock, error) {
	if len(data) < sendPayloadSize {
		return nil, ErrShortBuffer
	}
	b := &SendBlock{}
	off := 0
	copy(b.previous[:], data[off:])
	off += HashSize
	copy(b.destination[:], data[off:])
	off += AccountSize
	copy(b.balance[:], data[off:])
	off += BalanceSize
	copy(b.signature[:], data[off:])
	off += SignatureSize
	b.work = getUint64(data[off:])
	return b, nil
}
