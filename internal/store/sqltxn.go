package store

import (
	"database/sql"
	"math/big"
	"time"

	"github.com/Roconda/raiblocks/internal/block"
)

// sqlTxn implements Txn against a single *sql.Tx. Reads inside a write
// transaction observe that transaction's own uncommitted writes, since
// both go through the same *sql.Tx (spec.md §4.B).
type sqlTxn struct {
	tx *sql.Tx
}

func bigToText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func textToBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

func scanBlockRow(row scannable) (*BlockRecord, error) {
	var encoded, account []byte
	var height int64
	var amountText string
	var prevRep []byte
	var ts int64
	err := row.Scan(&encoded, &account, &height, &amountText, &prevRep, &ts)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	blk, err := block.Decode(encoded)
	if err != nil {
		return nil, err
	}
	var acc, prevRepAcc block.Account
	copy(acc[:], account)
	copy(prevRepAcc[:], prevRep)
	return &BlockRecord{
		Blk:                blk,
		Account:            acc,
		Height:             uint64(height),
		Amount:             textToBig(amountText),
		PrevRepresentative: prevRepAcc,
		Timestamp:          time.Unix(ts, 0),
	}, nil
}

func (t *sqlTxn) GetBlock(h block.Hash) (*BlockRecord, error) {
	row := t.tx.QueryRow(
		`SELECT encoded, account, height, amount, prev_representative, local_timestamp FROM blocks WHERE hash = ?`, h[:],
	)
	return scanBlockRow(row)
}

func (t *sqlTxn) GetBlockByRoot(root block.Hash) (*BlockRecord, error) {
	row := t.tx.QueryRow(
		`SELECT encoded, account, height, amount, prev_representative, local_timestamp FROM blocks WHERE root = ?`, root[:],
	)
	return scanBlockRow(row)
}

func (t *sqlTxn) PutBlock(rec *BlockRecord) error {
	encoded, err := rec.Blk.MarshalBinary()
	if err != nil {
		return err
	}
	h := rec.Blk.Hash()
	root := rec.Blk.Root()
	_, err = t.tx.Exec(
		`INSERT INTO blocks (hash, kind, root, encoded, account, height, amount, prev_representative, local_timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET encoded = excluded.encoded, height = excluded.height,
		   amount = excluded.amount, prev_representative = excluded.prev_representative,
		   local_timestamp = excluded.local_timestamp`,
		h[:], byte(rec.Blk.Kind()), root[:], encoded, rec.Account[:], int64(rec.Height), bigToText(rec.Amount),
		rec.PrevRepresentative[:], rec.Timestamp.Unix(),
	)
	return err
}

func (t *sqlTxn) DeleteBlock(h block.Hash) error {
	_, err := t.tx.Exec(`DELETE FROM blocks WHERE hash = ?`, h[:])
	return err
}

func (t *sqlTxn) GetAccount(a block.Account) (*AccountRecord, error) {
	var frontier, open, rep []byte
	var balanceText string
	var blockCount int64
	var modified int64
	err := t.tx.QueryRow(
		`SELECT frontier, open_block, balance, representative, block_count, modified_at FROM accounts WHERE account = ?`,
		a[:],
	).Scan(&frontier, &open, &balanceText, &rep, &blockCount, &modified)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := &AccountRecord{
		Account:    a,
		Balance:    textToBig(balanceText),
		BlockCount: uint64(blockCount),
		ModifiedAt: time.Unix(modified, 0),
	}
	copy(rec.Frontier[:], frontier)
	copy(rec.OpenBlock[:], open)
	copy(rec.Representative[:], rep)
	return rec, nil
}

func (t *sqlTxn) PutAccount(rec *AccountRecord) error {
	_, err := t.tx.Exec(
		`INSERT INTO accounts (account, frontier, open_block, balance, representative, block_count, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(account) DO UPDATE SET frontier = excluded.frontier, balance = excluded.balance,
		   representative = excluded.representative, block_count = excluded.block_count,
		   modified_at = excluded.modified_at`,
		rec.Account[:], rec.Frontier[:], rec.OpenBlock[:], bigToText(rec.Balance), rec.Representative[:],
		int64(rec.BlockCount), rec.ModifiedAt.Unix(),
	)
	return err
}

func (t *sqlTxn) DeleteAccount(a block.Account) error {
	_, err := t.tx.Exec(`DELETE FROM accounts WHERE account = ?`, a[:])
	return err
}

func (t *sqlTxn) GetPending(dest block.Account, source block.Hash) (*PendingEntry, error) {
	var sender []byte
	var amountText string
	err := t.tx.QueryRow(
		`SELECT sender, amount FROM pending WHERE destination = ? AND source_hash = ?`,
		dest[:], source[:],
	).Scan(&sender, &amountText)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p := &PendingEntry{Destination: dest, SourceHash: source, Amount: textToBig(amountText)}
	copy(p.Sender[:], sender)
	return p, nil
}

func (t *sqlTxn) PutPending(p *PendingEntry) error {
	_, err := t.tx.Exec(
		`INSERT INTO pending (destination, source_hash, sender, amount) VALUES (?, ?, ?, ?)
		 ON CONFLICT(destination, source_hash) DO UPDATE SET sender = excluded.sender, amount = excluded.amount`,
		p.Destination[:], p.SourceHash[:], p.Sender[:], bigToText(p.Amount),
	)
	return err
}

func (t *sqlTxn) DeletePending(dest block.Account, source block.Hash) error {
	_, err := t.tx.Exec(`DELETE FROM pending WHERE destination = ? AND source_hash = ?`, dest[:], source[:])
	return err
}

func (t *sqlTxn) GetWeight(rep block.Account) (*big.Int, error) {
	var weightText string
	err := t.tx.QueryRow(`SELECT weight FROM representation WHERE account = ?`, rep[:]).Scan(&weightText)
	if err == sql.ErrNoRows {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return textToBig(weightText), nil
}

// AddWeight adjusts rep's accumulated weight by delta (which may be
// negative), creating the row if absent. This is the only mutator for
// the representation table: spec.md §4.C updates weight exclusively by
// delta (decrement on send, increment on receive/open, transfer on
// change), never by recomputing the sum from a full account scan.
func (t *sqlTxn) AddWeight(rep block.Account, delta *big.Int) error {
	current, err := t.GetWeight(rep)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(current, delta)
	_, err = t.tx.Exec(
		`INSERT INTO representation (account, weight) VALUES (?, ?)
		 ON CONFLICT(account) DO UPDATE SET weight = excluded.weight`,
		rep[:], next.String(),
	)
	return err
}

func (t *sqlTxn) GetFrontierAccount(frontier block.Hash) (block.Account, error) {
	var account []byte
	err := t.tx.QueryRow(`SELECT account FROM frontiers WHERE frontier_hash = ?`, frontier[:]).Scan(&account)
	if err == sql.ErrNoRows {
		return block.Account{}, ErrNotFound
	}
	if err != nil {
		return block.Account{}, err
	}
	var a block.Account
	copy(a[:], account)
	return a, nil
}

func (t *sqlTxn) PutFrontier(frontier block.Hash, a block.Account) error {
	_, err := t.tx.Exec(
		`INSERT INTO frontiers (frontier_hash, account) VALUES (?, ?)
		 ON CONFLICT(frontier_hash) DO UPDATE SET account = excluded.account`,
		frontier[:], a[:],
	)
	return err
}

func (t *sqlTxn) DeleteFrontier(frontier block.Hash) error {
	_, err := t.tx.Exec(`DELETE FROM frontiers WHERE frontier_hash = ?`, frontier[:])
	return err
}

// ListFrontiers scans every account's frontier in one query, the local
// side of a bootstrap frontier diff (spec.md §4.G).
func (t *sqlTxn) ListFrontiers() (map[block.Account]block.Hash, error) {
	rows, err := t.tx.Query(`SELECT account, frontier FROM accounts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[block.Account]block.Hash)
	for rows.Next() {
		var accountBytes, frontierBytes []byte
		if err := rows.Scan(&accountBytes, &frontierBytes); err != nil {
			return nil, err
		}
		var acc block.Account
		var frontier block.Hash
		copy(acc[:], accountBytes)
		copy(frontier[:], frontierBytes)
		out[acc] = frontier
	}
	return out, rows.Err()
}

// NextVoteSequence returns and persists the next monotonic local vote
// sequence number for rep (spec.md §4.F: "monotonic sequence number
// persisted per representative account").
func (t *sqlTxn) NextVoteSequence(rep block.Account) (uint64, error) {
	var seq int64
	err := t.tx.QueryRow(`SELECT sequence FROM vote_sequences WHERE account = ?`, rep[:]).Scan(&seq)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	seq++
	_, err = t.tx.Exec(
		`INSERT INTO vote_sequences (account, sequence) VALUES (?, ?)
		 ON CONFLICT(account) DO UPDATE SET sequence = excluded.sequence`,
		rep[:], seq,
	)
	if err != nil {
		return 0, err
	}
	return uint64(seq), nil
}
