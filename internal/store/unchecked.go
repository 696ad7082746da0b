package store

import (
	"time"

	"github.com/Roconda/raiblocks/internal/block"
)

// PutUnchecked persists a block parked by the gap cache under the hash
// it is still waiting on, so a restart does not lose in-flight gaps
// (spec.md §4.B: "unchecked (hash → block, for gap cache persistence)").
func (s *Store) PutUnchecked(missing block.Hash, dependent block.Block) error {
	encoded, err := dependent.MarshalBinary()
	if err != nil {
		return err
	}
	h := dependent.Hash()
	_, err = s.db.Exec(
		`INSERT INTO unchecked (missing_hash, dependent_hash, encoded, inserted_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(missing_hash, dependent_hash) DO UPDATE SET encoded = excluded.encoded`,
		missing[:], h[:], encoded, time.Now().Unix(),
	)
	return err
}

// TakeUnchecked removes and returns every block parked under missing.
func (s *Store) TakeUnchecked(missing block.Hash) ([]block.Block, error) {
	rows, err := s.db.Query(`SELECT encoded FROM unchecked WHERE missing_hash = ?`, missing[:])
	if err != nil {
		return nil, err
	}
	var encoded [][]byte
	for rows.Next() {
		var e []byte
		if err := rows.Scan(&e); err != nil {
			rows.Close()
			return nil, err
		}
		encoded = append(encoded, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if _, err := s.db.Exec(`DELETE FROM unchecked WHERE missing_hash = ?`, missing[:]); err != nil {
		return nil, err
	}

	blocks := make([]block.Block, 0, len(encoded))
	for _, e := range encoded {
		b, err := block.Decode(e)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}
