package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

// PeerRecord tracks a known network peer, independent of ledger state —
// read and written outside the View/Update transaction pair since peer
// bookkeeping has no bearing on the invariants in spec.md §3.
type PeerRecord struct {
	PeerID          string
	Addresses       []string
	FirstSeen       time.Time
	LastSeen        time.Time
	LastConnected   time.Time
	ConnectionCount int
	IsBootstrap     bool
	WarmedUp        bool
}

// SavePeer inserts or updates a peer record, incrementing the connection
// count on every save (mirroring a "seen again" signal).
func (s *Store) SavePeer(p *PeerRecord) error {
	addrsJSON, err := json.Marshal(p.Addresses)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO peers (peer_id, addresses, first_seen, last_seen, last_connected, connection_count, is_bootstrap, warmed_up)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(peer_id) DO UPDATE SET
		   addresses = excluded.addresses,
		   last_seen = excluded.last_seen,
		   last_connected = CASE WHEN excluded.last_connected > 0 THEN excluded.last_connected ELSE peers.last_connected END,
		   connection_count = peers.connection_count + 1,
		   is_bootstrap = CASE WHEN excluded.is_bootstrap THEN 1 ELSE peers.is_bootstrap END`,
		p.PeerID, string(addrsJSON), p.FirstSeen.Unix(), p.LastSeen.Unix(),
		unixOrZero(p.LastConnected), p.ConnectionCount, boolToInt(p.IsBootstrap), boolToInt(p.WarmedUp),
	)
	return err
}

func (s *Store) GetPeer(peerID string) (*PeerRecord, error) {
	row := s.db.QueryRow(
		`SELECT peer_id, addresses, first_seen, last_seen, last_connected, connection_count, is_bootstrap, warmed_up
		 FROM peers WHERE peer_id = ?`, peerID,
	)
	return scanPeer(row)
}

// MarkWarmedUp flags peerID as a peer this node has completed a
// bootstrap session against. It is separate from the node-wide run
// counter the bootstrap package keeps in the meta table. A peer with no
// saved row is left unchanged.
func (s *Store) MarkWarmedUp(peerID string) error {
	_, err := s.db.Exec(`UPDATE peers SET warmed_up = 1 WHERE peer_id = ?`, peerID)
	return err
}

func (s *Store) ListPeers(limit int) ([]*PeerRecord, error) {
	query := `SELECT peer_id, addresses, first_seen, last_seen, last_connected, connection_count, is_bootstrap, warmed_up
		FROM peers ORDER BY last_seen DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(query+" LIMIT ?", limit)
	} else {
		rows, err = s.db.Query(query)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var peers []*PeerRecord
	for rows.Next() {
		p, err := scanPeerRows(rows)
		if err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}
	return peers, rows.Err()
}

func (s *Store) DeletePeer(peerID string) error {
	_, err := s.db.Exec(`DELETE FROM peers WHERE peer_id = ?`, peerID)
	return err
}

func (s *Store) PeerCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM peers`).Scan(&count)
	return count, err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPeer(row scannable) (*PeerRecord, error) {
	var p PeerRecord
	var addrsJSON string
	var firstSeen, lastSeen, lastConnected int64
	var isBootstrap, warmedUp int

	err := row.Scan(&p.PeerID, &addrsJSON, &firstSeen, &lastSeen, &lastConnected, &p.ConnectionCount, &isBootstrap, &warmedUp)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if addrsJSON != "" {
		json.Unmarshal([]byte(addrsJSON), &p.Addresses)
	}
	p.FirstSeen = time.Unix(firstSeen, 0)
	p.LastSeen = time.Unix(lastSeen, 0)
	if lastConnected > 0 {
		p.LastConnected = time.Unix(lastConnected, 0)
	}
	p.IsBootstrap = isBootstrap == 1
	p.WarmedUp = warmedUp == 1
	return &p, nil
}

func scanPeerRows(rows *sql.Rows) (*PeerRecord, error) {
	return scanPeer(rows)
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
