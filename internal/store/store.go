// Package store provides the durable, transactional ledger view: a
// reader-writer sqlite-backed key-value store with snapshot reads and
// serialised writes, matching the store contract of spec.md §4.B/§5.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the ledger's durable backing store. At most one write
// transaction is in flight at a time (enforced by writeMu, mirroring
// sqlite's own single-writer discipline); any number of read
// transactions may run concurrently under WAL.
type Store struct {
	db      *sql.DB
	dbPath  string
	writeMu sync.Mutex
}

// Config configures where the ledger database lives on disk.
type Config struct {
	DataDir string
}

// Open creates the data directory if absent, opens (or creates) the
// sqlite database, and ensures the schema is current.
func Open(cfg Config) (*Store, error) {
	dataDir := expandPath(cfg.DataDir)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "ledger.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	// sqlite only supports one writer; readers multiplex fine under WAL,
	// so we leave the read pool unbounded but serialise writers above it
	// with writeMu rather than also capping MaxOpenConns to 1 (that would
	// serialise reads too).
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

const schemaVersion = 1

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS blocks (
		hash BLOB PRIMARY KEY,
		kind INTEGER NOT NULL,
		root BLOB NOT NULL,
		encoded BLOB NOT NULL,
		account BLOB NOT NULL,
		height INTEGER NOT NULL,
		amount TEXT NOT NULL DEFAULT '0',
		prev_representative BLOB,
		local_timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_blocks_account ON blocks(account, height);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_blocks_root ON blocks(root);

	CREATE TABLE IF NOT EXISTS accounts (
		account BLOB PRIMARY KEY,
		frontier BLOB NOT NULL,
		open_block BLOB NOT NULL,
		balance TEXT NOT NULL,
		representative BLOB NOT NULL,
		block_count INTEGER NOT NULL DEFAULT 0,
		modified_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pending (
		destination BLOB NOT NULL,
		source_hash BLOB NOT NULL,
		sender BLOB NOT NULL,
		amount TEXT NOT NULL,
		PRIMARY KEY (destination, source_hash)
	);

	CREATE TABLE IF NOT EXISTS representation (
		account BLOB PRIMARY KEY,
		weight TEXT NOT NULL DEFAULT '0'
	);

	CREATE TABLE IF NOT EXISTS unchecked (
		missing_hash BLOB NOT NULL,
		dependent_hash BLOB NOT NULL,
		encoded BLOB NOT NULL,
		inserted_at INTEGER NOT NULL,
		PRIMARY KEY (missing_hash, dependent_hash)
	);

	CREATE TABLE IF NOT EXISTS frontiers (
		frontier_hash BLOB PRIMARY KEY,
		account BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vote_sequences (
		account BLOB PRIMARY KEY,
		sequence INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS peers (
		peer_id TEXT PRIMARY KEY,
		addresses TEXT,
		first_seen INTEGER,
		last_seen INTEGER,
		last_connected INTEGER,
		connection_count INTEGER DEFAULT 0,
		is_bootstrap INTEGER DEFAULT 0,
		warmed_up INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_peers_last_seen ON peers(last_seen);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	var versionStr string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = 'version'").Scan(&versionStr)
	if err == sql.ErrNoRows {
		_, err = s.db.Exec("INSERT INTO meta (key, value) VALUES ('version', ?)", fmt.Sprintf("%d", schemaVersion))
		return err
	}
	return err
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
