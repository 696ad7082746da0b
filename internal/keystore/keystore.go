// Package keystore implements the signing-oracle external contract of
// spec.md §6: the ledger validator never calls into this package (it
// only checks already-embedded signatures), but the vote processor and
// the node's own block-creation path do, whenever this node acts as a
// representative or account holder.
package keystore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Roconda/raiblocks/internal/block"
)

// Store signs on behalf of accounts and exposes the keys it holds.
// Signing may block on disk or hardware-wallet I/O; per spec.md §7 the
// validator never calls this interface.
type Store interface {
	Sign(ctx context.Context, account block.Account, message []byte) (block.Signature, error)
	Fetch(account block.Account) (ed25519.PrivateKey, error)
}

// FileStore is the reference implementation: one file per account
// under dataDir, generated on first use and loaded from disk
// thereafter — a generate-if-absent, 0600-permission pattern applied
// per account instead of per node, since a node may vote or spend on
// behalf of many configured accounts.
type FileStore struct {
	mu      sync.Mutex
	dataDir string
	cache   map[block.Account]ed25519.PrivateKey
}

func NewFileStore(dataDir string) *FileStore {
	return &FileStore{dataDir: dataDir, cache: make(map[block.Account]ed25519.PrivateKey)}
}

func (s *FileStore) keyPath(account block.Account) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("%x.key", account[:]))
}

// Fetch loads account's private key, generating and persisting a new
// one if absent. The generated key's public half is not required to
// equal account — callers that expect a specific account's key to
// already exist (rather than synthesise a fresh one) should check
// ed25519.PrivateKey.Public() against account themselves.
func (s *FileStore) Fetch(account block.Account) (ed25519.PrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchLocked(account)
}

func (s *FileStore) fetchLocked(account block.Account) (ed25519.PrivateKey, error) {
	if key, ok := s.cache[account]; ok {
		return key, nil
	}

	path := s.keyPath(account)
	if data, err := os.ReadFile(path); err == nil {
		key := ed25519.PrivateKey(data)
		s.cache[account] = key
		return key, nil
	}

	if err := os.MkdirAll(s.dataDir, 0700); err != nil {
		return nil, fmt.Errorf("keystore: create data dir: %w", err)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keystore: generate key: %w", err)
	}
	if err := os.WriteFile(path, priv, 0600); err != nil {
		return nil, fmt.Errorf("keystore: persist key: %w", err)
	}

	s.cache[account] = priv
	return priv, nil
}

// Sign produces an ed25519 signature over message using account's key.
func (s *FileStore) Sign(_ context.Context, account block.Account, message []byte) (block.Signature, error) {
	key, err := s.Fetch(account)
	if err != nil {
		return block.Signature{}, err
	}
	raw := ed25519.Sign(key, message)
	var sig block.Signature
	copy(sig[:], raw)
	return sig, nil
}
