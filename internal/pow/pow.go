// Package pow implements the proof-of-work external contract of
// spec.md §6: verify(root, nonce) -> bool, generate(root) -> nonce,
// difficulty(root, nonce) -> u64. The ledger validator only ever calls
// Verify; nothing in the validation path calls Generate (spec.md §1
// treats proof-of-work generation as an opaque external collaborator —
// Worker below is the reference implementation of that collaborator,
// not part of the core).
package pow

import (
	"context"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/Roconda/raiblocks/internal/block"
)

// Verifier checks and generates work without exposing how either is
// implemented, matching the ledger.Verifier/DifficultyFunc split
// between "cheap check on the hot path" and "expensive search off it".
type Verifier interface {
	Verify(root block.Hash, nonce uint64) bool
	Generate(ctx context.Context, root block.Hash) (uint64, error)
	Difficulty(root block.Hash, nonce uint64) uint64
}

// DefaultThreshold is the minimum difficulty value Verify accepts,
// exposed so a deployment can raise it (spec.md §6 treats the exact
// threshold as configuration, not part of the wire contract).
const DefaultThreshold = 0xffffffc000000000

// Worker is the CPU-bound reference implementation: difficulty is the
// leading 8 bytes (little-endian, matching the source's
// difficulty-as-threshold convention) of blake2b-256(root || nonce),
// searched across a configurable number of goroutines.
type Worker struct {
	threshold uint64
	threads   int
}

func NewWorker(threshold uint64, threads int) *Worker {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threads <= 0 {
		threads = 1
	}
	return &Worker{threshold: threshold, threads: threads}
}

// Difficulty hashes root||nonce and reads the leading 8 bytes as a
// little-endian uint64.
func (w *Worker) Difficulty(root block.Hash, nonce uint64) uint64 {
	var buf [block.HashSize + 8]byte
	copy(buf[:], root[:])
	binary.LittleEndian.PutUint64(buf[block.HashSize:], nonce)
	sum := blake2b.Sum256(buf[:])
	return binary.LittleEndian.Uint64(sum[:8])
}

// Verify reports whether nonce's difficulty against root clears the
// worker's configured threshold. This is the only pow method the
// ledger validator calls.
func (w *Worker) Verify(root block.Hash, nonce uint64) bool {
	return w.Difficulty(root, nonce) >= w.threshold
}

// Generate searches for a nonce clearing the threshold, fanning the
// search out across w.threads goroutines via errgroup, cancellable
// through ctx. The first goroutine to find a satisfying nonce cancels
// the rest.
func (w *Worker) Generate(ctx context.Context, root block.Hash) (uint64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	found := make(chan uint64, 1)

	for i := 0; i < w.threads; i++ {
		start := uint64(i)
		stride := uint64(w.threads)
		g.Go(func() error {
			for nonce := start; ; nonce += stride {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				if w.Difficulty(root, nonce) >= w.threshold {
					select {
					case found <- nonce:
						cancel()
					default:
					}
					return nil
				}
			}
		})
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- g.Wait() }()

	select {
	case nonce := <-found:
		return nonce, nil
	case err := <-waitErr:
		select {
		case nonce := <-found:
			return nonce, nil
		default:
		}
		if err != nil && err != context.Canceled {
			return 0, err
		}
		return 0, ctx.Err()
	}
}
