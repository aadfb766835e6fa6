// Package reveal buffers swap reveals between commitment and on-chain
// settlement: validated adds, FIFO submission ordering, and lifecycle
// bookkeeping per pool.
package reveal

import (
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/batchswap/coordinator"
)

// Submitter sends one reveal on chain. pkg/hookclient.RevealSubmitter
// satisfies this through SubmitReveal or SubmitRevealForZK; a test double
// can stub it.
type Submitter interface {
	SubmitReveal(poolID common.Hash, r batchswap.RevealData) error
}

// HashFunc recomputes a SwapIntent's commitment hash the way the hook
// client does, used by SubmitAllReveals to re-validate non-ZK reveals
// immediately before submission.
type HashFunc func(batchswap.SwapIntent) (batchswap.CommitmentHash, error)

// Manager is the per-process reveal buffer. It is safe for concurrent use
// from the polling loop and from agent goroutines signaling readiness.
type Manager struct {
	mu      sync.Mutex
	byPool  map[common.Hash]map[batchswap.CommitmentHash]*batchswap.RevealData
	seq     int64
	nowFunc func() int64
	hash    HashFunc
}

// New constructs an empty Manager. nowFunc defaults to
// time.Now().UnixMilli when nil, overridable for deterministic tests.
func New(nowFunc func() int64) *Manager {
	if nowFunc == nil {
		nowFunc = func() int64 { return time.Now().UnixMilli() }
	}
	return &Manager{
		byPool:  make(map[common.Hash]map[batchswap.CommitmentHash]*batchswap.RevealData),
		nowFunc: nowFunc,
	}
}

// SetHashFunc installs the commitment-hash recomputation used to validate
// non-ZK reveals in SubmitAllReveals. Without one, non-ZK reveals are
// validated against their own stored hash (a no-op hash check).
func (m *Manager) SetHashFunc(h HashFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hash = h
}

// ValidateReveal checks a reveal's static invariants without performing
// any network I/O: non-zero amount, non-expired deadline, and, unless the
// reveal is already ZK-verified, a commitment hash that matches the
// intent (callers pass the hash the hook client computed for the
// intent). A ZK-verified reveal skips the hash check since the hook
// verifies the pre-image via the attached proof instead of recomputing
// the hash off-chain.
func ValidateReveal(r batchswap.RevealData, expectedHash batchswap.CommitmentHash, nowUnixSec int64) error {
	if r.Intent.AmountIn == nil || r.Intent.AmountIn.Sign() <= 0 {
		return batchswap.NewValidationError(batchswap.KindZeroAmount, "intent amount_in must be positive")
	}
	if r.Intent.Deadline <= nowUnixSec {
		return batchswap.NewValidationError(batchswap.KindDeadlineExpired, "intent deadline has passed")
	}
	if !r.IsZKVerified && r.CommitmentHash != expectedHash {
		return batchswap.NewValidationError(batchswap.KindCommitmentHashMismatch, "commitment hash does not match intent encoding")
	}
	return nil
}

// AddReveal inserts r for poolID, keyed by commitment hash. Re-adding the
// same hash is a no-op (idempotent), matching the at-least-once delivery
// the coordination layer assumes from agents.
func (m *Manager) AddReveal(poolID common.Hash, r batchswap.RevealData) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pool, ok := m.byPool[poolID]
	if !ok {
		pool = make(map[batchswap.CommitmentHash]*batchswap.RevealData)
		m.byPool[poolID] = pool
	}
	if _, exists := pool[r.CommitmentHash]; exists {
		return
	}

	m.seq++
	r.PoolID = poolID
	pool[r.CommitmentHash] = &r
	pool[r.CommitmentHash].SetAddedAt(m.seq)
}

// GetRevealsForPool returns a snapshot of every reveal currently buffered
// for poolID, ordered by insertion (FIFO).
func (m *Manager) GetRevealsForPool(poolID common.Hash) []batchswap.RevealData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked(poolID, nil)
}

// GetSubmittedHashesForPool returns the commitment hashes of reveals
// already marked SubmittedOnChain for poolID, in FIFO order.
func (m *Manager) GetSubmittedHashesForPool(poolID common.Hash) []batchswap.CommitmentHash {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.sortedLocked(poolID, func(r *batchswap.RevealData) bool { return r.SubmittedOnChain })
	hashes := make([]batchswap.CommitmentHash, 0, len(entries))
	for _, e := range entries {
		hashes = append(hashes, e.CommitmentHash)
	}
	return hashes
}

// GetPendingCount reports how many reveals for poolID have not yet been
// submitted on chain.
func (m *Manager) GetPendingCount(poolID common.Hash) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, r := range m.byPool[poolID] {
		if !r.SubmittedOnChain {
			n++
		}
	}
	return n
}

// SubmitResult is one reveal's outcome from a SubmitAllReveals pass.
type SubmitResult struct {
	CommitmentHash batchswap.CommitmentHash
	Submitted      bool
	Err            error
}

// SubmitAllReveals validates and submits every pending reveal for poolID
// through submitter, in FIFO order, waiting delay between each submission
// when delay > 0. Every reveal is attempted regardless of an earlier
// reveal's outcome: a reveal that fails validation or submission is
// recorded with its error and left pending, matching spec.md's
// result-per-reveal contract rather than stopping the walk at the first
// failure.
func (m *Manager) SubmitAllReveals(poolID common.Hash, submitter Submitter, delay time.Duration) []SubmitResult {
	m.mu.Lock()
	pending := m.sortedLocked(poolID, func(r *batchswap.RevealData) bool { return !r.SubmittedOnChain })
	hasher := m.hash
	m.mu.Unlock()

	results := make([]SubmitResult, 0, len(pending))
	for i, r := range pending {
		expectedHash := r.CommitmentHash
		if !r.IsZKVerified && hasher != nil {
			if h, err := hasher(r.Intent); err == nil {
				expectedHash = h
			}
		}

		if err := ValidateReveal(r, expectedHash, time.Now().Unix()); err != nil {
			m.recordErrorLocked(poolID, r.CommitmentHash, err)
			results = append(results, SubmitResult{CommitmentHash: r.CommitmentHash, Err: err})
			continue
		}

		if err := submitter.SubmitReveal(poolID, r); err != nil {
			m.recordErrorLocked(poolID, r.CommitmentHash, err)
			results = append(results, SubmitResult{CommitmentHash: r.CommitmentHash, Err: err})
			if delay > 0 && i < len(pending)-1 {
				time.Sleep(delay)
			}
			continue
		}

		m.mu.Lock()
		if entry, ok := m.byPool[poolID][r.CommitmentHash]; ok {
			entry.SubmittedOnChain = true
			now := time.UnixMilli(m.nowFunc())
			entry.SubmissionTimestamp = &now
			entry.Errors = nil
		}
		m.mu.Unlock()
		results = append(results, SubmitResult{CommitmentHash: r.CommitmentHash, Submitted: true})

		if delay > 0 && i < len(pending)-1 {
			time.Sleep(delay)
		}
	}
	return results
}

func (m *Manager) recordErrorLocked(poolID common.Hash, hash batchswap.CommitmentHash, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.byPool[poolID][hash]; ok {
		entry.Errors = append(entry.Errors, err.Error())
	}
}

// ClearExecutedReveals drops every reveal for poolID whose commitment
// hash appears in hashes, called after a successful batch execution with
// the exact hash set that was settled.
func (m *Manager) ClearExecutedReveals(poolID common.Hash, hashes []batchswap.CommitmentHash) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pool, ok := m.byPool[poolID]
	if !ok {
		return
	}
	for _, h := range hashes {
		delete(pool, h)
	}
}

// ClearPool drops every reveal buffered for poolID regardless of
// lifecycle state. Executor.RemovePool does not call it.
func (m *Manager) ClearPool(poolID common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byPool, poolID)
}

// ClearAll drops every reveal across every pool.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPool = make(map[common.Hash]map[batchswap.CommitmentHash]*batchswap.RevealData)
}

// sortedLocked must be called with m.mu held. filter may be nil to
// include every reveal for the pool.
func (m *Manager) sortedLocked(poolID common.Hash, filter func(*batchswap.RevealData) bool) []batchswap.RevealData {
	pool := m.byPool[poolID]
	out := make([]*batchswap.RevealData, 0, len(pool))
	for _, r := range pool {
		if filter == nil || filter(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt() < out[j].AddedAt() })

	result := make([]batchswap.RevealData, len(out))
	for i, r := range out {
		result[i] = *r
	}
	return result
}
