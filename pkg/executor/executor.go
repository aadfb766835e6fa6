// Package executor drives the on-chain settlement side of a fired batch:
// it polls registered pools for readiness, submits buffered reveals in
// order, and executes the batch clearing transaction, retrying with
// backoff on transient failures and recording history either way.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/batchswap/coordinator"
	"github.com/batchswap/coordinator/internal/metrics"
	"github.com/batchswap/coordinator/pkg/reveal"
)

// HookClient is the subset of pkg/hookclient.HookClient the executor
// depends on, narrowed to an interface so tests can stub it.
type HookClient interface {
	Checker(ctx context.Context, poolID common.Hash) (bool, error)
	RevealAndBatchExecute(ctx context.Context, poolID common.Hash, hashes []batchswap.CommitmentHash) (TxResult, error)
	RevealAndBatchExecuteWithProofs(ctx context.Context, poolID common.Hash, hashes []batchswap.CommitmentHash, proofs [][]byte) (TxResult, error)
}

// TxResult is the mined outcome of a submitted transaction the executor
// needs for history and stats: its hash, the block it landed in, and the
// gas it consumed. pkg/hookclient's real methods return *types.Transaction
// and wait for the receipt; callers adapt via a thin wrapper so this
// package does not import core/types just for these fields.
type TxResult struct {
	Hash        common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// Submitter matches pkg/reveal.Submitter so HookClient-backed submitters
// can be passed straight through without an adapter.
type Submitter = reveal.Submitter

// RevealSource is the subset of *reveal.Manager the executor depends on.
type RevealSource interface {
	SubmitAllReveals(poolID common.Hash, submitter Submitter, delay time.Duration) []reveal.SubmitResult
	GetSubmittedHashesForPool(poolID common.Hash) []batchswap.CommitmentHash
	ClearExecutedReveals(poolID common.Hash, hashes []batchswap.CommitmentHash)
}

// ExecutionRecord is one attempt's outcome, appended to history
// regardless of success, and persisted by internal/db.
type ExecutionRecord struct {
	PoolID          common.Hash
	TxHash          common.Hash
	BlockNumber     uint64
	GasUsed         uint64
	CommitmentCount int
	Success         bool
	Error           string
	AttemptedAtMs   int64
	DurationMs      int64
}

// Stats is a point-in-time snapshot of executor activity, exported both
// through GetStats and through the Prometheus collectors in
// internal/metrics. TotalSwaps sums CommitmentCount across successful
// batches only; AverageGasUsed divides total gas spent by that same
// successful-batch count.
type Stats struct {
	PoolsTracked    int
	TotalExecutions int64
	TotalFailures   int64
	TotalRetries    int64
	InFlight        int
	TotalSwaps      int64
	AverageGasUsed  uint64
}

// Config tunes polling cadence and retry behavior.
type Config struct {
	PollInterval      time.Duration
	PollRatePerSecond float64
	MaxRetries        int
	BaseBackoff       time.Duration
	PostRevealDelay   time.Duration
	// ZKMode selects reveal_and_batch_execute_with_proofs over the
	// standard call; every submitted hash must have a stored proof or
	// ExecuteBatch fails with MissingZkProof before calling the chain.
	ZKMode bool
}

// Executor polls registered pools and settles fired batches. It is safe
// for concurrent use.
type Executor struct {
	mu        sync.Mutex
	cfg       Config
	pools     map[common.Hash]struct{}
	inFlight  map[common.Hash]bool
	proofs    map[common.Hash]map[batchswap.CommitmentHash][]byte
	history    []ExecutionRecord
	totalExec  int64
	totalFail  int64
	totalRetry int64
	totalSwaps int64
	totalGas   uint64

	client  HookClient
	reveals RevealSource
	limiter *rate.Limiter
	metrics *metrics.ExecutorCollector

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Executor. metricsCollector may be nil to skip
// Prometheus export.
func New(cfg Config, client HookClient, reveals RevealSource, metricsCollector *metrics.ExecutorCollector) *Executor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollRatePerSecond <= 0 {
		cfg.PollRatePerSecond = 5
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	return &Executor{
		cfg:     cfg,
		pools:   make(map[common.Hash]struct{}),
		inFlight: make(map[common.Hash]bool),
		proofs:  make(map[common.Hash]map[batchswap.CommitmentHash][]byte),
		client:  client,
		reveals: reveals,
		limiter: rate.NewLimiter(rate.Limit(cfg.PollRatePerSecond), 1),
		metrics: metricsCollector,
	}
}

// AddPool registers poolID for polling.
func (e *Executor) AddPool(poolID common.Hash) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pools[poolID] = struct{}{}
}

// RemovePool deregisters poolID and drops any cached proofs for it.
func (e *Executor) RemovePool(poolID common.Hash) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pools, poolID)
	delete(e.proofs, poolID)
	delete(e.inFlight, poolID)
}

// StoreProof caches a ZK proof for a commitment hash, to be attached when
// the pool's batch next executes.
func (e *Executor) StoreProof(poolID common.Hash, hash batchswap.CommitmentHash, proof []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	byHash, ok := e.proofs[poolID]
	if !ok {
		byHash = make(map[batchswap.CommitmentHash][]byte)
		e.proofs[poolID] = byHash
	}
	byHash[hash] = proof
}

// GetProof returns a cached proof, if any.
func (e *Executor) GetProof(poolID common.Hash, hash batchswap.CommitmentHash) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	proof, ok := e.proofs[poolID][hash]
	return proof, ok
}

// CheckBatchReadiness asks the hook client whether poolID's on-chain
// conditions for execution are currently met.
func (e *Executor) CheckBatchReadiness(ctx context.Context, poolID common.Hash) (bool, error) {
	return e.client.Checker(ctx, poolID)
}

// GetStats returns a snapshot of executor counters.
func (e *Executor) GetStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	inFlight := 0
	for _, v := range e.inFlight {
		if v {
			inFlight++
		}
	}
	var avgGas uint64
	if successes := e.totalExec - e.totalFail; successes > 0 {
		avgGas = e.totalGas / uint64(successes)
	}
	return Stats{
		PoolsTracked:    len(e.pools),
		TotalExecutions: e.totalExec,
		TotalFailures:   e.totalFail,
		TotalRetries:    e.totalRetry,
		InFlight:        inFlight,
		TotalSwaps:      e.totalSwaps,
		AverageGasUsed:  avgGas,
	}
}

// History returns a copy of every execution attempt recorded so far.
func (e *Executor) History() []ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ExecutionRecord, len(e.history))
	copy(out, e.history)
	return out
}

// StartPolling launches the background poll loop, one goroutine fanning
// out per-pool readiness checks through an errgroup bounded by a token
// rate limiter, every cfg.PollInterval. It returns immediately; call
// StopPolling to stop.
func (e *Executor) StartPolling(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.pollOnce(ctx)
			}
		}
	}()
}

// StopPolling cancels the poll loop and blocks until it has exited.
func (e *Executor) StopPolling() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

func (e *Executor) pollOnce(ctx context.Context) {
	e.mu.Lock()
	poolIDs := make([]common.Hash, 0, len(e.pools))
	for id := range e.pools {
		poolIDs = append(poolIDs, id)
	}
	e.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, poolID := range poolIDs {
		poolID := poolID
		g.Go(func() error {
			if err := e.limiter.Wait(gctx); err != nil {
				return nil // context canceled; not a pool failure
			}

			e.mu.Lock()
			if e.inFlight[poolID] {
				e.mu.Unlock()
				return nil
			}
			e.inFlight[poolID] = true
			e.mu.Unlock()
			defer func() {
				e.mu.Lock()
				e.inFlight[poolID] = false
				e.mu.Unlock()
			}()

			ready, err := e.CheckBatchReadiness(gctx, poolID)
			if err != nil || !ready {
				return nil
			}
			e.executeWithRetry(gctx, poolID)
			return nil
		})
	}
	_ = g.Wait() // per-pool errors are already absorbed; this only waits for completion
}

// ExecuteBatch runs the execution-ordering contract for poolID exactly
// once: submit every pending reveal, confirm at least one hash was
// submitted, in ZK mode attach a cached proof for every hash (failing if
// any is missing), wait PostRevealDelay, then call the chain. On success
// it clears executed reveals; on failure it leaves the submitted reveals
// buffered, so a retry executes the same hashes again.
func (e *Executor) ExecuteBatch(ctx context.Context, poolID common.Hash, submitter Submitter) (ExecutionRecord, error) {
	start := time.Now()

	e.reveals.SubmitAllReveals(poolID, submitter, 0)

	hashes := e.reveals.GetSubmittedHashesForPool(poolID)
	if len(hashes) == 0 {
		return ExecutionRecord{}, batchswap.NewExecutionOrderingError(batchswap.KindNoSubmittedReveals, "no submitted reveals to execute")
	}

	var proofs [][]byte
	if e.cfg.ZKMode {
		var ok bool
		proofs, ok = e.collectProofs(poolID, hashes)
		if !ok {
			return ExecutionRecord{}, batchswap.NewExecutionOrderingError(batchswap.KindMissingZkProof, "missing ZK proof for one or more submitted hashes")
		}
	}

	if e.cfg.PostRevealDelay > 0 {
		select {
		case <-ctx.Done():
			return ExecutionRecord{}, ctx.Err()
		case <-time.After(e.cfg.PostRevealDelay):
		}
	}

	var result TxResult
	var err error
	if e.cfg.ZKMode {
		result, err = e.client.RevealAndBatchExecuteWithProofs(ctx, poolID, hashes, proofs)
	} else {
		result, err = e.client.RevealAndBatchExecute(ctx, poolID, hashes)
	}

	record := ExecutionRecord{
		PoolID:          poolID,
		TxHash:          result.Hash,
		BlockNumber:     result.BlockNumber,
		GasUsed:         result.GasUsed,
		CommitmentCount: len(hashes),
		Success:         err == nil,
		AttemptedAtMs:   start.UnixMilli(),
		DurationMs:      time.Since(start).Milliseconds(),
	}
	if err != nil {
		record.Error = err.Error()
	} else {
		e.reveals.ClearExecutedReveals(poolID, hashes)
	}

	e.mu.Lock()
	e.history = append(e.history, record)
	e.totalExec++
	if !record.Success {
		e.totalFail++
	} else {
		e.totalSwaps += int64(record.CommitmentCount)
		e.totalGas += record.GasUsed
	}
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.Observe(record.Success, record.DurationMs, record.GasUsed)
	}

	if err != nil {
		return record, err
	}
	return record, nil
}

// executeWithRetry calls ExecuteBatch, retrying every failure other than
// an ordering failure (transport errors and on-chain reverts alike) with
// exponential backoff up to cfg.MaxRetries. Ordering failures (no
// submitted reveals, or a missing ZK proof) are not retried, since
// re-polling will pick the pool back up on a later tick.
func (e *Executor) executeWithRetry(ctx context.Context, poolID common.Hash) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			e.mu.Lock()
			e.totalRetry++
			e.mu.Unlock()
			backoff := e.cfg.BaseBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
		}

		_, err := e.ExecuteBatch(ctx, poolID, noopSubmitter{})
		if err == nil {
			return
		}
		lastErr = err

		var ordErr *batchswap.ExecutionOrderingError
		if isExecutionOrderingError(err, &ordErr) {
			return
		}
	}
	_ = lastErr
}

// noopSubmitter is used by the poll loop, where reveals are expected to
// already be buffered by agents; StartPolling does not originate new
// reveals itself.
type noopSubmitter struct{}

func (noopSubmitter) SubmitReveal(common.Hash, batchswap.RevealData) error { return nil }

func isExecutionOrderingError(err error, target **batchswap.ExecutionOrderingError) bool {
	e, ok := err.(*batchswap.ExecutionOrderingError)
	if ok {
		*target = e
	}
	return ok
}

// collectProofs looks up a stored proof for every hash. ok is false if
// any hash has no cached proof, in which case proofs is nil.
func (e *Executor) collectProofs(poolID common.Hash, hashes []batchswap.CommitmentHash) (proofs [][]byte, ok bool) {
	proofs = make([][]byte, 0, len(hashes))
	for _, h := range hashes {
		proof, found := e.GetProof(poolID, h)
		if !found {
			return nil, false
		}
		proofs = append(proofs, proof)
	}
	return proofs, true
}
