package agent

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/batchswap/coordinator"
	"github.com/batchswap/coordinator/internal/db"
	"github.com/batchswap/coordinator/pkg/coordinator"
	"github.com/batchswap/coordinator/pkg/marketdata"
	"github.com/batchswap/coordinator/pkg/reveal"
	"github.com/batchswap/coordinator/pkg/strategy"
)

// HookClient is the subset of pkg/hookclient.HookClient an Agent needs
// directly (beyond what it hands to the reveal manager and executor).
type HookClient interface {
	ComputeKeccakCommitmentHash(intent batchswap.SwapIntent) (batchswap.CommitmentHash, error)
	GetPendingCommitmentCount(ctx context.Context, poolID common.Hash) (uint32, error)
	SubmitCommitment(ctx context.Context, poolID common.Hash, commitment batchswap.CommitmentHash) (*types.Transaction, error)
}

// Config wires one Agent's collaborators and identity.
type Config struct {
	AgentID         string
	PoolID          common.Hash
	PoolKey         batchswap.PoolKey
	Strategy        strategy.Strategy
	Client          HookClient
	Reveals         *reveal.Manager
	Coord           *coordinator.Coordinator
	MarketCache     *marketdata.Cache
	Fetcher         marketdata.Fetcher
	Recorder        *db.Recorder
	Breaker         *CircuitBreaker
	PollInterval    time.Duration
	Reports         chan<- Report
}

// Agent evaluates its strategy against fresh market data on a timer,
// enqueues reveals for trades it decides to make, and signals readiness
// to the shared Coordinator once it has pending commitments for its
// pool.
type Agent struct {
	cfg    Config
	cancel context.CancelFunc
}

// New constructs an Agent from cfg.
func New(cfg Config) *Agent {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.Breaker == nil {
		cfg.Breaker = NewCircuitBreaker(3)
	}
	return &Agent{cfg: cfg}
}

// Run starts the agent's evaluation loop and blocks until ctx is
// canceled.
func (a *Agent) Run(ctx context.Context) {
	a.report(EventAgentStart, "agent started", nil)

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Agent) tick(ctx context.Context) {
	if a.cfg.Breaker.Tripped() {
		a.report(EventHalt, "circuit breaker tripped, skipping tick", nil)
		return
	}

	md, err := a.cfg.MarketCache.FetchMarketData(ctx, a.cfg.PoolID, a.cfg.PoolKey, a.cfg.Fetcher)
	if err != nil {
		a.report(EventBatchFailed, "failed to fetch market data", err)
		return
	}

	decision := a.cfg.Strategy.ShouldTrade(md, time.Now().UnixMilli())
	if !decision.ShouldTrade {
		return
	}

	intent := a.buildIntent(decision)
	hash, err := a.cfg.Client.ComputeKeccakCommitmentHash(intent)
	if err != nil {
		a.report(EventBatchFailed, "failed to compute commitment hash", err)
		return
	}

	if _, err := a.cfg.Client.SubmitCommitment(ctx, a.cfg.PoolID, hash); err != nil {
		a.report(EventBatchFailed, "failed to submit commitment", err)
		return
	}
	a.report(EventCommitmentSubmitted, "commitment submitted", nil)

	rvl := batchswap.RevealData{
		CommitmentHash: hash,
		Intent:         intent,
		PoolKey:        a.cfg.PoolKey,
		PoolID:         a.cfg.PoolID,
	}
	if err := reveal.ValidateReveal(rvl, hash, time.Now().Unix()); err != nil {
		a.report(EventBatchFailed, "reveal failed validation", err)
		return
	}

	a.cfg.Reveals.AddReveal(a.cfg.PoolID, rvl)
	a.report(EventRevealEnqueued, "reveal buffered", nil)

	pending := a.cfg.Reveals.GetPendingCount(a.cfg.PoolID)
	signal := batchswap.AgentReadinessSignal{
		AgentID:            a.cfg.AgentID,
		PoolID:             a.cfg.PoolID,
		Ready:              true,
		PendingCommitments: uint32(pending),
		TimestampMs:        time.Now().UnixMilli(),
	}
	if err := a.cfg.Coord.SignalReady(signal); err != nil {
		a.report(EventBatchFailed, "failed to signal readiness", err)
		return
	}
	a.report(EventReadinessSignaled, "readiness signaled to coordinator", nil)
}

func (a *Agent) buildIntent(decision batchswap.TradeDecision) batchswap.SwapIntent {
	tokenIn, tokenOut := a.cfg.PoolKey.Currency0, a.cfg.PoolKey.Currency1
	if decision.Direction == batchswap.OneForZero {
		tokenIn, tokenOut = a.cfg.PoolKey.Currency1, a.cfg.PoolKey.Currency0
	}
	return batchswap.SwapIntent{
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     decision.AmountIn,
		MinAmountOut: decision.MinAmountOut,
		Nonce:        big.NewInt(time.Now().UnixNano()),
		Deadline:     time.Now().Add(5 * time.Minute).Unix(),
	}
}

// RecordExecutionOutcome feeds a completed batch execution's result back
// into the circuit breaker and history recorder. Neither Manager nor the
// executor calls it; whoever observes an execution result for this
// agent's pool passes it in.
func (a *Agent) RecordExecutionOutcome(success bool, txHash common.Hash, blockNumber, gasUsed uint64, commitmentCount int, errMsg string, attemptedAtMs, durationMs int64) {
	a.cfg.Breaker.RecordOutcome(success)

	kind := EventBatchExecuted
	if !success {
		kind = EventBatchFailed
	}
	a.report(kind, "batch execution recorded", nil)

	if a.cfg.Recorder == nil {
		return
	}
	_ = a.cfg.Recorder.RecordExecution(db.BatchExecutionRecord{
		PoolID:          a.cfg.PoolID.Hex(),
		TxHash:          txHash.Hex(),
		BlockNumber:     blockNumber,
		GasUsed:         gasUsed,
		CommitmentCount: commitmentCount,
		Success:         success,
		ErrorMessage:    errMsg,
		AttemptedAtMs:   attemptedAtMs,
		DurationMs:      durationMs,
	})
}

func (a *Agent) report(kind EventKind, msg string, err error) {
	if a.cfg.Reports == nil {
		return
	}
	select {
	case a.cfg.Reports <- Report{
		AgentID:   a.cfg.AgentID,
		PoolID:    a.cfg.PoolID,
		Kind:      kind,
		Message:   msg,
		Err:       err,
		Timestamp: time.Now(),
	}:
	default:
		// Slow consumer: drop rather than block strategy evaluation.
	}
}
