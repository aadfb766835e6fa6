// Package batchswap is the off-chain coordination and execution core for a
// private batch-swap protocol built atop a constant-function AMM with
// commit-reveal semantics. It holds the shared data model consumed by the
// hook client, reveal manager, batch coordinator, batch executor, and
// strategy runtime packages.
package batchswap

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Direction is the side of a swap relative to a pool's two currencies.
// ZeroForOne sells currency0 for currency1; OneForZero is the inverse.
type Direction int

const (
	ZeroForOne Direction = iota
	OneForZero
)

func (d Direction) String() string {
	if d == ZeroForOne {
		return "ZERO_FOR_ONE"
	}
	return "ONE_FOR_ZERO"
}

// PoolKey uniquely identifies a pool. It is immutable once constructed;
// PoolID is derived on demand by the hook client's keccak256 encoding.
type PoolKey struct {
	Currency0    common.Address
	Currency1    common.Address
	FeeBps       uint32
	TickSpacing  int32
	HookAddress  common.Address
}

// SwapIntent is a user's desired swap, immutable once constructed. Nonce is
// unique per (pool_id, user) forever; Deadline is a unix second timestamp.
type SwapIntent struct {
	User         common.Address
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Recipient    common.Address
	Nonce        *big.Int
	Deadline     int64
}

// CommitmentHash is the 32-byte digest of an abi-encoded SwapIntent.
type CommitmentHash [32]byte

func (h CommitmentHash) Hex() string {
	return common.Bytes2Hex(h[:])
}

func (h CommitmentHash) IsZero() bool {
	return h == CommitmentHash{}
}

// RevealLifecycle tracks where a reveal sits between creation and
// settlement.
type RevealLifecycle int

const (
	RevealPending RevealLifecycle = iota
	RevealSubmitted
	RevealExecuted
	RevealErrored
)

// RevealData is a reveal the caller intends to submit on-chain, plus its
// lifecycle bookkeeping.
type RevealData struct {
	CommitmentHash      CommitmentHash
	Intent              SwapIntent
	PoolKey             PoolKey
	PoolID              common.Hash
	IsZKVerified        bool
	SubmittedOnChain    bool
	SubmissionTimestamp *time.Time
	Errors              []string
	addedAt             int64 // monotonic add-order sequence, for FIFO submission
}

// SetAddedAt stamps the reveal's FIFO sequence number. Called once by
// pkg/reveal's Manager when the reveal is first buffered.
func (r *RevealData) SetAddedAt(seq int64) { r.addedAt = seq }

// AddedAt returns the FIFO sequence number stamped by SetAddedAt.
func (r *RevealData) AddedAt() int64 { return r.addedAt }

// MarketData is a point-in-time snapshot of a pool's observable state.
// Snapshots are immutable value types once constructed; no field is mutated
// after capture.
type MarketData struct {
	PoolID            common.Hash
	PoolKey           PoolKey
	CurrentPrice      string // decimal string, e.g. "1.2345"
	PriceChange1hPct  float64
	PriceChange24hPct float64
	TotalLiquidity    string // non-negative big-integer string
	Liquidity0        string
	Liquidity1        string
	Volume1h          string
	Volume24h         string
	RecentSwaps       []RecentSwap
	CapturedAtMs      int64
}

// RecentSwap is one entry in a MarketData snapshot's trade tape, used by
// momentum's trend-confirmation window.
type RecentSwap struct {
	ZeroForOne bool
	Amount0    *big.Int
	Amount1    *big.Int
	TimestampMs int64
}

// staleAfter is the maximum age a MarketData snapshot may have before it is
// considered stale (spec.md §3).
const staleAfter = 5 * time.Minute

// IsStale reports whether the snapshot is older than the staleness window
// relative to nowMs (milliseconds since epoch).
func (m MarketData) IsStale(nowMs int64) bool {
	return nowMs-m.CapturedAtMs > staleAfter.Milliseconds()
}

// AgentReadinessSignal is one agent's self-reported readiness for a pool's
// batch window.
type AgentReadinessSignal struct {
	AgentID              string
	PoolID               common.Hash
	Ready                bool
	PendingCommitments   uint32
	PreferredSlippageBps *uint32
	TimestampMs          int64
}

// BatchParameters is the resolved outcome of a fired batch window.
type BatchParameters struct {
	PoolID              common.Hash
	ParticipatingAgents []string
	TotalCommitments    uint32
	SlippageBps         uint32
	FireTimestampMs     int64
}

// TradeDecision is the output of a strategy's should_trade evaluation.
// Warnings carries any non-fatal market-data validation warnings (stale,
// extreme price change, zero liquidity) observed while deciding, whether
// or not ShouldTrade ended up true.
type TradeDecision struct {
	ShouldTrade  bool
	Direction    Direction
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Confidence   float64
	Reasoning    string
	Warnings     []string
}
