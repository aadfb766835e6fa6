// Package coordinator implements the per-pool batch-window state machine:
// agents register, signal readiness, and the coordinator arms a countdown
// once quorum is met, firing a batch either when the countdown elapses or
// every registered agent has signaled ready, whichever comes first.
package coordinator

import (
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/batchswap/coordinator"
)

// PoolState is a pool's position in the Idle -> Armed -> Fired -> Idle
// cycle.
type PoolState int

const (
	Idle PoolState = iota
	Armed
	Fired
)

func (s PoolState) String() string {
	switch s {
	case Armed:
		return "ARMED"
	case Fired:
		return "FIRED"
	default:
		return "IDLE"
	}
}

// DefaultSlippageBps is used when a batch fires with no agent expressing
// a slippage preference.
const DefaultSlippageBps uint32 = 50

// ConflictStrategy names how divergent agent slippage preferences are
// reconciled into the single value a fired batch settles with.
type ConflictStrategy string

const (
	ConflictMedian ConflictStrategy = "median"
	ConflictMean   ConflictStrategy = "mean"
	ConflictMin    ConflictStrategy = "min"
	ConflictMax    ConflictStrategy = "max"
)

// FireFunc is invoked synchronously, under the coordinator's lock release
// path, when a pool's batch window fires. It receives the resolved
// parameters; the caller (typically the executor) takes over from there.
type FireFunc func(params batchswap.BatchParameters)

// Config tunes the arming and countdown behavior shared across pools.
type Config struct {
	// MinTotalCommitments is the minimum sum of PendingCommitments across
	// ready signals required to arm a pool.
	MinTotalCommitments uint32
	// QuorumAgents is the minimum number of distinct ready agents
	// required to arm a pool.
	QuorumAgents int
	// CountdownDuration is how long an armed pool waits for more
	// readiness signals before firing, unless every registered agent
	// signals ready first.
	CountdownDuration time.Duration
	// ConflictResolution picks how non-null PreferredSlippageBps values
	// across ready agents are reconciled into one BatchParameters.SlippageBps.
	// Defaults to ConflictMedian.
	ConflictResolution ConflictStrategy
}

type poolEntry struct {
	state    PoolState
	ready    map[string]batchswap.AgentReadinessSignal
	order    []string // agent IDs in the order their ready signal was recorded
	timer    *time.Timer
	timerGen int // invalidates a stale timer fire after reset/fire/destroy
}

// Coordinator tracks registered agents and per-pool arming state. It is
// safe for concurrent use.
type Coordinator struct {
	mu       sync.Mutex
	cfg      Config
	agents   map[string]struct{}
	pools    map[common.Hash]*poolEntry
	fire     FireFunc
	nowFunc  func() int64
}

// New constructs a Coordinator. fire is called whenever a pool's window
// fires, synchronously on the goroutine that triggered the firing (the
// signaling caller or the countdown timer), after the coordinator's lock
// has been released.
func New(cfg Config, fire FireFunc) *Coordinator {
	if cfg.CountdownDuration <= 0 {
		cfg.CountdownDuration = 10 * time.Second
	}
	if cfg.QuorumAgents <= 0 {
		cfg.QuorumAgents = 1
	}
	if cfg.ConflictResolution == "" {
		cfg.ConflictResolution = ConflictMedian
	}
	return &Coordinator{
		cfg:     cfg,
		agents:  make(map[string]struct{}),
		pools:   make(map[common.Hash]*poolEntry),
		fire:    fire,
		nowFunc: func() int64 { return time.Now().UnixMilli() },
	}
}

// RegisterAgent adds agentID to the set of agents the coordinator expects
// readiness signals from. Registering twice is a no-op.
func (c *Coordinator) RegisterAgent(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agents[agentID] = struct{}{}
}

// UnregisterAgent removes agentID and drops any outstanding readiness
// signal it had on any pool, re-evaluating arming for pools it affects.
func (c *Coordinator) UnregisterAgent(agentID string) {
	c.mu.Lock()
	delete(c.agents, agentID)
	var toFire []batchswap.BatchParameters
	for poolID, entry := range c.pools {
		if _, had := entry.ready[agentID]; !had {
			continue
		}
		c.removeReadyLocked(entry, agentID)
		if entry.state == Armed && c.allAgentsReadyLocked(entry) && len(entry.ready) > 0 {
			toFire = append(toFire, c.fireLocked(poolID, entry))
		}
	}
	c.mu.Unlock()

	for _, params := range toFire {
		c.fire(params)
	}
}

// SignalReady applies signal to its pool. A ready=true signal records the
// agent's readiness, arming the pool if quorum is now met and firing
// immediately if every registered agent is ready. A ready=false signal
// removes the agent from the pool's ready-set and, per spec.md §4.3, if
// either quorum condition then ceases to hold, cancels the countdown and
// returns the pool to Idle (reported as a CoordinationError with
// KindQuorumLost). Returns a CoordinationError with KindUnknownAgent if
// signal.AgentID was never registered.
func (c *Coordinator) SignalReady(signal batchswap.AgentReadinessSignal) error {
	c.mu.Lock()

	if _, ok := c.agents[signal.AgentID]; !ok {
		c.mu.Unlock()
		return batchswap.NewCoordinationError(batchswap.KindUnknownAgent, "agent "+signal.AgentID+" is not registered")
	}

	entry := c.entryLocked(signal.PoolID)
	if entry.state == Fired {
		c.mu.Unlock()
		return nil // late signal for an already-fired window; ignored
	}

	if !signal.Ready {
		quorumLost := c.removeReadyLocked(entry, signal.AgentID)
		c.mu.Unlock()
		if quorumLost {
			return batchswap.NewCoordinationError(batchswap.KindQuorumLost, "pool "+signal.PoolID.Hex()+" dropped below quorum and returned to idle")
		}
		return nil
	}

	c.addReadyLocked(entry, signal)

	var firedParams *batchswap.BatchParameters
	if c.allAgentsReadyLocked(entry) {
		p := c.fireLocked(signal.PoolID, entry)
		firedParams = &p
	} else if entry.state == Idle && c.meetsQuorumLocked(entry) {
		c.armLocked(signal.PoolID, entry)
	}
	c.mu.Unlock()

	if firedParams != nil {
		c.fire(*firedParams)
	}
	return nil
}

// WithdrawReady removes agentID's readiness signal for poolID, if any. Per
// spec.md §4.3, if the pool is Armed and either quorum condition ceases to
// hold as a result, the countdown is cancelled and the pool returns to
// Idle; WithdrawReady then returns a CoordinationError with
// KindQuorumLost.
func (c *Coordinator) WithdrawReady(poolID common.Hash, agentID string) error {
	c.mu.Lock()
	entry, ok := c.pools[poolID]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	quorumLost := c.removeReadyLocked(entry, agentID)
	c.mu.Unlock()
	if quorumLost {
		return batchswap.NewCoordinationError(batchswap.KindQuorumLost, "pool "+poolID.Hex()+" dropped below quorum and returned to idle")
	}
	return nil
}

// ResetPool cancels any countdown and returns the pool to Idle with no
// readiness signals, regardless of its current state.
func (c *Coordinator) ResetPool(poolID common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.pools[poolID]
	if !ok {
		return
	}
	c.stopTimerLocked(entry)
	entry.state = Idle
	entry.ready = make(map[string]batchswap.AgentReadinessSignal)
	entry.order = nil
}

// AllAgentsReady reports whether every currently registered agent has an
// outstanding ready signal for poolID.
func (c *Coordinator) AllAgentsReady(poolID common.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.pools[poolID]
	if !ok {
		return false
	}
	return c.allAgentsReadyLocked(entry)
}

// State reports a pool's current position in the state machine.
func (c *Coordinator) State(poolID common.Hash) PoolState {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.pools[poolID]
	if !ok {
		return Idle
	}
	return entry.state
}

// Destroy synchronously cancels every outstanding countdown timer. Safe
// to call during process shutdown.
func (c *Coordinator) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.pools {
		c.stopTimerLocked(entry)
	}
}

func (c *Coordinator) entryLocked(poolID common.Hash) *poolEntry {
	entry, ok := c.pools[poolID]
	if !ok {
		entry = &poolEntry{state: Idle, ready: make(map[string]batchswap.AgentReadinessSignal)}
		c.pools[poolID] = entry
	}
	return entry
}

// addReadyLocked records signal in entry's ready-set, appending agentID to
// the insertion-order slice the first time it becomes ready.
func (c *Coordinator) addReadyLocked(entry *poolEntry, signal batchswap.AgentReadinessSignal) {
	if _, had := entry.ready[signal.AgentID]; !had {
		entry.order = append(entry.order, signal.AgentID)
	}
	entry.ready[signal.AgentID] = signal
}

// removeReadyLocked drops agentID's ready signal from entry, if present.
// If entry was Armed and no longer meets either quorum condition as a
// result, the countdown is cancelled and entry returns to Idle; the bool
// result reports whether that transition happened.
func (c *Coordinator) removeReadyLocked(entry *poolEntry, agentID string) bool {
	if _, had := entry.ready[agentID]; !had {
		return false
	}
	delete(entry.ready, agentID)
	for i, id := range entry.order {
		if id == agentID {
			entry.order = append(entry.order[:i], entry.order[i+1:]...)
			break
		}
	}
	if entry.state == Armed && !c.meetsQuorumLocked(entry) {
		c.stopTimerLocked(entry)
		entry.state = Idle
		return true
	}
	return false
}

func (c *Coordinator) meetsQuorumLocked(entry *poolEntry) bool {
	if len(entry.ready) < c.cfg.QuorumAgents {
		return false
	}
	var total uint32
	for _, s := range entry.ready {
		total += s.PendingCommitments
	}
	return total >= c.cfg.MinTotalCommitments
}

func (c *Coordinator) allAgentsReadyLocked(entry *poolEntry) bool {
	if len(c.agents) == 0 {
		return false
	}
	for agentID := range c.agents {
		if _, ok := entry.ready[agentID]; !ok {
			return false
		}
	}
	return true
}

// armLocked starts the countdown for a pool that just met quorum.
func (c *Coordinator) armLocked(poolID common.Hash, entry *poolEntry) {
	entry.state = Armed
	c.stopTimerLocked(entry)
	entry.timerGen++
	gen := entry.timerGen

	entry.timer = time.AfterFunc(c.cfg.CountdownDuration, func() {
		c.mu.Lock()
		if entry.timerGen != gen || entry.state != Armed {
			c.mu.Unlock()
			return
		}
		params := c.fireLocked(poolID, entry)
		c.mu.Unlock()
		c.fire(params)
	})
}

// fireLocked transitions a pool to Fired, resolves its batch parameters,
// and returns them. Caller must invoke c.fire(params) after releasing
// c.mu, since fire may re-enter the coordinator.
func (c *Coordinator) fireLocked(poolID common.Hash, entry *poolEntry) batchswap.BatchParameters {
	c.stopTimerLocked(entry)
	params := resolveBatchParameters(poolID, entry.order, entry.ready, c.cfg.ConflictResolution, c.nowFunc())
	entry.state = Idle
	entry.ready = make(map[string]batchswap.AgentReadinessSignal)
	entry.order = nil
	return params
}

func (c *Coordinator) stopTimerLocked(entry *poolEntry) {
	if entry.timer != nil {
		entry.timer.Stop()
		entry.timer = nil
	}
	entry.timerGen++
}

// resolveBatchParameters aggregates the ready signals for a firing pool
// into the parameters the executor will settle with. ParticipatingAgents
// is ordered by signal insertion (order), not alphabetically. SlippageBps
// aggregates every agent-expressed preference (agents with no preference
// do not participate) by strategy: median takes the lower-middle value
// for an even count (sorted ascending, index n/2-1 zero-based), mean
// truncates to integer, min/max take the extreme. With no preferences at
// all, DefaultSlippageBps is used regardless of strategy.
func resolveBatchParameters(poolID common.Hash, order []string, ready map[string]batchswap.AgentReadinessSignal, strategy ConflictStrategy, nowMs int64) batchswap.BatchParameters {
	agents := make([]string, 0, len(order))
	var totalCommitments uint32
	prefs := make([]uint32, 0, len(order))

	for _, agentID := range order {
		s, ok := ready[agentID]
		if !ok {
			continue
		}
		agents = append(agents, agentID)
		totalCommitments += s.PendingCommitments
		if s.PreferredSlippageBps != nil {
			prefs = append(prefs, *s.PreferredSlippageBps)
		}
	}

	slippage := DefaultSlippageBps
	if len(prefs) > 0 {
		sort.Slice(prefs, func(i, j int) bool { return prefs[i] < prefs[j] })
		slippage = aggregateSlippage(prefs, strategy)
	}

	return batchswap.BatchParameters{
		PoolID:              poolID,
		ParticipatingAgents: agents,
		TotalCommitments:    totalCommitments,
		SlippageBps:         slippage,
		FireTimestampMs:     nowMs,
	}
}

// aggregateSlippage reduces prefs (already sorted ascending) per strategy.
func aggregateSlippage(prefs []uint32, strategy ConflictStrategy) uint32 {
	switch strategy {
	case ConflictMean:
		var sum uint64
		for _, p := range prefs {
			sum += uint64(p)
		}
		return uint32(sum / uint64(len(prefs))) // integer truncation
	case ConflictMin:
		return prefs[0]
	case ConflictMax:
		return prefs[len(prefs)-1]
	default: // ConflictMedian
		n := len(prefs)
		if n%2 == 1 {
			return prefs[n/2]
		}
		return prefs[n/2-1]
	}
}
