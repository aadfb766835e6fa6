// Package agent wires the hook client, reveal manager, batch
// coordinator, and a strategy together into one pool-participating
// agent, reporting its lifecycle over a channel rather than callbacks.
// Batch execution itself is not part of an agent.
package agent

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind enumerates the lifecycle events an Agent reports.
type EventKind string

const (
	EventAgentStart         EventKind = "agent_start"
	EventReadinessSignaled  EventKind = "readiness_signaled"
	EventCommitmentSubmitted EventKind = "commitment_submitted"
	EventRevealEnqueued     EventKind = "reveal_enqueued"
	EventBatchFired         EventKind = "batch_fired"
	EventBatchExecuted      EventKind = "batch_executed"
	EventBatchFailed        EventKind = "batch_failed"
	EventHalt               EventKind = "halt"
)

// Report is one lifecycle event, sent on an Agent's report channel. The
// caller owns the channel (passed in at construction) rather than the
// Agent invoking a caller-supplied callback, so backpressure and
// shutdown are ordinary channel semantics.
type Report struct {
	AgentID   string
	PoolID    common.Hash
	Kind      EventKind
	Message   string
	Err       error
	Timestamp time.Time
}
