package agent

import "sync"

// CircuitBreaker halts an agent's participation in a pool after too many
// consecutive execution failures, adapted from the teacher's
// liquidity-repositioning CircuitBreaker: RecordError/Reset/ErrorRate,
// generalized to batch-execution outcomes instead of position-management
// ones.
type CircuitBreaker struct {
	mu              sync.Mutex
	maxConsecutive  int
	consecutive     int
	totalAttempts   int
	totalErrors     int
	tripped         bool
}

// NewCircuitBreaker constructs a breaker that trips after maxConsecutive
// consecutive failures.
func NewCircuitBreaker(maxConsecutive int) *CircuitBreaker {
	if maxConsecutive <= 0 {
		maxConsecutive = 3
	}
	return &CircuitBreaker{maxConsecutive: maxConsecutive}
}

// RecordOutcome updates the breaker's streak with one execution attempt's
// result, tripping it if the consecutive-failure count now meets the
// threshold.
func (b *CircuitBreaker) RecordOutcome(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalAttempts++
	if success {
		b.consecutive = 0
		return
	}

	b.totalErrors++
	b.consecutive++
	if b.consecutive >= b.maxConsecutive {
		b.tripped = true
	}
}

// Tripped reports whether the breaker has halted participation.
func (b *CircuitBreaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

// Reset clears the breaker back to a closed, untripped state.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
	b.tripped = false
}

// ErrorRate returns the fraction of recorded attempts that failed, 0 if
// no attempts have been recorded.
func (b *CircuitBreaker) ErrorRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.totalAttempts == 0 {
		return 0
	}
	return float64(b.totalErrors) / float64(b.totalAttempts)
}
