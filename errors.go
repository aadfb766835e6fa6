package batchswap

import "fmt"

// ErrorKind classifies a failure the way spec.md §7 enumerates it, so
// callers can branch on machine-readable kind rather than string-matching
// the human message.
type ErrorKind string

const (
	// Validation (no network I/O)
	KindZeroAmount              ErrorKind = "ZeroAmount"
	KindDeadlineExpired         ErrorKind = "DeadlineExpired"
	KindCommitmentHashMismatch  ErrorKind = "CommitmentHashMismatch"
	KindInvalidMarketData       ErrorKind = "InvalidMarketData"

	// Coordination
	KindUnknownAgent        ErrorKind = "UnknownAgent"
	KindQuorumLost          ErrorKind = "QuorumLost"
	KindNoParticipatingAgents ErrorKind = "NoParticipatingAgents"

	// Execution ordering
	KindNoSubmittedReveals ErrorKind = "NoSubmittedReveals"
	KindMissingZkProof     ErrorKind = "MissingZkProof"

	// Transport
	KindNetworkTimeout ErrorKind = "NetworkTimeout"
	KindRpcError       ErrorKind = "RpcError"

	// On-chain revert, selector-decoded; see pkg/hookclient/selectors.go.
	KindInvalidCommitment        ErrorKind = "InvalidCommitment"
	KindSlippageExceededForUser  ErrorKind = "SlippageExceededForUser"
	KindCurrencyNotSettled       ErrorKind = "CurrencyNotSettled"
	KindDeadlineExpiredOnChain   ErrorKind = "DeadlineExpired"
	KindInsufficientCommitments  ErrorKind = "InsufficientCommitments"
	KindBatchConditionsNotMet    ErrorKind = "BatchConditionsNotMet"
	KindInvalidNonce             ErrorKind = "InvalidNonce"
	KindUnknownSelector          ErrorKind = "Unknown"
)

// ValidationError is raised by a component without performing network I/O
// (reveal validation, market-data validation, intent construction).
type ValidationError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func NewValidationError(kind ErrorKind, msg string) *ValidationError {
	return &ValidationError{Kind: kind, Msg: msg}
}

// CoordinationError is raised by the Batch Coordinator either when a
// signal cannot be applied at all (KindUnknownAgent; coordinator state is
// unchanged) or to report a state transition the signal itself caused
// (KindQuorumLost: the pool already dropped below quorum and returned to
// Idle by the time the error is returned).
type CoordinationError struct {
	Kind ErrorKind
	Msg  string
}

func (e *CoordinationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func NewCoordinationError(kind ErrorKind, msg string) *CoordinationError {
	return &CoordinationError{Kind: kind, Msg: msg}
}

// ExecutionOrderingError halts the current batch-execute attempt without
// consuming a retry (the ordering contract was violated before any
// transaction was sent).
type ExecutionOrderingError struct {
	Kind ErrorKind
	Msg  string
}

func (e *ExecutionOrderingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func NewExecutionOrderingError(kind ErrorKind, msg string) *ExecutionOrderingError {
	return &ExecutionOrderingError{Kind: kind, Msg: msg}
}

// ChainError is a decoded on-chain revert, typed via the hook's selector
// table. Unknown selectors carry Kind KindUnknownSelector and the raw
// 4-byte selector in Selector.
type ChainError struct {
	Kind     ErrorKind
	Selector [4]byte
	Msg      string
}

func (e *ChainError) Error() string {
	if e.Kind == KindUnknownSelector {
		return fmt.Sprintf("Unknown(0x%x): %s", e.Selector, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// TransportError wraps a network/RPC failure, kept distinguishable from a
// ChainError (revert) per spec.md §7.
type TransportError struct {
	Kind ErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func NewTransportError(kind ErrorKind, err error) *TransportError {
	return &TransportError{Kind: kind, Err: err}
}
