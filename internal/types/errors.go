package types

import "errors"

// Engine error taxonomy. Configuration errors are rejected synchronously
// before anything is enqueued; precondition and external-dependency errors
// abort only the single order being processed; authorization errors are
// always fatal to the call.
var (
	// Configuration errors.
	ErrSameToken        = errors.New("source and destination token must differ")
	ErrInvalidTickRange = errors.New("lower tick must be below upper tick")

	// Precondition errors at execution time.
	ErrZeroAmountSwap      = errors.New("swap amount is zero")
	ErrInsufficientSavings = errors.New("insufficient savings balance")
	ErrInvalidDCAExecution = errors.New("queue item already executed")

	// External-dependency errors.
	ErrSwapExecutionFailed = errors.New("pool swap execution failed")

	// Policy-governed errors.
	ErrSlippageToleranceExceeded = errors.New("slippage tolerance exceeded")

	// Authorization errors.
	ErrUnauthorizedCaller = errors.New("caller is not authorized")

	// ErrReentrantCall is returned when a collaborator callback re-enters
	// a state-mutating entry point that is still in progress.
	ErrReentrantCall = errors.New("reentrant engine call")
)
