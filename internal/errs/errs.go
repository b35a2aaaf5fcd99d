package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the failure classes the trading core
// reacts to. Retry policy, circuit breaking, and user-visible results all key
// off the Kind, never off error string matching outside this package.
type Kind string

const (
	ChainUnavailable       Kind = "chain_unavailable"
	LockContention         Kind = "lock_contention"
	Timeout                Kind = "timeout"
	Underpriced            Kind = "underpriced"
	ReplacementUnderpriced Kind = "replacement_underpriced"
	InsufficientFunds      Kind = "insufficient_funds"
	NonceTooLow            Kind = "nonce_too_low"
	AlreadyKnown           Kind = "already_known"
	ExecutionReverted      Kind = "execution_reverted"
	AllowanceMissing       Kind = "allowance_missing"
	SafetyRefusal          Kind = "safety_refusal"
	ReserveExhausted       Kind = "reserve_exhausted"
	SimulationInfeasible   Kind = "simulation_infeasible"
	MempoolDegraded        Kind = "mempool_degraded"
	ConfigInvalid          Kind = "config_invalid"
	Other                  Kind = "other"
	Unknown                Kind = "unknown"
)

// Error carries a Kind plus free-text context. It wraps an optional cause so
// callers can use errors.Is/errors.As across package boundaries.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a kinded error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and context to an existing error.
// Wrapping nil returns nil.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from an error chain. Errors that never passed
// through this package report Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether the error chain carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the submission pipeline may retry an error of
// this kind. InsufficientFunds and ExecutionReverted fail fast; safety and
// configuration refusals are never retried.
func Retryable(kind Kind) bool {
	switch kind {
	case Timeout, Underpriced, ReplacementUnderpriced, NonceTooLow, AlreadyKnown,
		ChainUnavailable, Other, Unknown:
		return true
	default:
		return false
	}
}
