package tools

import (
	"errors"
	"fmt"
)

// Error is a structured tool failure that preserves message and causal
// context while still implementing the standard error interface. Tool
// errors may wrap an underlying cause via Unwrap so callers can use
// errors.Is/As across a failed tool call and its root cause.
type Error struct {
	// Message is the human-readable summary of the failure.
	Message string
	// Kind classifies the failure for retry/backoff decisions (see the
	// Kind* constants below: TransientExternal, PermanentExternal,
	// BudgetExceeded, CancellationRequested, InvariantViolation).
	Kind string
	// Cause links to the underlying error, when one exists.
	Cause error
}

// Error kinds recognized by the orchestrator's retry and budget logic.
const (
	KindTransientExternal     = "transient_external"
	KindPermanentExternal     = "permanent_external"
	KindBudgetExceeded        = "budget_exceeded"
	KindCancellationRequested = "cancellation_requested"
	KindInvariantViolation    = "invariant_violation"
	KindDuplicateQuery        = "duplicate_query"
)

// NewError constructs a tool Error with the given kind and message.
func NewError(kind, message string) *Error {
	if message == "" {
		message = "tool error"
	}
	return &Error{Kind: kind, Message: message}
}

// WrapError constructs a tool Error that carries an underlying cause.
func WrapError(kind string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: cause.Error(), Cause: cause}
}

// Errorf formats a tool Error of the given kind.
func Errorf(kind, format string, args ...any) *Error {
	return NewError(kind, fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Cause.Error())
	}
	return e.Message
}

// Unwrap supports errors.Is/As against the wrapped cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind string) bool {
	var te *Error
	if !errors.As(err, &te) {
		return false
	}
	return te.Kind == kind
}

// RetryReason categorizes why a tool call failed in a way the calling agent
// can act on.
type RetryReason string

const (
	// RetryReasonInvalidArguments indicates malformed or schema-violating input.
	RetryReasonInvalidArguments RetryReason = "invalid_arguments"
	// RetryReasonDuplicateQuery indicates a repeated web_search query string.
	RetryReasonDuplicateQuery RetryReason = "duplicate_query"
	// RetryReasonRateLimited indicates the underlying provider is rate-limited.
	RetryReasonRateLimited RetryReason = "rate_limited"
	// RetryReasonUnavailable indicates the tool or provider is unavailable.
	RetryReasonUnavailable RetryReason = "tool_unavailable"
	// RetryReasonBudgetExhausted indicates the caller has no remaining budget.
	RetryReasonBudgetExhausted RetryReason = "budget_exhausted"
)

// RetryHint tells the agent loop how to recover from a failed tool call
// without consuming additional budget for the malformed attempt.
type RetryHint struct {
	Reason  RetryReason
	Tool    Ident
	Message string
}
