// Package corerr implements the error taxonomy shared by every corectl
// subsystem: job controller, pipeline runner, distributed dispatcher,
// storage driver, container manager and daemon control plane.
package corerr

import (
	"errors"
	"fmt"
)

// Code classifies an error into one of the categories every component
// reports against. Machine clients key off Code; humans read Message.
type Code string

const (
	Configuration Code = "Configuration"
	Runtime       Code = "Runtime"
	Resource      Code = "Resource"
	IO            Code = "IO"
	Dependency    Code = "Dependency"
	Data          Code = "Data"
	Security      Code = "Security"
	Validation    Code = "Validation"
	Internal      Code = "Internal"
	Unknown       Code = "Unknown"
)

// Reason enumerates the specific sub-cases callers branch on.
type Reason string

const (
	ReasonInvalidState           Reason = "InvalidState"
	ReasonConcurrencyLimit       Reason = "ConcurrencyLimitReached"
	ReasonTimeout                Reason = "Timeout"
	ReasonNotFound               Reason = "NotFound"
	ReasonAmbiguous              Reason = "Ambiguous"
	ReasonStateConflict          Reason = "StateConflict"
	ReasonUnsupportedFeature     Reason = "UnsupportedFeature"
	ReasonInvalidDigest          Reason = "InvalidDigest"
	ReasonEmptyPipeline          Reason = "EmptyPipeline"
	ReasonCyclicPipeline         Reason = "CyclicPipeline"
	ReasonNoQuorum               Reason = "NoQuorum"
	ReasonPartitioned            Reason = "Partitioned"
	ReasonNone                   Reason = ""
)

// Error is the structured error type returned by every exported operation.
// It carries the subsystem's classification code, an optional finer-grained
// reason, the id of the entity involved (job, stage, container, node...),
// a short human message, and the wrapped underlying cause.
type Error struct {
	Code    Code
	Reason  Reason
	ID      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s: %s (id=%s)", e.Code, e.Message, e.ID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with no wrapped cause.
func New(code Code, reason Reason, id, message string) *Error {
	return &Error{Code: code, Reason: reason, ID: id, Message: message}
}

// Wrap builds an Error around an existing cause, preserving it for errors.Is/As.
func Wrap(code Code, reason Reason, id string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Reason: reason, ID: id, Message: err.Error(), Err: err}
}

// Is reports whether err is a *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// HasReason reports whether err is a *Error with the given reason.
func HasReason(err error, reason Reason) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason == reason
	}
	return false
}

// RetryPolicy describes the default retry behaviour from spec §7: three
// attempts, 5s base interval, exponential backoff capped at 64x, restricted
// to the recoverable categories.
type RetryPolicy struct {
	MaxAttempts          int
	Interval             float64 // seconds
	ExponentialBackoff   bool
	RecoverableCategories map[Code]bool
}

// DefaultRetryPolicy is the §7 default: max_attempts=3, retry_interval=5s,
// exponential_backoff=true, recoverable_categories={Resource, IO, Runtime}.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:        3,
		Interval:           5,
		ExponentialBackoff: true,
		RecoverableCategories: map[Code]bool{
			Resource: true,
			IO:       true,
			Runtime:  true,
		},
	}
}

// IsRecoverable reports whether code is one of the policy's recoverable
// categories, implementing the §7 propagation policy.
func (p RetryPolicy) IsRecoverable(code Code) bool {
	return p.RecoverableCategories[code]
}

// DelaySeconds returns the backoff delay before attempt n (1-indexed),
// per §7: delay = interval * min(2^n, 64).
func (p RetryPolicy) DelaySeconds(attempt int) float64 {
	if !p.ExponentialBackoff {
		return p.Interval
	}
	mult := 1 << uint(attempt)
	if mult > 64 {
		mult = 64
	}
	return p.Interval * float64(mult)
}
