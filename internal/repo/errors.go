package repo

import (
	"errors"
	"fmt"
)

// Kind classifies provisioning failures.
type Kind string

const (
	// NameCollisionExhausted means every mangled repository name was taken.
	NameCollisionExhausted Kind = "name_collision_exhausted"
	// AuthRejected means the host refused our credentials. Never retried.
	AuthRejected Kind = "auth_rejected"
	// RateLimited means the host asked us to back off. Retryable.
	RateLimited Kind = "rate_limited"
	// NotFound means no repository exists for the task identifier. Revise
	// flow only; fatal.
	NotFound Kind = "not_found"
	// NetworkFailure covers transport errors and timeouts. Retryable.
	NetworkFailure Kind = "network_failure"
)

// Error is a classified provisioning failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == RateLimited || e.Kind == NetworkFailure
}

// IsRetryable reports whether err is a retryable provisioning error.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err is not a repo error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
