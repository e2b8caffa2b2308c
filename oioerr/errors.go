// Package oioerr defines the error taxonomy shared by the transport and
// content packages: sentinel errors callers can match with errors.Is, plus
// a couple of detail-carrying wrapper types for errors.As.
package oioerr

import (
	"errors"
	"fmt"
	"time"
)

// Configuration errors.
var (
	ErrInvalidStorageMethod = errors.New("invalid storage method")
	ErrInvalidRange         = errors.New("invalid range")
)

// Local transport errors.
var (
	ErrConnectTimeout    = errors.New("connect timeout")
	ErrChunkWriteTimeout = errors.New("chunk write timeout")
	ErrChunkReadTimeout  = errors.New("chunk read timeout")
	ErrSourceReadTimeout = errors.New("source read timeout")
)

// Semantic errors.
var (
	ErrWriteQuorumError    = errors.New("write quorum not reached")
	ErrReadQuorumError     = errors.New("read quorum not reached")
	ErrSourceReadError     = errors.New("source read error")
	ErrUnrecoverableRead   = errors.New("unrecoverable read")
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
	ErrNotEnoughSources    = errors.New("not enough sources")
)

// TargetHTTPError reports that a blob target answered with a non-success,
// non-timeout HTTP status.
type TargetHTTPError struct {
	Target string
	Status int
}

func (e *TargetHTTPError) Error() string {
	return fmt.Sprintf("target %s: unexpected HTTP status %d", e.Target, e.Status)
}

// TargetUnreachable reports that a blob target could not be connected to
// or its connection was dropped, for a reason other than a timeout.
type TargetUnreachable struct {
	Target string
	Reason string
}

func (e *TargetUnreachable) Error() string {
	return fmt.Sprintf("target %s unreachable: %s", e.Target, e.Reason)
}

// timeoutError pairs a taxonomy sentinel with the timeout value that was
// exceeded, so the user-visible message always includes it in seconds, as
// spec.md's propagation policy requires.
type timeoutError struct {
	kind    error
	timeout time.Duration
	detail  string
}

func (e *timeoutError) Error() string {
	secs := e.timeout.Seconds()
	if e.detail != "" {
		return fmt.Sprintf("%s: %s (%.1f second timeout)", e.kind, e.detail, secs)
	}
	return fmt.Sprintf("%s (%.1f second timeout)", e.kind, secs)
}

func (e *timeoutError) Unwrap() error { return e.kind }

// Timeout wraps one of the ErrXxxTimeout sentinels with the timeout
// duration that was exceeded and an optional free-form detail (e.g. a
// target URL), for a message matching spec.md §7's "includes the timeout
// value in seconds" requirement while remaining errors.Is-comparable to
// the sentinel.
func Timeout(kind error, timeout time.Duration, detail string) error {
	return &timeoutError{kind: kind, timeout: timeout, detail: detail}
}
