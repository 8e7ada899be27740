package vecstore

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrNotFound is returned when a record is not found in the store.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidArgument is returned for malformed ids, dimension
	// mismatches, and out-of-range parameters. Never sent to the store.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDuplicateID is returned by drivers that natively reject duplicate
	// primary keys on insert.
	ErrDuplicateID = errors.New("duplicate record id")

	// ErrNotConnected is returned by drivers when an operation runs before
	// Connect has established a handle.
	ErrNotConnected = errors.New("vector store not connected")

	// ErrUnavailable marks a failure as transient. Drivers wrap temporary
	// native errors (busy databases, broken pipes) with it so the retry
	// classifier picks them up.
	ErrUnavailable = errors.New("vector store unavailable")

	// ErrDriverNotSupported is returned by the driver factory for unknown
	// driver names.
	ErrDriverNotSupported = errors.New("unsupported vector store driver")
)

// BatchError reports the partial outcome of an aborted batch insert.
// Completed chunks are never rolled back, so callers get the ids that were
// durably inserted alongside the ids that were never attempted.
type BatchError struct {
	// Inserted lists ids from chunks that completed before the failure.
	Inserted []string

	// NotAttempted lists ids from the failed chunk onward.
	NotAttempted []string

	// Err is the underlying failure.
	Err error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch insert aborted: %d inserted, %d not attempted: %v",
		len(e.Inserted), len(e.NotAttempted), e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// grpcStatusError matches the error type produced by gRPC clients, also when
// wrapped.
type grpcStatusError interface {
	GRPCStatus() *status.Status
}

// IsTransient is the single source of truth for what the retry policies
// re-attempt. Transient covers network trouble, timeouts, and temporary
// unavailability; everything else (bad input, schema conflicts, auth,
// missing records) is permanent and propagates immediately.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Deliberate cancellation is never retried. Deadline expiry is treated
	// as a timeout; the retry loop's own context check stops it when the
	// caller's deadline has passed.
	if errors.Is(err, context.Canceled) {
		return false
	}

	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrDuplicateID),
		errors.Is(err, ErrNotConnected),
		errors.Is(err, ErrDriverNotSupported):
		return false
	}

	if errors.Is(err, ErrUnavailable) {
		return true
	}

	var se grpcStatusError
	if errors.As(err, &se) {
		switch se.GRPCStatus().Code() {
		case codes.Unavailable,
			codes.DeadlineExceeded,
			codes.ResourceExhausted,
			codes.Aborted:
			return true
		default:
			return false
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}
