package xfer

import (
	"errors"
	"fmt"
)

type ErrorCode int

const (
	Unknown ErrorCode = iota
	// AuthError: missing or invalid bearer credential.
	AuthError
	// ValidationError: malformed request, from==to, non-positive amount,
	// unknown account.
	ValidationError
	// PairBusy: pair lock not acquired within the bounded wait.
	PairBusy
	// InsufficientFunds: participant rejected a debit prepare.
	InsufficientFunds
	// TransactionAborted: failure after txn creation; rollback was
	// attempted best-effort before this surfaced.
	TransactionAborted
	// DependencyError: shared store or participant unreachable.
	DependencyError
	// NotFound: unknown transaction id on lookup.
	NotFound
)

// xfer custom error: a taxonomy code plus the wrapped cause.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e Error) Error() string {
	return fmt.Sprintf("error code: %d, details: %v", e.Code, e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}

// Errorf formats a new coded error.
func Errorf(code ErrorCode, format string, args ...any) Error {
	return Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeOf extracts the taxonomy code of err, or Unknown if err carries none.
func CodeOf(err error) ErrorCode {
	var e Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Unknown
}
