package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the referenced payment or registration does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrClaimConflict indicates a registration claim was lost to another
	// payment; the operation is retryable.
	ErrClaimConflict = errors.New("registration already claimed by another payment")

	// ErrTerminalState indicates an attempt to change a payment whose match
	// state is final.
	ErrTerminalState = errors.New("payment is in a terminal match state")

	// ErrStorageTimeout indicates a storage call exceeded its deadline.
	ErrStorageTimeout = errors.New("storage operation timed out")
)

// ValidationError describes a malformed or missing required field on a payment
// or registration record.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
