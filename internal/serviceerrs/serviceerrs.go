package serviceerrs

import (
	"errors"
	"fmt"
)

var ErrTokenExpired = errors.New("token expired")
var ErrNotFound = errors.New("not found")
var ErrDuplicateBooking = errors.New("booking already ingested")

// StorageError wraps any backend failure that is not a condition-check no-op.
// A delta that fails with StorageError stays retry-eligible: the conditional
// membership guard makes the retry safe.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// MalformedRecordError reports a change record that could not be converted
// into a transaction event. It is a data-quality warning, never fatal to a
// batch.
type MalformedRecordError struct {
	Field string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed change record: missing %s", e.Field)
}
