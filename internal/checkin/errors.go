package checkin

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a tag has no registry row.
var ErrNotFound = errors.New("ID not found")

// ErrLiveUnavailable is returned when no live counter backend is configured.
var ErrLiveUnavailable = errors.New("live counters not configured")

// ValidationError reports missing or malformed input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }

// StorageError wraps any failure talking to the backing store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

func storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
