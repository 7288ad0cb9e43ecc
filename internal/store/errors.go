package store

import (
	"errors"
	"fmt"
)

var (
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")

	// Overlap rejections raised by the storage backstop. Both match
	// ErrConflict under errors.Is.
	ErrPractitionerOverlap = fmt.Errorf("practitioner overlap: %w", ErrConflict)
	ErrRoomOverlap         = fmt.Errorf("room overlap: %w", ErrConflict)
)

// StorageError wraps a failure of the underlying database. Callers do
// not try to interpret or recover from it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Wrap leaves nil and the package's sentinel errors untouched and wraps
// everything else in a StorageError.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrIdempotencyConflict) {
		return err
	}
	var sErr *StorageError
	if errors.As(err, &sErr) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
