package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record id is no longer present.
var ErrNotFound = errors.New("record not found")

// Error is a failure reported by a storage backend.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Err: err}
}

func notFound(op string) error {
	return &Error{Op: op, Err: ErrNotFound}
}

// IsStorageError reports whether err came from a storage backend.
func IsStorageError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}
