package quota

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound means the session is valid but no account row exists.
	ErrUserNotFound = errors.New("user not found")

	// ErrStorage matches every StorageError via errors.Is.
	ErrStorage = errors.New("quota storage failure")

	// ErrLimitReached is returned by gates that refuse work once the
	// daily allowance is spent.
	ErrLimitReached = errors.New("daily prompt limit reached")
)

// StorageError wraps a persistence failure. It is never retried by the ledger.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("quota %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
