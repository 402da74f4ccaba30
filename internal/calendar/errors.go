package calendar

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both "no such event" and "event owned by someone
	// else": a principal cannot learn whether a foreign id exists.
	ErrNotFound      = errors.New("event not found")
	ErrInvalidEvent  = errors.New("invalid event")
	ErrUnknownColumn = errors.New("unknown column")
	ErrUnknownUnit   = errors.New("unknown range unit")

	// ErrEndBeforeStart is the ErrInvalidEvent raised when a write would
	// leave end_time before start_time, whether caught before the write or
	// by the store.
	ErrEndBeforeStart = fmt.Errorf("%w: endTime is before startTime", ErrInvalidEvent)
)

// AuthenticationError reports that no principal was available when Op ran.
type AuthenticationError struct {
	Op  string
	Err error
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("calendar %s: not authenticated", e.Op)
	}
	return fmt.Sprintf("calendar %s: not authenticated: %v", e.Op, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// StorageError reports that the backend rejected or failed Op. Err is the
// backend's error untouched.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("calendar %s: storage: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func IsAuthentication(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

func IsStorage(err error) bool {
	var storageErr *StorageError
	return errors.As(err, &storageErr)
}

// Outcome maps an operation result to a stable label for logs and metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsAuthentication(err):
		return "unauthenticated"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidEvent):
		return "invalid"
	case IsStorage(err):
		return "storage_error"
	default:
		return "unexpected"
	}
}
