package state

import "errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
	// ErrConflict means a row changed after the transaction read it. Retrying the whole unit is safe.
	ErrConflict      = errors.New("concurrent modification")
	ErrTerminalEvent = errors.New("vesting event already terminal")
)

// IsRetryable reports whether err is worth retrying the whole transaction for.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
