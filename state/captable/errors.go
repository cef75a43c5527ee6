package captable

import "errors"

var (
	// ErrUnsupportedSecurity is a data integrity failure. Retrying cannot fix it.
	ErrUnsupportedSecurity  = errors.New("unsupported security kind")
	ErrRoundNotFinalized    = errors.New("buyback round is not finalized")
	ErrInsufficientQuantity = errors.New("security does not hold enough shares")
)
