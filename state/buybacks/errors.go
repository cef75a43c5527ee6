package buybacks

import "errors"

var (
	ErrNoAcceptedPrice = errors.New("tender offer has no accepted price")
	// ErrInsufficientLots means an investor's lots cannot cover their accepted shares.
	ErrInsufficientLots = errors.New("not enough lots to cover accepted shares")
)
