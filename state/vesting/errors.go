package vesting

import "errors"

var (
	// ErrInvalidGrant is returned when grant parameters are rejected at issuance.
	ErrInvalidGrant = errors.New("invalid grant")
	ErrWrongTrigger = errors.New("grant does not vest on this trigger")
)
